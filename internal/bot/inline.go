package bot

import (
	"strconv"
	"strings"
)

// InlineOp identifies a moderator action carried in callback data.
type InlineOp int

const (
	OpBan InlineOp = iota
	OpPardon
	OpView
	OpUnview
	OpArchiveViewed
	OpArchiveAll
	OpListUnviewed
	OpCancel
)

// InlineCommand is parsed callback data. RID is set only for the
// per-request operations.
type InlineCommand struct {
	Op  InlineOp
	RID int64
}

// ParseInlineCommand decodes callback data of the form "<verb>" or
// "<verb> <rid>". Unparseable data is reported with ok=false and ignored
// by the caller.
func ParseInlineCommand(input string) (InlineCommand, bool) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return InlineCommand{}, false
	}

	switch parts[0] {
	case "ban", "pardon", "view", "unview":
		if len(parts) < 2 {
			return InlineCommand{}, false
		}
		rid, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return InlineCommand{}, false
		}
		ops := map[string]InlineOp{
			"ban":    OpBan,
			"pardon": OpPardon,
			"view":   OpView,
			"unview": OpUnview,
		}
		return InlineCommand{Op: ops[parts[0]], RID: rid}, true
	case "archive_viewed":
		return InlineCommand{Op: OpArchiveViewed}, true
	case "archive_all":
		return InlineCommand{Op: OpArchiveAll}, true
	case "list_unviewed":
		return InlineCommand{Op: OpListUnviewed}, true
	case "cancel":
		return InlineCommand{Op: OpCancel}, true
	default:
		return InlineCommand{}, false
	}
}

// RecogniseRequestID extracts a request id from a bare message, either
// "123" or "/123".
func RecogniseRequestID(text string) (int64, bool) {
	text = strings.TrimPrefix(text, "/")
	rid, err := strconv.ParseInt(text, 10, 64)
	if err != nil || rid <= 0 {
		return 0, false
	}
	return rid, true
}
