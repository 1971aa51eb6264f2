package engine

import (
	"context"

	"github.com/doggywatch/doggywatch/internal/store"
)

// Archive folds the selected requests into the archive and removes them.
// The sweep is all-or-nothing: a failed insert leaves every selected
// request (and its actions) in place. Returns the number of folded
// requests.
//
// Failure outcomes: ErrEmptySelection, ErrInvariantViolation, *StoreError.
func (e *Engine) Archive(ctx context.Context, scope store.ArchiveScope) (int, error) {
	selected, err := e.store.ListRequestsWithActions(ctx, scope)
	if err != nil {
		return 0, storeErr("list requests", err)
	}
	if len(selected) == 0 {
		return 0, ErrEmptySelection
	}

	now := e.now().UTC()
	entries := make([]*store.Archived, 0, len(selected))
	ids := make([]int64, 0, len(selected))
	for _, rwa := range selected {
		// Unreachable given orphan cleanup, but a zero-action request must
		// never be folded silently.
		if len(rwa.Actions) == 0 {
			e.log.Error().Int64("rid", rwa.Request.ID).Msg("request with no actions selected for archival")
			return 0, ErrInvariantViolation
		}

		creator := rwa.Actions[0] // ordered by action id ascending
		entries = append(entries, &store.Archived{
			YtID:         rwa.Request.YtID,
			ViewedAt:     rwa.Request.ViewedAt,
			CreatedBy:    creator.UserID,
			CreatedAt:    now, // archival time, not authorship time
			Contributors: int64(len(rwa.Actions)),
		})
		ids = append(ids, rwa.Request.ID)
	}

	if err := e.store.FoldRequests(ctx, entries, ids); err != nil {
		return 0, storeErr("fold requests", err)
	}
	return len(entries), nil
}
