package bot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/doggywatch/doggywatch/internal/engine"
	"github.com/doggywatch/doggywatch/internal/telegram"
	"github.com/doggywatch/doggywatch/internal/youtube"
)

func statusGlyph(s engine.Status) string {
	switch s {
	case engine.StatusViewed:
		return "👀"
	case engine.StatusArchivedViewed:
		return "⭐"
	case engine.StatusArchived:
		return "📁"
	default:
		return "🆕"
	}
}

// renderList formats open requests grouped by the day the request was
// created, newest day first. Within a day the least-requested videos come
// first. Returns "" when there is nothing to show.
func renderList(items []*engine.ListItem) string {
	if len(items) == 0 {
		return ""
	}

	type day struct {
		date  time.Time
		items []*engine.ListItem
	}
	var days []*day
	index := make(map[string]*day)
	for _, item := range items {
		date := item.Creator.CreatedAt.Truncate(24 * time.Hour)
		key := date.Format("2006-01-02")
		d, ok := index[key]
		if !ok {
			d = &day{date: date}
			index[key] = d
			days = append(days, d)
		}
		d.items = append(d.items, item)
	}

	sort.Slice(days, func(i, j int) bool {
		return days[i].date.After(days[j].date)
	})

	var b strings.Builder
	for i, d := range days {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s]", d.date.Format("02.01"))

		sort.SliceStable(d.items, func(i, j int) bool {
			return d.items[i].Contributors < d.items[j].Contributors
		})
		for _, item := range d.items {
			contributors := ""
			if item.Contributors > 1 {
				contributors = fmt.Sprintf("(🙍‍♂️%d) ", item.Contributors)
			}
			fmt.Fprintf(&b, "\n%s/%d <a href=\"%s%s\">📺YT</a> %s<b>%s</b>",
				statusGlyph(item.Status), item.Request.ID,
				youtube.WatchURL, item.Video.YtID,
				contributors, item.Video.Title)
		}
	}
	return b.String()
}

func mention(uid int64, name string) string {
	return fmt.Sprintf("<a href=\"tg://user?id=%d\">%s</a>", uid, name)
}

// renderInfo formats a single request with its creator credit.
func renderInfo(info *engine.RequestInfo, creatorName string) string {
	return fmt.Sprintf(
		"<a href=\"%s%s\">%s</a>\nДобавлено %s (👀%d)",
		youtube.WatchURL, info.Video.YtID, info.Video.Title,
		mention(info.Creator.UserID, creatorName), info.Contributors)
}

// infoKeyboard builds the status-flip buttons; captions reflect the
// current state so each press toggles it.
func infoKeyboard(info *engine.RequestInfo) *telegram.InlineKeyboardMarkup {
	viewCaption, viewVerb := "В просмотренные", "view"
	if info.Request.ViewedAt != nil {
		viewCaption, viewVerb = "Убрать из просмотренных", "unview"
	}
	banCaption, banVerb := "В бан", "ban"
	if info.Video.Banned {
		banCaption, banVerb = "Пардоньте", "pardon"
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
		{Text: viewCaption, CallbackData: fmt.Sprintf("%s %d", viewVerb, info.Request.ID)},
		{Text: banCaption, CallbackData: fmt.Sprintf("%s %d", banVerb, info.Request.ID)},
	}}}
}

func yesNoKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
		{Text: "Да", CallbackData: "yes"},
		{Text: "Нет", CallbackData: "no"},
	}}}
}

func cancelKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
		{Text: "Отменить", CallbackData: "cancel"},
	}}}
}

func archiveKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "Архивировать просмотренные", CallbackData: "archive_viewed"}},
		{{Text: "Архивировать всё", CallbackData: "archive_all"}},
	}}
}

func listKeyboard(refresh bool) *telegram.InlineKeyboardMarkup {
	caption := "Непросмотренные"
	if refresh {
		caption = "Обновить"
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
		{Text: caption, CallbackData: "list_unviewed"},
	}}}
}

const emptyListText = "Нет видео для просмотра :("

const helpText = "Список поддерживаемых команд:\n" +
	"/help — отобразить этот текст.\n" +
	"/start — запустить бота.\n" +
	"/list — вывести список.\n" +
	"/archive — действия с архивом.\n" +
	"/mods — вывести список модераторов.\n" +
	"/addmod — добавить модератора.\n" +
	"/remmod — удалить модератора.\n" +
	"/notify — переключить уведомления.\n" +
	"/about — информация о боте.\n\n" +
	"Чтобы получить информацию о видео или изменить его статус просто отправь его номер в чат."

func greetingText(name string) string {
	return fmt.Sprintf(
		"Приветствую %s!\nОтправьте в этот чат ссылку на YouTube видео, чтобы предложить его для просмотра!",
		name)
}

func aboutText(rights engine.Rights, channel int64, cooldown time.Duration, version string) string {
	return fmt.Sprintf(
		"Doggy-Watch v%s\n____________________\nDebug information:\nRights level: %s\nLinked channel: %d\nCooldown duration: %s\nServer time:\n%s",
		version, rights, channel, cooldown, time.Now().Format("2006-01-02 15:04:05"))
}
