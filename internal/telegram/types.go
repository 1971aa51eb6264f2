package telegram

// Wire types for the handful of Bot API objects the bot touches. Fields
// the bot never reads are omitted.

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type Message struct {
	MessageID   int64  `json:"message_id"`
	From        *User  `json:"from,omitempty"`
	Chat        Chat   `json:"chat"`
	Text        string `json:"text,omitempty"`
	ForwardFrom *User  `json:"forward_from,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

type ChatMember struct {
	Status string `json:"status"`
	User   User   `json:"user"`
}

type LinkPreviewOptions struct {
	IsDisabled bool `json:"is_disabled"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// Subscribed reports whether the member counts as present in the channel.
// Restricted members are still in the chat, so they count.
func (m *ChatMember) Subscribed() bool {
	switch m.Status {
	case "creator", "administrator", "member", "restricted":
		return true
	default:
		return false
	}
}
