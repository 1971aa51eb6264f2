package bot

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/doggywatch/doggywatch/internal/config"
	"github.com/doggywatch/doggywatch/internal/engine"
	"github.com/doggywatch/doggywatch/internal/ratelimit"
	"github.com/doggywatch/doggywatch/internal/session"
	"github.com/doggywatch/doggywatch/internal/store"
	"github.com/doggywatch/doggywatch/internal/telegram"
	"github.com/doggywatch/doggywatch/internal/youtube"
)

const testChannel int64 = -1001234567890

type sentMessage struct {
	chat     int64
	text     string
	keyboard *telegram.InlineKeyboardMarkup
}

type editedMessage struct {
	chat      int64
	messageID int64
	text      string
}

type fakeAPI struct {
	sent     []sentMessage
	edits    []editedMessage
	answered []string
	// member status by user id for the channel; absent means left
	members map[int64]string
}

func (f *fakeAPI) SendMessage(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) (*telegram.Message, error) {
	f.sent = append(f.sent, sentMessage{chat: chatID, text: text, keyboard: keyboard})
	return &telegram.Message{MessageID: int64(len(f.sent)), Chat: telegram.Chat{ID: chatID}}, nil
}

func (f *fakeAPI) SendMessageNoPreview(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) (*telegram.Message, error) {
	return f.SendMessage(ctx, chatID, text, keyboard)
}

func (f *fakeAPI) EditMessageText(ctx context.Context, chatID, messageID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error {
	f.edits = append(f.edits, editedMessage{chat: chatID, messageID: messageID, text: text})
	return nil
}

func (f *fakeAPI) EditMessageTextNoPreview(ctx context.Context, chatID, messageID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error {
	return f.EditMessageText(ctx, chatID, messageID, text, keyboard)
}

func (f *fakeAPI) AnswerCallbackQuery(ctx context.Context, id, text string) error {
	f.answered = append(f.answered, id)
	return nil
}

func (f *fakeAPI) GetChatMember(ctx context.Context, chatID, userID int64) (*telegram.ChatMember, error) {
	if chatID == testChannel {
		status, ok := f.members[userID]
		if !ok {
			status = "left"
		}
		return &telegram.ChatMember{Status: status, User: telegram.User{ID: userID, FirstName: "User"}}, nil
	}
	// Name lookups against the user's own chat.
	return &telegram.ChatMember{Status: "member", User: telegram.User{ID: userID, FirstName: "User"}}, nil
}

func (f *fakeAPI) lastSent(t *testing.T) sentMessage {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("no message was sent")
	}
	return f.sent[len(f.sent)-1]
}

type fakeMeta struct {
	title string
	err   error
}

func (m *fakeMeta) Metadata(ctx context.Context, id string) (*youtube.Metadata, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &youtube.Metadata{Title: m.title}, nil
}

type botFixture struct {
	bot      *Bot
	api      *fakeAPI
	meta     *fakeMeta
	engine   *engine.Engine
	store    *store.SQLiteStore
	sessions *session.Manager
}

type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, message string, exclude []int64) {}

func newFixture(t *testing.T) *botFixture {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "doggywatch-bot-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	s, err := store.NewSQLiteStore(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.Remove(tmpFile.Name())
	})

	limiter := ratelimit.NewCooldownLimiter(30 * time.Second)
	e := engine.New(s, limiter, noopNotifier{}, zerolog.Nop())

	api := &fakeAPI{members: map[int64]string{}}
	meta := &fakeMeta{title: "Demo"}
	sessions := session.NewManager(10 * time.Minute)
	cfg := &config.Config{
		Channel:  testChannel,
		Cooldown: 30 * time.Second,
	}

	return &botFixture{
		bot:      New(api, e, sessions, meta, cfg, "test", zerolog.Nop()),
		api:      api,
		meta:     meta,
		engine:   e,
		store:    s,
		sessions: sessions,
	}
}

func message(chat, uid int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 1,
			From:      &telegram.User{ID: uid, FirstName: "User"},
			Chat:      telegram.Chat{ID: chat},
			Text:      text,
		},
	}
}

func callback(chat, uid int64, data string) telegram.Update {
	return telegram.Update{
		UpdateID: 2,
		CallbackQuery: &telegram.CallbackQuery{
			ID:      "cb1",
			From:    telegram.User{ID: uid, FirstName: "User"},
			Message: &telegram.Message{MessageID: 9, Chat: telegram.Chat{ID: chat}},
			Data:    data,
		},
	}
}

func (f *botFixture) makeAdmin(t *testing.T, uid int64) {
	t.Helper()
	if err := f.engine.BootstrapAdministrators(context.Background(), []int64{uid}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
}

func TestSubmissionFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.api.members[100] = "member"

	f.bot.HandleUpdate(ctx, message(100, 100, "https://youtu.be/abc12345678"))

	confirm := f.api.lastSent(t)
	if !strings.Contains(confirm.text, "Вы уверены") || !strings.Contains(confirm.text, "Demo") {
		t.Fatalf("unexpected confirmation: %q", confirm.text)
	}
	if confirm.keyboard == nil || confirm.keyboard.InlineKeyboard[0][0].CallbackData != "yes" {
		t.Fatalf("yes/no keyboard missing: %+v", confirm.keyboard)
	}
	if _, ok := f.sessions.Get(100).(session.AwaitingAccept); !ok {
		t.Fatal("chat should be awaiting confirmation")
	}

	f.bot.HandleUpdate(ctx, callback(100, 100, "yes"))

	if len(f.api.edits) == 0 || f.api.edits[0].text != "Добавлено!" {
		t.Fatalf("expected success edit, got %+v", f.api.edits)
	}
	if f.sessions.Get(100) != nil {
		t.Error("session should be cleared after confirmation")
	}

	req, err := f.store.GetRequestByVideo(ctx, "abc12345678")
	if err != nil || req == nil {
		t.Fatalf("request not persisted: %v", err)
	}
}

func TestAcceptCreditsLinkSender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.api.members[100] = "member"

	f.bot.HandleUpdate(ctx, message(100, 100, "https://youtu.be/abc12345678"))
	// A different user presses the confirm button in the same chat.
	f.bot.HandleUpdate(ctx, callback(100, 200, "yes"))

	req, err := f.store.GetRequestByVideo(ctx, "abc12345678")
	if err != nil || req == nil {
		t.Fatalf("request not persisted: %v", err)
	}
	creator, err := f.store.FirstAction(ctx, req.ID)
	if err != nil || creator == nil {
		t.Fatalf("creator missing: %v", err)
	}
	if creator.UserID != 100 {
		t.Errorf("submission credited to %d, want the link sender 100", creator.UserID)
	}
}

func TestSubmissionDeclined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.api.members[100] = "member"

	f.bot.HandleUpdate(ctx, message(100, 100, "https://youtu.be/abc12345678"))
	f.bot.HandleUpdate(ctx, callback(100, 100, "no"))

	if len(f.api.edits) == 0 || f.api.edits[0].text != "Отменено." {
		t.Fatalf("expected cancel edit, got %+v", f.api.edits)
	}
	if req, _ := f.store.GetRequestByVideo(ctx, "abc12345678"); req != nil {
		t.Error("declined submission must not persist anything")
	}
}

func TestSubmissionRequiresSubscription(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleUpdate(context.Background(), message(100, 100, "https://youtu.be/abc12345678"))

	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "не подписаны") {
		t.Fatalf("expected subscription rejection, got %q", sent.text)
	}
	if f.sessions.Get(100) != nil {
		t.Error("no session should be opened for unsubscribed users")
	}
}

func TestSubmissionRejectsNonVideoText(t *testing.T) {
	f := newFixture(t)
	f.api.members[100] = "member"

	f.bot.HandleUpdate(context.Background(), message(100, 100, "just chatting"))

	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "не похоже на YouTube") {
		t.Fatalf("expected link rejection, got %q", sent.text)
	}
}

func TestSubmissionMetadataFailure(t *testing.T) {
	f := newFixture(t)
	f.api.members[100] = "member"
	f.meta.err = errors.New("oembed down")

	f.bot.HandleUpdate(context.Background(), message(100, 100, "https://youtu.be/abc12345678"))

	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "метаданных") {
		t.Fatalf("expected metadata error message, got %q", sent.text)
	}
}

func TestCooldownRejectionMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.api.members[100] = "member"

	// Second confirmation lands inside the cooldown window.
	f.bot.HandleUpdate(ctx, message(100, 100, "https://youtu.be/abc12345678"))
	f.bot.HandleUpdate(ctx, callback(100, 100, "yes"))
	f.bot.HandleUpdate(ctx, message(100, 100, "https://youtu.be/abc12345678"))
	f.bot.HandleUpdate(ctx, callback(100, 100, "yes"))

	last := f.api.edits[len(f.api.edits)-1]
	if !strings.Contains(last.text, "Слишком часто") {
		t.Fatalf("expected cooldown rejection, got %q", last.text)
	}
}

func TestModeratorInfoByNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeAdmin(t, 1)
	f.api.members[100] = "member"

	f.bot.HandleUpdate(ctx, message(100, 100, "https://youtu.be/abc12345678"))
	f.bot.HandleUpdate(ctx, callback(100, 100, "yes"))

	req, err := f.store.GetRequestByVideo(ctx, "abc12345678")
	if err != nil || req == nil {
		t.Fatalf("request not persisted: %v", err)
	}

	f.bot.HandleUpdate(ctx, message(1, 1, "/1"))

	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "Demo") || !strings.Contains(sent.text, "tg://user?id=100") {
		t.Fatalf("unexpected info message: %q", sent.text)
	}
	if sent.keyboard == nil || sent.keyboard.InlineKeyboard[0][0].CallbackData != "view 1" {
		t.Fatalf("status buttons missing: %+v", sent.keyboard)
	}
}

func TestInfoByNumberIgnoredForOutsiders(t *testing.T) {
	f := newFixture(t)
	f.api.members[100] = "member"

	f.bot.HandleUpdate(context.Background(), message(100, 100, "123"))

	// An outsider sending a bare number goes down the submission path.
	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "не похоже на YouTube") {
		t.Fatalf("expected submission rejection, got %q", sent.text)
	}
}

func TestInlineStatusFlip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeAdmin(t, 1)
	f.api.members[100] = "member"

	f.bot.HandleUpdate(ctx, message(100, 100, "https://youtu.be/abc12345678"))
	f.bot.HandleUpdate(ctx, callback(100, 100, "yes"))

	f.bot.HandleUpdate(ctx, callback(1, 1, "view 1"))

	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "успешно обновлён") {
		t.Fatalf("expected status update confirmation, got %q", sent.text)
	}
	req, _ := f.store.GetRequest(ctx, 1)
	if req == nil || req.ViewedAt == nil {
		t.Error("request should be marked viewed")
	}

	f.bot.HandleUpdate(ctx, callback(1, 1, "ban 1"))
	video, _ := f.store.GetVideo(ctx, "abc12345678")
	if video == nil || !video.Banned {
		t.Error("video should be banned")
	}
}

func TestInlineRequiresRights(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleUpdate(context.Background(), callback(100, 100, "archive_all"))

	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "Недостаточно прав") {
		t.Fatalf("expected rights rejection, got %q", sent.text)
	}
}

func TestArchiveFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeAdmin(t, 1)
	f.api.members[100] = "member"

	f.bot.HandleUpdate(ctx, message(100, 100, "https://youtu.be/abc12345678"))
	f.bot.HandleUpdate(ctx, callback(100, 100, "yes"))

	f.bot.HandleUpdate(ctx, message(1, 1, "/archive"))
	menu := f.api.lastSent(t)
	if menu.keyboard == nil || len(menu.keyboard.InlineKeyboard) != 2 {
		t.Fatalf("archive menu missing: %+v", menu.keyboard)
	}

	f.bot.HandleUpdate(ctx, callback(1, 1, "archive_all"))
	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "запросов успешно архивировано") {
		t.Fatalf("expected archive confirmation, got %q", sent.text)
	}

	// A second sweep finds nothing.
	f.bot.HandleUpdate(ctx, callback(1, 1, "archive_all"))
	sent = f.api.lastSent(t)
	if !strings.Contains(sent.text, "Нет объектов для архивации") {
		t.Fatalf("expected empty-selection message, got %q", sent.text)
	}
}

func TestListCommandAndRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeAdmin(t, 1)

	f.bot.HandleUpdate(ctx, message(1, 1, "/list"))
	sent := f.api.lastSent(t)
	if sent.text != emptyListText {
		t.Fatalf("empty list message = %q", sent.text)
	}
	if sent.keyboard == nil || sent.keyboard.InlineKeyboard[0][0].CallbackData != "list_unviewed" {
		t.Fatalf("list keyboard missing: %+v", sent.keyboard)
	}

	f.bot.HandleUpdate(ctx, callback(1, 1, "list_unviewed"))
	if len(f.api.edits) == 0 || f.api.edits[len(f.api.edits)-1].text != emptyListText {
		t.Fatalf("refresh should edit in place: %+v", f.api.edits)
	}
}

func TestModeratorEnrollmentFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeAdmin(t, 1)
	f.api.members[55] = "member"

	f.bot.HandleUpdate(ctx, message(1, 1, "/addmod"))
	if _, ok := f.sessions.Get(1).(session.AwaitingForward); !ok {
		t.Fatal("chat should be awaiting a forwarded message")
	}

	forward := message(1, 1, "")
	forward.Message.ForwardFrom = &telegram.User{ID: 55, FirstName: "New"}
	f.bot.HandleUpdate(ctx, forward)

	sent := f.api.lastSent(t)
	if sent.text != "Модератор добавлен!" {
		t.Fatalf("expected enrollment confirmation, got %q", sent.text)
	}
	if f.sessions.Get(1) != nil {
		t.Error("session should be cleared")
	}

	rights, _ := f.engine.CheckRights(ctx, 55)
	if rights != engine.RightsModerator {
		t.Errorf("rights = %v, want moderator", rights)
	}
}

func TestModeratorEnrollmentRequiresForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeAdmin(t, 1)

	f.bot.HandleUpdate(ctx, message(1, 1, "/addmod"))
	f.bot.HandleUpdate(ctx, message(1, 1, "just text"))

	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "Перешлите сообщение") {
		t.Fatalf("expected forward prompt, got %q", sent.text)
	}
}

func TestModeratorEnrollmentRequiresSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeAdmin(t, 1)

	f.bot.HandleUpdate(ctx, message(1, 1, "/addmod"))
	forward := message(1, 1, "")
	forward.Message.ForwardFrom = &telegram.User{ID: 55, FirstName: "New"}
	f.bot.HandleUpdate(ctx, forward)

	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "Не подписан на канал") {
		t.Fatalf("expected subscription rejection, got %q", sent.text)
	}
}

func TestRemoveModeratorFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeAdmin(t, 1)
	f.api.members[55] = "member"

	f.bot.HandleUpdate(ctx, message(1, 1, "/addmod"))
	forward := message(1, 1, "")
	forward.Message.ForwardFrom = &telegram.User{ID: 55, FirstName: "New"}
	f.bot.HandleUpdate(ctx, forward)

	f.bot.HandleUpdate(ctx, message(1, 1, "/remmod 55"))
	if _, ok := f.sessions.Get(1).(session.AwaitingRemoveConfirm); !ok {
		t.Fatal("chat should be awaiting removal confirmation")
	}

	f.bot.HandleUpdate(ctx, callback(1, 1, "yes"))
	last := f.api.edits[len(f.api.edits)-1]
	if last.text != "Модератор удалён!" {
		t.Fatalf("expected removal confirmation, got %q", last.text)
	}

	rights, _ := f.engine.CheckRights(ctx, 55)
	if rights != engine.RightsNone {
		t.Errorf("rights = %v, want none", rights)
	}
}

func TestRemoveModeratorDeclined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeAdmin(t, 1)

	f.bot.HandleUpdate(ctx, message(1, 1, "/remmod 55"))
	f.bot.HandleUpdate(ctx, callback(1, 1, "no"))

	last := f.api.edits[len(f.api.edits)-1]
	if !strings.Contains(last.text, "отменено") {
		t.Fatalf("expected cancel message, got %q", last.text)
	}
}

func TestRemoveModeratorRequiresArgument(t *testing.T) {
	f := newFixture(t)
	f.makeAdmin(t, 1)

	f.bot.HandleUpdate(context.Background(), message(1, 1, "/remmod"))

	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "необходимо указать UID") {
		t.Fatalf("expected usage message, got %q", sent.text)
	}
}

func TestAddModRequiresAdministrator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeAdmin(t, 1)
	f.api.members[55] = "member"

	// Enroll a plain moderator, then have them try /addmod.
	f.bot.HandleUpdate(ctx, message(1, 1, "/addmod"))
	forward := message(1, 1, "")
	forward.Message.ForwardFrom = &telegram.User{ID: 55, FirstName: "New"}
	f.bot.HandleUpdate(ctx, forward)

	f.bot.HandleUpdate(ctx, message(55, 55, "/addmod"))
	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "Недостаточно прав") {
		t.Fatalf("expected rights rejection, got %q", sent.text)
	}
}

func TestNotifyToggleCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeAdmin(t, 1)

	f.bot.HandleUpdate(ctx, message(1, 1, "/notify"))
	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "отключены") {
		t.Fatalf("first toggle should disable, got %q", sent.text)
	}

	f.bot.HandleUpdate(ctx, message(1, 1, "/notify"))
	sent = f.api.lastSent(t)
	if !strings.Contains(sent.text, "включены") {
		t.Fatalf("second toggle should enable, got %q", sent.text)
	}
}

func TestModsListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeAdmin(t, 1)

	f.bot.HandleUpdate(ctx, message(1, 1, "/mods"))
	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "Модераторы:") || !strings.Contains(sent.text, "UID: 1") {
		t.Fatalf("unexpected moderators listing: %q", sent.text)
	}
}

func TestUserStartGreeting(t *testing.T) {
	f := newFixture(t)
	f.api.members[100] = "member"

	f.bot.HandleUpdate(context.Background(), message(100, 100, "/start"))

	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "Приветствую") {
		t.Fatalf("expected greeting, got %q", sent.text)
	}
}

func TestModeratorStartShowsHelp(t *testing.T) {
	f := newFixture(t)
	f.makeAdmin(t, 1)

	f.bot.HandleUpdate(context.Background(), message(1, 1, "/start"))

	sent := f.api.lastSent(t)
	if !strings.Contains(sent.text, "Список поддерживаемых команд") {
		t.Fatalf("expected command list, got %q", sent.text)
	}
}

func TestCancelCallbackClearsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeAdmin(t, 1)

	f.bot.HandleUpdate(ctx, message(1, 1, "/addmod"))
	f.bot.HandleUpdate(ctx, callback(1, 1, "cancel"))

	if f.sessions.Get(1) != nil {
		t.Error("cancel should clear the session")
	}
}

func TestUnparseableCallbackIgnored(t *testing.T) {
	f := newFixture(t)

	before := len(f.api.sent)
	f.bot.HandleUpdate(context.Background(), callback(100, 100, "bogus data"))
	if len(f.api.sent) != before {
		t.Errorf("garbage callback data should be ignored, sent %+v", f.api.sent)
	}
}
