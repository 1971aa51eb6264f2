// Package bot translates Telegram updates into workflow calls and renders
// the results back as chat messages.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/doggywatch/doggywatch/internal/config"
	"github.com/doggywatch/doggywatch/internal/engine"
	"github.com/doggywatch/doggywatch/internal/session"
	"github.com/doggywatch/doggywatch/internal/store"
	"github.com/doggywatch/doggywatch/internal/telegram"
	"github.com/doggywatch/doggywatch/internal/youtube"
)

// api is the slice of the Telegram client the dispatcher calls.
type api interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	SendMessageNoPreview(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error
	EditMessageTextNoPreview(ctx context.Context, chatID, messageID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, id, text string) error
	GetChatMember(ctx context.Context, chatID, userID int64) (*telegram.ChatMember, error)
}

type metadataFetcher interface {
	Metadata(ctx context.Context, id string) (*youtube.Metadata, error)
}

type Bot struct {
	api      api
	engine   *engine.Engine
	sessions *session.Manager
	meta     metadataFetcher

	channel    int64
	inviteHash string
	cooldown   time.Duration
	version    string

	log zerolog.Logger
}

func New(client api, e *engine.Engine, sessions *session.Manager, meta metadataFetcher, cfg *config.Config, version string, log zerolog.Logger) *Bot {
	return &Bot{
		api:        client,
		engine:     e,
		sessions:   sessions,
		meta:       meta,
		channel:    cfg.Channel,
		inviteHash: cfg.ChannelInviteHash,
		cooldown:   cfg.Cooldown,
		version:    version,
		log:        log.With().Str("component", "bot").Logger(),
	}
}

// HandleUpdate routes one update. Every update gets its own correlation id
// so concurrent handlers can be told apart in the logs.
func (b *Bot) HandleUpdate(ctx context.Context, upd telegram.Update) {
	log := b.log.With().
		Str("correlation_id", uuid.NewString()).
		Int64("update_id", upd.UpdateID).
		Logger()

	switch {
	case upd.Message != nil:
		b.handleMessage(ctx, log, upd.Message)
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, log, upd.CallbackQuery)
	default:
		log.Debug().Msg("update carries nothing to handle")
	}
}

func (b *Bot) handleMessage(ctx context.Context, log zerolog.Logger, msg *telegram.Message) {
	if msg.From == nil || msg.Text == "" && msg.ForwardFrom == nil {
		return
	}
	uid := msg.From.ID
	chat := msg.Chat.ID
	log = log.With().Int64("uid", uid).Int64("chat", chat).Logger()

	rights, err := b.engine.CheckRights(ctx, uid)
	if err != nil {
		log.Error().Err(err).Msg("rights check failed")
		b.send(ctx, log, chat, "Произошла ошибка!", nil)
		return
	}

	if _, waiting := b.sessions.Get(chat).(session.AwaitingForward); waiting {
		b.handleForward(ctx, log, msg)
		return
	}

	if rights != engine.RightsNone {
		if rid, ok := RecogniseRequestID(msg.Text); ok {
			b.sendRequestInfo(ctx, log, chat, rid)
			return
		}
	}

	if cmd, arg, ok := parseCommand(msg.Text); ok {
		b.handleCommand(ctx, log, msg, rights, cmd, arg)
		return
	}

	b.handleSubmission(ctx, log, msg)
}

// parseCommand splits "/cmd arg" into its parts. Bot-name suffixes like
// /list@somebot are accepted.
func parseCommand(text string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, tail, _ := strings.Cut(text, " ")
	head, _, _ = strings.Cut(head, "@")
	cmd = strings.TrimPrefix(head, "/")
	if cmd == "" {
		return "", "", false
	}
	return cmd, strings.TrimSpace(tail), true
}

func (b *Bot) handleCommand(ctx context.Context, log zerolog.Logger, msg *telegram.Message, rights engine.Rights, cmd, arg string) {
	chat := msg.Chat.ID

	if rights == engine.RightsNone {
		b.handleUserCommand(ctx, log, msg, cmd)
		return
	}

	switch cmd {
	case "start", "help":
		b.send(ctx, log, chat, helpText, nil)
	case "list":
		b.sendList(ctx, log, chat)
	case "archive":
		b.send(ctx, log, chat, "Выберите действие с архивом:", archiveKeyboard())
	case "mods":
		b.sendModerators(ctx, log, chat)
	case "addmod":
		if rights != engine.RightsAdministrator {
			b.send(ctx, log, chat, "Недостаточно прав!", nil)
			return
		}
		b.send(ctx, log, chat, "Перешлите любое сообщение от человека которого вы хотите добавить как модератора:", cancelKeyboard())
		b.sessions.Set(chat, session.AwaitingForward{})
	case "remmod":
		if rights != engine.RightsAdministrator {
			b.send(ctx, log, chat, "Недостаточно прав!", nil)
			return
		}
		target, err := strconv.ParseInt(arg, 10, 64)
		if arg == "" || err != nil {
			b.send(ctx, log, chat, "После команды необходимо указать UID модератора. (/remmod 1234567)", nil)
			return
		}
		b.send(ctx, log, chat, "Вы уверены что хотите удалить модератора?", yesNoKeyboard())
		b.sessions.Set(chat, session.AwaitingRemoveConfirm{Target: target})
	case "notify":
		b.toggleNotify(ctx, log, chat, msg.From.ID)
	case "about":
		b.send(ctx, log, chat, aboutText(rights, b.channel, b.cooldown, b.version), nil)
	default:
		log.Debug().Str("command", cmd).Msg("unknown command")
	}
}

// handleUserCommand covers the few commands open to outsiders. Everything
// else requires moderator rights.
func (b *Bot) handleUserCommand(ctx context.Context, log zerolog.Logger, msg *telegram.Message, cmd string) {
	chat := msg.Chat.ID
	if _, ok := b.checkSubscription(ctx, log, msg.From.ID); !ok {
		b.send(ctx, log, chat, b.notSubscribedText(), nil)
		return
	}

	switch cmd {
	case "start":
		b.send(ctx, log, chat, greetingText(msg.From.FirstName), nil)
	case "about":
		b.send(ctx, log, chat, aboutText(engine.RightsNone, b.channel, b.cooldown, b.version), nil)
	default:
		b.send(ctx, log, chat, "?", nil)
	}
}

func (b *Bot) handleSubmission(ctx context.Context, log zerolog.Logger, msg *telegram.Message) {
	chat := msg.Chat.ID

	if _, ok := b.checkSubscription(ctx, log, msg.From.ID); !ok {
		b.send(ctx, log, chat, b.notSubscribedText(), nil)
		return
	}

	ytid, ok := youtube.ExtractVideoID(msg.Text)
	if !ok {
		b.send(ctx, log, chat, "Это не похоже на YouTube видео...", nil)
		return
	}

	meta, err := b.meta.Metadata(ctx, ytid)
	if err != nil {
		log.Error().Err(err).Str("ytid", ytid).Msg("metadata fetch failed")
		b.send(ctx, log, chat, errorText(fmt.Errorf("%w: %v", engine.ErrUpstreamUnavailable, err)), nil)
		return
	}

	b.send(ctx, log, chat, fmt.Sprintf("Вы уверены что хотите добавить <b>%s</b>", meta.Title), yesNoKeyboard())
	b.sessions.Set(chat, session.AwaitingAccept{YtID: ytid, UID: msg.From.ID, Title: meta.Title})
}

func (b *Bot) handleForward(ctx context.Context, log zerolog.Logger, msg *telegram.Message) {
	chat := msg.Chat.ID
	defer b.sessions.Clear(chat)

	if msg.ForwardFrom == nil {
		b.send(ctx, log, chat, "Ошибка! Перешлите сообщение!", nil)
		return
	}
	target := msg.ForwardFrom.ID

	if _, ok := b.checkSubscription(ctx, log, target); !ok {
		b.send(ctx, log, chat, "Ошибка! Не подписан на канал!", nil)
		return
	}

	if err := b.engine.EnrollModerator(ctx, msg.From.ID, target); err != nil {
		log.Warn().Err(err).Int64("target", target).Msg("enrollment failed")
		b.send(ctx, log, chat, errorText(err), nil)
		return
	}
	b.send(ctx, log, chat, "Модератор добавлен!", nil)
}

func (b *Bot) handleCallback(ctx context.Context, log zerolog.Logger, q *telegram.CallbackQuery) {
	if q.Message == nil {
		return
	}
	chat := q.Message.Chat.ID
	log = log.With().Int64("uid", q.From.ID).Int64("chat", chat).Logger()

	if err := b.api.AnswerCallbackQuery(ctx, q.ID, ""); err != nil {
		log.Warn().Err(err).Msg("answer callback failed")
	}

	if cmd, ok := ParseInlineCommand(q.Data); ok {
		b.handleInline(ctx, log, q, cmd)
		return
	}

	switch st := b.sessions.Get(chat).(type) {
	case session.AwaitingAccept:
		b.handleAccept(ctx, log, q, st)
	case session.AwaitingRemoveConfirm:
		b.handleRemoveConfirm(ctx, log, q, st)
	default:
		log.Debug().Str("data", q.Data).Msg("unhandled callback")
	}
}

func (b *Bot) handleInline(ctx context.Context, log zerolog.Logger, q *telegram.CallbackQuery, cmd InlineCommand) {
	chat := q.Message.Chat.ID

	if cmd.Op == OpCancel {
		b.sessions.Clear(chat)
		return
	}

	rights, err := b.engine.CheckRights(ctx, q.From.ID)
	if err != nil {
		log.Error().Err(err).Msg("rights check failed")
		return
	}
	if rights == engine.RightsNone {
		b.send(ctx, log, chat, "Недостаточно прав!", nil)
		return
	}

	switch cmd.Op {
	case OpArchiveViewed:
		count, err := b.engine.Archive(ctx, store.ScopeViewed)
		if err != nil {
			b.send(ctx, log, chat, errorText(err), nil)
			return
		}
		b.send(ctx, log, chat, fmt.Sprintf("<b>\"%d\"</b> просмотренных запросов успешно архивировано!", count), nil)
	case OpArchiveAll:
		count, err := b.engine.Archive(ctx, store.ScopeAll)
		if err != nil {
			b.send(ctx, log, chat, errorText(err), nil)
			return
		}
		b.send(ctx, log, chat, fmt.Sprintf("<b>\"%d\"</b> запросов успешно архивировано!", count), nil)
	case OpListUnviewed:
		items, err := b.engine.ListOpen(ctx, true)
		if err != nil {
			log.Error().Err(err).Msg("list failed")
			b.send(ctx, log, chat, "Произошла ошибка!", nil)
			return
		}
		text := renderList(items)
		if text == "" {
			text = emptyListText
		}
		if err := b.api.EditMessageTextNoPreview(ctx, chat, q.Message.MessageID, text, listKeyboard(true)); err != nil {
			log.Warn().Err(err).Msg("edit failed")
		}
	case OpView, OpUnview:
		video, err := b.engine.SetViewed(ctx, cmd.RID, cmd.Op == OpView)
		if err != nil {
			b.send(ctx, log, chat, errorText(err), nil)
			return
		}
		b.send(ctx, log, chat, fmt.Sprintf("Статус видео <b>\"%s\"</b> успешно обновлён!", video.Title), nil)
	case OpBan, OpPardon:
		info, err := b.engine.Info(ctx, cmd.RID)
		if err != nil {
			b.send(ctx, log, chat, errorText(err), nil)
			return
		}
		video, err := b.engine.SetBanned(ctx, info.Video.YtID, cmd.Op == OpBan)
		if err != nil {
			b.send(ctx, log, chat, errorText(err), nil)
			return
		}
		b.send(ctx, log, chat, fmt.Sprintf("Статус видео <b>\"%s\"</b> успешно обновлён!", video.Title), nil)
	}
}

func (b *Bot) handleAccept(ctx context.Context, log zerolog.Logger, q *telegram.CallbackQuery, st session.AwaitingAccept) {
	chat := q.Message.Chat.ID
	defer b.sessions.Clear(chat)

	text := "Отменено."
	if q.Data == "yes" {
		if _, err := b.engine.Submit(ctx, st.YtID, st.Title, st.UID); err != nil {
			log.Warn().Err(err).Str("ytid", st.YtID).Msg("submission rejected")
			text = errorText(err)
		} else {
			text = "Добавлено!"
		}
	}
	if err := b.api.EditMessageText(ctx, chat, q.Message.MessageID, text, nil); err != nil {
		log.Warn().Err(err).Msg("edit failed")
	}
}

func (b *Bot) handleRemoveConfirm(ctx context.Context, log zerolog.Logger, q *telegram.CallbackQuery, st session.AwaitingRemoveConfirm) {
	chat := q.Message.Chat.ID
	defer b.sessions.Clear(chat)

	text := "Раскулачивание модера отменено."
	if q.Data == "yes" {
		removed, err := b.engine.RemoveModerator(ctx, q.From.ID, st.Target)
		switch {
		case err != nil:
			log.Warn().Err(err).Int64("target", st.Target).Msg("removal failed")
			text = errorText(err)
		case removed:
			text = "Модератор удалён!"
		default:
			text = "Произошла ошибка!\nПо всей видимости такого модератора не существует."
		}
	}
	if err := b.api.EditMessageText(ctx, chat, q.Message.MessageID, text, nil); err != nil {
		log.Warn().Err(err).Msg("edit failed")
	}
}

func (b *Bot) sendList(ctx context.Context, log zerolog.Logger, chat int64) {
	items, err := b.engine.ListOpen(ctx, false)
	if err != nil {
		log.Error().Err(err).Msg("list failed")
		b.send(ctx, log, chat, "Произошла ошибка!", nil)
		return
	}
	text := renderList(items)
	if text == "" {
		text = emptyListText
	}
	if _, err := b.api.SendMessageNoPreview(ctx, chat, text, listKeyboard(false)); err != nil {
		log.Warn().Err(err).Int64("chat", chat).Msg("send failed")
	}
}

func (b *Bot) sendRequestInfo(ctx context.Context, log zerolog.Logger, chat, rid int64) {
	info, err := b.engine.Info(ctx, rid)
	if err != nil {
		b.send(ctx, log, chat, errorText(err), nil)
		return
	}
	name := b.memberName(ctx, info.Creator.UserID)
	b.send(ctx, log, chat, renderInfo(info, name), infoKeyboard(info))
}

func (b *Bot) sendModerators(ctx context.Context, log zerolog.Logger, chat int64) {
	mods, err := b.engine.Moderators(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list moderators failed")
		b.send(ctx, log, chat, "Произошла ошибка!", nil)
		return
	}
	if len(mods) == 0 {
		b.send(ctx, log, chat, "Модераторов нет", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("Модераторы:")
	for _, mod := range mods {
		name := b.memberName(ctx, mod.ID)
		fmt.Fprintf(&sb, "\n - %s\nНа посту с %s, UID: %d",
			mention(mod.ID, name), mod.CreatedAt.Format("2006-01-02 15:04:05"), mod.ID)
	}
	b.send(ctx, log, chat, sb.String(), nil)
}

func (b *Bot) toggleNotify(ctx context.Context, log zerolog.Logger, chat, uid int64) {
	mod, err := b.engine.ToggleNotify(ctx, uid)
	if err != nil {
		b.send(ctx, log, chat, errorText(err), nil)
		return
	}
	if mod.Notify {
		b.send(ctx, log, chat, "Теперь уведомления <b>включены</b>!", nil)
	} else {
		b.send(ctx, log, chat, "Теперь уведомления <b>отключены</b>!", nil)
	}
}

// checkSubscription verifies the user is present in the reference channel.
func (b *Bot) checkSubscription(ctx context.Context, log zerolog.Logger, uid int64) (*telegram.ChatMember, bool) {
	member, err := b.api.GetChatMember(ctx, b.channel, uid)
	if err != nil {
		log.Debug().Err(err).Int64("uid", uid).Msg("subscription check failed")
		return nil, false
	}
	if !member.Subscribed() {
		return nil, false
	}
	return member, true
}

// memberName resolves a display name for a user, falling back to the bare
// id when the lookup fails.
func (b *Bot) memberName(ctx context.Context, uid int64) string {
	member, err := b.api.GetChatMember(ctx, uid, uid)
	if err != nil || member.User.FirstName == "" {
		return strconv.FormatInt(uid, 10)
	}
	return member.User.FirstName
}

func (b *Bot) notSubscribedText() string {
	if b.inviteHash != "" {
		return fmt.Sprintf("Вы не подписаны на <a href=\"tg://join?invite=%s\">Telegram канал</a>!", b.inviteHash)
	}
	return "Вы не подписаны на Telegram канал!"
}

func (b *Bot) send(ctx context.Context, log zerolog.Logger, chat int64, text string, keyboard *telegram.InlineKeyboardMarkup) {
	if _, err := b.api.SendMessage(ctx, chat, text, keyboard); err != nil {
		log.Warn().Err(err).Int64("chat", chat).Msg("send failed")
	}
}

// errorText translates workflow errors into the messages users see.
func errorText(err error) string {
	var viewed *engine.AlreadyViewedError
	switch {
	case errors.As(err, &viewed):
		return fmt.Sprintf("Ошибка: Просмотрено!\nВидео было отмечено как просмотренное %s",
			viewed.ViewedAt.Format("2006-01-02 15:04:05"))
	case errors.Is(err, engine.ErrRateLimited):
		return "Слишком часто!"
	case errors.Is(err, engine.ErrBanned):
		return "Ошибка: В чёрном списке!\nВероятнее всего был неоднократно просмотрен."
	case errors.Is(err, engine.ErrDuplicateContribution):
		return "Ошибка: Такой запрос уже существует!\nВы уже запрашивали данное видео ранее."
	case errors.Is(err, engine.ErrEmptySelection):
		return "Нет объектов для архивации!"
	case errors.Is(err, engine.ErrNotFound):
		return "Не найдено."
	case errors.Is(err, engine.ErrNotPermitted):
		return "Недостаточно прав!"
	case errors.Is(err, engine.ErrAlreadyEnrolled):
		return "Произошла ошибка!\nМожет данный модератор уже добавлен?"
	case errors.Is(err, engine.ErrUpstreamUnavailable):
		return "Ошибка при получении метаданных видео!"
	default:
		return "Произошла ошибка!"
	}
}
