// Package bot implements the Telegram surface: the /start menu, the admin
// config editor, the bulk spreadsheet unlock flow and run notifications.
//
// Each user's position in the conversation is an explicit finite-state
// machine: a state tag plus a small payload, persisted in the store so a
// conversation survives process restarts. A registry maps state tags to
// handlers.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sctables/internal/config"
	"sctables/internal/pipeline"
	"sctables/internal/store"
)

// Conversation states.
const (
	stateMenu           = "menu"
	stateDataRequesting = "data_requesting"
	stateData           = "data"
	stateDataResetting  = "data_resetting"
	stateUnlock         = "unlock"
)

// Sender is the subset of [tgbotapi.BotAPI] the bot uses. It exists so
// tests can substitute a fake.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot handles Telegram updates.
type Bot struct {
	API    Sender
	Store  store.Store
	Config *config.Service
	Log    *slog.Logger
	// RunNow triggers a manual batch run. It returns
	// [pipeline.ErrAlreadyRunning] when a run is already active.
	RunNow func() error
	// HTTPClient is used to download documents sent to the unlock flow.
	HTTPClient *http.Client

	handlers map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, s *session, upd tgbotapi.Update) error

// New returns a ready to use Bot.
func New(api Sender, st store.Store, cfg *config.Service, log *slog.Logger, runNow func() error) *Bot {
	b := &Bot{
		API:    api,
		Store:  st,
		Config: cfg,
		Log:    log,
		RunNow: runNow,
	}
	b.handlers = map[string]handlerFunc{
		stateMenu:           b.handleMenu,
		stateDataRequesting: b.handleDataRequesting,
		stateData:           b.handleData,
		stateDataResetting:  b.handleDataResetting,
		stateUnlock:         b.handleUnlock,
	}
	return b
}

// Run consumes updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}

// HandleUpdate routes a single update through the conversation state
// machine.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	var userID int64
	switch {
	case upd.Message != nil && upd.Message.From != nil:
		userID = upd.Message.From.ID
	case upd.CallbackQuery != nil:
		userID = upd.CallbackQuery.From.ID
		// Clear the button spinner regardless of what happens next.
		if _, err := b.API.Request(tgbotapi.NewCallback(upd.CallbackQuery.ID, "")); err != nil {
			b.Log.Warn("answering callback query", "user", userID, "error", err)
		}
	default:
		return
	}

	s, err := b.session(ctx, userID)
	if err != nil {
		b.Log.Error("loading session", "user", userID, "error", err)
		return
	}

	if upd.Message != nil && upd.Message.IsCommand() {
		if upd.Message.Command() == "start" {
			if err := b.start(ctx, s); err != nil {
				b.Log.Error("handling /start", "user", userID, "error", err)
			}
			return
		}
		// Any other command resets the conversation to the menu instead
		// of being fed to the current state's handler.
		if err := b.showMenu(ctx, s); err != nil {
			b.Log.Error("showing menu", "user", userID, "error", err)
		}
		if err := b.saveSession(ctx, s); err != nil {
			b.Log.Error("saving session", "user", userID, "error", err)
		}
		return
	}

	h, ok := b.handlers[s.State]
	if !ok {
		h = func(ctx context.Context, s *session, _ tgbotapi.Update) error {
			return b.showMenu(ctx, s)
		}
	}
	if err := h(ctx, s, upd); err != nil {
		b.Log.Error("handling update", "user", userID, "state", s.State, "error", err)
		b.reply(s, "Произошла ошибка. Попробуйте ещё раз.")
	}
	if err := b.saveSession(ctx, s); err != nil {
		b.Log.Error("saving session", "user", userID, "error", err)
	}
}

// start registers the user as a subscriber and shows the menu.
func (b *Bot) start(ctx context.Context, s *session) error {
	if err := addSubscriber(ctx, b.Store, s.UserID); err != nil {
		return err
	}
	if err := b.showMenu(ctx, s); err != nil {
		return err
	}
	return b.saveSession(ctx, s)
}

func (b *Bot) showMenu(_ context.Context, s *session) error {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Запустить работу вручную", "manual")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Настроить переменные", "admin")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Разблокировать таблицы", "unlock_spreads")),
	)
	msg := tgbotapi.NewMessage(s.UserID, "Меню")
	msg.ReplyMarkup = markup
	b.send(s, msg)
	s.State = stateMenu
	return nil
}

func (b *Bot) handleMenu(ctx context.Context, s *session, upd tgbotapi.Update) error {
	if upd.CallbackQuery == nil {
		return b.showMenu(ctx, s)
	}
	switch upd.CallbackQuery.Data {
	case "manual":
		if err := b.RunNow(); err != nil {
			if errors.Is(err, pipeline.ErrAlreadyRunning) {
				b.reply(s, "Работа уже выполняется.")
				return nil
			}
			return err
		}
		return nil
	case "admin":
		return b.showData(ctx, s)
	case "unlock_spreads":
		markup := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Вернуться назад", "menu")))
		msg := tgbotapi.NewMessage(s.UserID,
			"Пришлите ссылки на таблицы текстом или файлом — каждой будут выданы права.")
		msg.ReplyMarkup = markup
		b.send(s, msg)
		s.State = stateUnlock
		return nil
	}
	return b.showMenu(ctx, s)
}

// session management

type session struct {
	UserID  int64             `json:"user_id"`
	State   string            `json:"state"`
	Payload map[string]string `json:"payload,omitempty"`
}

func sessionKey(userID int64) string {
	return "session/" + strconv.FormatInt(userID, 10)
}

func (b *Bot) session(ctx context.Context, userID int64) (*session, error) {
	data, err := b.Store.Get(ctx, sessionKey(userID))
	if err != nil {
		return nil, err
	}
	s := &session{UserID: userID, State: stateMenu}
	if data != nil {
		if err := json.Unmarshal(data, s); err != nil {
			return nil, err
		}
	}
	if s.Payload == nil {
		s.Payload = make(map[string]string)
	}
	return s, nil
}

func (b *Bot) saveSession(ctx context.Context, s *session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return b.Store.Set(ctx, sessionKey(s.UserID), data)
}

// send delivers a message, deleting the previously sent menu message first
// so the chat always shows a single active menu.
func (b *Bot) send(s *session, c tgbotapi.Chattable) {
	if idStr, ok := s.Payload["last_msg"]; ok {
		if id, err := strconv.Atoi(idStr); err == nil {
			if _, err := b.API.Request(tgbotapi.NewDeleteMessage(s.UserID, id)); err != nil {
				b.Log.Warn("deleting previous menu message", "user", s.UserID, "error", err)
			}
		}
		delete(s.Payload, "last_msg")
	}
	msg, err := b.API.Send(c)
	if err != nil {
		b.Log.Warn("sending message", "user", s.UserID, "error", err)
		return
	}
	s.Payload["last_msg"] = strconv.Itoa(msg.MessageID)
}

// reply sends a plain one-off message that is not part of the menu chain.
func (b *Bot) reply(s *session, text string) {
	if _, err := b.API.Send(tgbotapi.NewMessage(s.UserID, text)); err != nil {
		b.Log.Warn("sending reply", "user", s.UserID, "error", err)
	}
}

// subscribers

const subscribersKey = "subscribers"

func addSubscriber(ctx context.Context, st store.Store, userID int64) error {
	ids, err := Subscribers(ctx, st)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == userID {
			return nil
		}
	}
	ids = append(ids, userID)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return st.Set(ctx, subscribersKey, data)
}

// Subscribers returns the users who have issued /start and receive run
// notifications.
func Subscribers(ctx context.Context, st store.Store) ([]int64, error) {
	data, err := st.Get(ctx, subscribersKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("corrupted subscriber list: %w", err)
	}
	return ids, nil
}
