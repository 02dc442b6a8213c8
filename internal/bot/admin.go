package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sctables/internal/config"
)

// showData presents the config editor: one button per variable plus reset
// and back actions.
func (b *Bot) showData(ctx context.Context, s *session) error {
	cfg, err := b.Config.Load(ctx)
	if err != nil {
		return err
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, key := range config.Keys() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(key, key)))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Сбросить настройки до серверных", "ask")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Вернуться назад", "menu")))

	text := "Текущие переменные:\n"
	for _, key := range config.Keys() {
		text += fmt.Sprintf("\n<b>%s</b>: %s", key, preview(cfg[key]))
	}
	text += "\n\nВыберите переменную, которую хотите изменить."

	msg := tgbotapi.NewMessage(s.UserID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(s, msg)
	s.State = stateDataRequesting
	return nil
}

func (b *Bot) handleDataRequesting(ctx context.Context, s *session, upd tgbotapi.Update) error {
	if upd.CallbackQuery == nil {
		return b.showData(ctx, s)
	}
	switch data := upd.CallbackQuery.Data; data {
	case "menu":
		return b.showMenu(ctx, s)
	case "ask":
		markup := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Да", "change_yes"),
				tgbotapi.NewInlineKeyboardButtonData("Нет", "change_no")))
		msg := tgbotapi.NewMessage(s.UserID,
			"Вы уверены, что хотите сбросить настройки до серверных?")
		msg.ReplyMarkup = markup
		b.send(s, msg)
		s.State = stateDataResetting
		return nil
	default:
		if !isConfigKey(data) {
			return b.showData(ctx, s)
		}
		cfg, err := b.Config.Load(ctx)
		if err != nil {
			return err
		}
		s.Payload["key"] = data
		markup := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Вернуться назад", "data")))
		msg := tgbotapi.NewMessage(s.UserID, fmt.Sprintf(
			"На что вы хотите заменить <b>%s</b>?\n\nТекущее значение: %s",
			data, preview(cfg[data])))
		msg.ParseMode = tgbotapi.ModeHTML
		msg.ReplyMarkup = markup
		b.send(s, msg)
		s.State = stateData
		return nil
	}
}

func (b *Bot) handleData(ctx context.Context, s *session, upd tgbotapi.Update) error {
	if upd.CallbackQuery != nil {
		// Only the back button lives in this state.
		return b.showData(ctx, s)
	}
	if upd.Message == nil || upd.Message.Text == "" {
		return nil
	}

	key := s.Payload["key"]
	if !isConfigKey(key) {
		return b.showData(ctx, s)
	}
	value := upd.Message.Text

	if key == config.KeyRunHour {
		if _, err := config.ValidateHour(value); err != nil {
			b.reply(s, "Час должен быть целым числом от 8 до 23 включительно.")
			return b.showData(ctx, s)
		}
	}

	cfg, err := b.Config.Load(ctx)
	if err != nil {
		return err
	}
	cfg[key] = value
	if err := b.Config.Save(ctx, cfg); err != nil {
		return err
	}
	delete(s.Payload, "key")
	b.reply(s, fmt.Sprintf("Переменная «%s» была обновлена.", key))
	return b.showData(ctx, s)
}

func (b *Bot) handleDataResetting(ctx context.Context, s *session, upd tgbotapi.Update) error {
	if upd.CallbackQuery == nil {
		return b.showMenu(ctx, s)
	}
	if upd.CallbackQuery.Data == "change_yes" {
		if _, err := b.Config.Reset(ctx); err != nil {
			return err
		}
		b.reply(s, "Настройки были успешно сброшены.")
	}
	return b.showMenu(ctx, s)
}

func isConfigKey(key string) bool {
	for _, k := range config.Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// preview truncates long config values, the service account JSON in
// particular, so the editor message stays readable.
func preview(v string) string {
	if v == "" {
		return "<i>не задано</i>"
	}
	const max = 60
	if len(v) > max {
		return v[:max] + "…"
	}
	return v
}
