package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sctables/internal/api/google/serviceaccount"
	"sctables/internal/api/google/sheets"
	"sctables/internal/config"
)

// handleUnlock processes spreadsheet links sent as text or as a document and
// grants the configured email owner rights on each. Links that Drive refuses
// because of sharing rate limits are reported back; any other Drive error
// aborts the whole batch.
func (b *Bot) handleUnlock(ctx context.Context, s *session, upd tgbotapi.Update) error {
	if upd.CallbackQuery != nil {
		return b.showMenu(ctx, s)
	}
	if upd.Message == nil {
		return nil
	}

	text := upd.Message.Text
	if doc := upd.Message.Document; doc != nil {
		var err error
		text, err = b.downloadDocument(ctx, doc.FileID)
		if err != nil {
			return fmt.Errorf("downloading document: %w", err)
		}
	}

	urls := extractSpreadsheetURLs(text)
	if len(urls) == 0 {
		b.reply(s, "Ссылок на таблицы не найдено. Пришлите их текстом или файлом.")
		return nil
	}

	b.reply(s, fmt.Sprintf("Найдено ссылок: %d. Выдаю права...", len(urls)))

	done, failed, err := b.unlock(ctx, urls)
	if err != nil {
		return err
	}

	report := fmt.Sprintf("Готово! Разблокировано таблиц: %d из %d.", done, len(urls))
	if len(failed) > 0 {
		report += "\n\nНе удалось разблокировать:\n" + strings.Join(failed, "\n")
	}
	b.reply(s, report)
	return b.showMenu(ctx, s)
}

func (b *Bot) unlock(ctx context.Context, urls []string) (done int, failed []string, err error) {
	cfg, err := b.Config.Load(ctx)
	if err != nil {
		return 0, nil, err
	}
	key, err := serviceaccount.LoadKey([]byte(cfg[config.KeyServiceAccount]))
	if err != nil {
		return 0, nil, fmt.Errorf("loading service account key: %w", err)
	}
	c := &sheets.Client{Key: key, HTTPClient: b.HTTPClient}

	for _, u := range urls {
		id, err := sheets.ParseURL(u)
		if err != nil {
			failed = append(failed, u)
			continue
		}
		shared, err := c.Share(ctx, id, cfg[config.KeyEmail], sheets.RoleOwner, true)
		if err != nil {
			return done, failed, err
		}
		if !shared {
			failed = append(failed, u)
			continue
		}
		done++
	}
	return done, failed, nil
}

func (b *Bot) downloadDocument(ctx context.Context, fileID string) (string, error) {
	url, err := b.API.GetFileDirectURL(fileID)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	client := b.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("want 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// extractSpreadsheetURLs picks out everything that looks like a Google
// Sheets link, one or many per line.
func extractSpreadsheetURLs(text string) []string {
	var urls []string
	seen := make(map[string]bool)
	for _, f := range strings.Fields(text) {
		f = strings.Trim(f, ",;")
		if _, err := sheets.ParseURL(f); err != nil {
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		urls = append(urls, f)
	}
	return urls
}
