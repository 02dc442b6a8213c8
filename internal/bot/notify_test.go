package bot

import (
	"context"
	"io"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sctables/internal/store"
	"sctables/internal/testutil"
)

func testNotifier(t *testing.T, subscribers ...int64) (*Notifier, *fakeSender) {
	t.Helper()
	st := store.NewMem()
	for _, id := range subscribers {
		if err := addSubscriber(context.Background(), st, id); err != nil {
			t.Fatal(err)
		}
	}
	api := &fakeSender{}
	return NewNotifier(api, st, slog.New(slog.NewTextHandler(io.Discard, nil))), api
}

func TestBroadcast(t *testing.T) {
	t.Parallel()

	n, api := testNotifier(t, 1, 2)
	n.Broadcast(context.Background(), "Работа началась")

	texts := api.texts()
	testutil.AssertEqual(t, texts, []string{"Работа началась", "Работа началась"})
	testutil.AssertEqual(t, api.lastMessage(t).ParseMode, tgbotapi.ModeHTML)
}

func TestBroadcastDocument(t *testing.T) {
	t.Parallel()

	n, api := testNotifier(t, 1)
	n.BroadcastDocument(context.Background(), "unshared.txt", []byte("https://example.com"), "итоги")

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.sent) != 1 {
		t.Fatalf("want 1 document, got %d sends", len(api.sent))
	}
	doc, ok := api.sent[0].(tgbotapi.DocumentConfig)
	if !ok {
		t.Fatalf("want DocumentConfig, got %#v", api.sent[0])
	}
	testutil.AssertEqual(t, doc.Caption, "итоги")
	fb, ok := doc.File.(tgbotapi.FileBytes)
	if !ok {
		t.Fatalf("want FileBytes, got %#v", doc.File)
	}
	testutil.AssertEqual(t, fb.Name, "unshared.txt")
	testutil.AssertEqual(t, string(fb.Bytes), "https://example.com")
}

func TestUpdateProgressEditsInPlace(t *testing.T) {
	t.Parallel()

	n, api := testNotifier(t, 1, 2)
	ctx := context.Background()

	// The first update creates one message per subscriber.
	n.UpdateProgress(ctx, "шаг 1")
	testutil.AssertEqual(t, len(api.texts()), 2)

	// Subsequent updates edit those messages instead of sending new ones.
	n.UpdateProgress(ctx, "шаг 2")
	testutil.AssertEqual(t, len(api.texts()), 2)

	var edits []string
	for _, c := range api.requested() {
		if e, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			edits = append(edits, e.Text)
		}
	}
	testutil.AssertEqual(t, edits, []string{"шаг 2", "шаг 2"})

	// After a reset the next update starts fresh messages.
	n.ResetProgress()
	n.UpdateProgress(ctx, "шаг 3")
	testutil.AssertEqual(t, len(api.texts()), 4)
}
