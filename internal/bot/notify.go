package bot

import (
	"context"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sctables/internal/store"
)

// Notifier fans run notifications out to every subscriber. It implements
// [sctables/internal/pipeline.Notifier].
//
// Delivery is best effort: a send failure to one subscriber is logged and
// does not affect the others.
type Notifier struct {
	API   Sender
	Store store.Store
	Log   *slog.Logger

	mu       sync.Mutex
	progress map[int64]int // subscriber -> live progress message ID
}

// NewNotifier returns a ready to use Notifier.
func NewNotifier(api Sender, st store.Store, log *slog.Logger) *Notifier {
	return &Notifier{
		API:      api,
		Store:    st,
		Log:      log,
		progress: make(map[int64]int),
	}
}

func (n *Notifier) subscribers(ctx context.Context) []int64 {
	ids, err := Subscribers(ctx, n.Store)
	if err != nil {
		n.Log.Error("loading subscribers", "error", err)
		return nil
	}
	return ids
}

// Broadcast sends an HTML-formatted message to every subscriber.
func (n *Notifier) Broadcast(ctx context.Context, text string) {
	for _, id := range n.subscribers(ctx) {
		msg := tgbotapi.NewMessage(id, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := n.API.Send(msg); err != nil {
			n.Log.Warn("notifying subscriber", "user", id, "error", err)
		}
	}
}

// BroadcastDocument sends a document with an HTML caption to every
// subscriber.
func (n *Notifier) BroadcastDocument(ctx context.Context, filename string, data []byte, caption string) {
	for _, id := range n.subscribers(ctx) {
		doc := tgbotapi.NewDocument(id, tgbotapi.FileBytes{Name: filename, Bytes: data})
		doc.Caption = caption
		doc.ParseMode = tgbotapi.ModeHTML
		if _, err := n.API.Send(doc); err != nil {
			n.Log.Warn("sending document to subscriber", "user", id, "error", err)
		}
	}
}

// UpdateProgress edits each subscriber's live progress message, creating it
// on the first call of a run.
func (n *Notifier) UpdateProgress(ctx context.Context, text string) {
	for _, id := range n.subscribers(ctx) {
		n.mu.Lock()
		msgID, ok := n.progress[id]
		n.mu.Unlock()

		if ok {
			edit := tgbotapi.NewEditMessageText(id, msgID, text)
			if _, err := n.API.Request(edit); err != nil {
				n.Log.Warn("editing progress message", "user", id, "error", err)
			}
			continue
		}

		msg, err := n.API.Send(tgbotapi.NewMessage(id, text))
		if err != nil {
			n.Log.Warn("sending progress message", "user", id, "error", err)
			continue
		}
		n.mu.Lock()
		n.progress[id] = msg.MessageID
		n.mu.Unlock()
	}
}

// ResetProgress forgets the previous run's progress messages so the next
// update starts a fresh one per subscriber.
func (n *Notifier) ResetProgress() {
	n.mu.Lock()
	defer n.mu.Unlock()
	clear(n.progress)
}
