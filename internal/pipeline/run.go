// Package pipeline implements the batch run: expanding each worklist URL
// into the date range needing backfill, paging analytics out of Search
// Console, materializing results as chunked spreadsheets and advancing
// per-URL watermarks in the control spreadsheet.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sctables/internal/api/google/searchconsole"
	"sctables/internal/api/google/serviceaccount"
	"sctables/internal/api/google/sheets"
	"sctables/internal/config"
	"sctables/internal/request"
)

// ErrAlreadyRunning is returned when a run is requested while another one is
// still active.
var ErrAlreadyRunning = errors.New("already running")

// Notifier delivers run notifications to all subscribed users.
type Notifier interface {
	// Broadcast sends a message to every subscriber.
	Broadcast(ctx context.Context, text string)
	// BroadcastDocument sends a document with a caption to every subscriber.
	BroadcastDocument(ctx context.Context, filename string, data []byte, caption string)
	// UpdateProgress creates or edits the live progress message of every
	// subscriber.
	UpdateProgress(ctx context.Context, text string)
	// ResetProgress forgets progress messages of a previous run.
	ResetProgress()
}

// Runner drives the per-URL, per-date batch loop. At most one run is active
// at a time.
type Runner struct {
	Config     *config.Service
	Notify     Notifier
	HTTPClient *http.Client
	Log        *slog.Logger
	// Scrubber hides secrets in errors coming out of API calls.
	Scrubber *strings.Replacer
	// Now acts as time.Now, but can be mocked for testing.
	Now func() time.Time
	// StopURL decides whether an analytics error means the current URL is
	// unprocessable (stop its date loop, keep the run going). Defaults to
	// "HTTP 400", which is how Search Console reports unverified sites.
	StopURL func(*request.StatusError) bool
	// MaxRows overrides the per-sheet row cap when positive.
	MaxRows int

	running    atomic.Bool
	tickMu     sync.Mutex
	tickCancel context.CancelFunc
}

// Running reports whether a run is currently active.
func (r *Runner) Running() bool { return r.running.Load() }

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

func (r *Runner) stopURL(se *request.StatusError) bool {
	if r.StopURL != nil {
		return r.StopURL(se)
	}
	return se.StatusCode == http.StatusBadRequest
}

// Run executes one batch run end to end. It returns ErrAlreadyRunning when
// another run is active. Unexpected API errors abort the run without
// touching the control spreadsheet; per-URL analytics failures matched by
// StopURL only stop that URL's date loop.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)
	defer r.stopTicker()

	log := r.log()

	cfg, err := r.Config.Load(ctx)
	if err != nil {
		return err
	}
	key, err := serviceaccount.LoadKey([]byte(cfg[config.KeyServiceAccount]))
	if err != nil {
		return fmt.Errorf("loading service account key: %w", err)
	}

	analytics := &searchconsole.Client{Key: key, HTTPClient: r.HTTPClient, Scrubber: r.Scrubber}
	sheetsc := &sheets.Client{Key: key, HTTPClient: r.HTTPClient, Scrubber: r.Scrubber}

	r.Notify.ResetProgress()
	r.Notify.Broadcast(ctx, "Работа началась")

	today := r.now().UTC().Format(time.DateOnly)
	entries, worklistID, err := ReadWorklist(ctx, sheetsc, cfg[config.KeySpreadsheetURL], today)
	if err != nil {
		if errors.Is(err, ErrConfig) {
			log.Warn("bad worklist configuration", "error", err)
			r.Notify.Broadcast(ctx, "Введён неверный URL таблицы. Проверьте настройки.")
			return nil
		}
		return err
	}

	r.Notify.Broadcast(ctx, fmt.Sprintf(
		"Считывание данных завершено.\nСсылок, отправленных в обработку: <b>%d</b>", len(entries)))

	progress := NewProgress(len(entries))
	r.startTicker(ctx, progress)

	writer := &Writer{
		Sheets:  sheetsc,
		Email:   cfg[config.KeyEmail],
		Log:     log,
		MaxRows: r.MaxRows,
	}

	var (
		advanced []Entry
		unshared []string
		created  int
	)
	for _, e := range entries {
		dates, err := ExpandDates(e.LastDate, today)
		if err != nil {
			return err
		}
		completedFully := true
		for _, dt := range dates {
			progress.SetCurrent(e.URL, dt)
			progress.SetStep(stepFetching)
			log.Info("processing", "url", e.URL, "date", dt)

			rows, err := analytics.FetchAll(ctx, e.URL, dt)
			if err != nil {
				var se *request.StatusError
				if errors.As(err, &se) && r.stopURL(se) {
					log.Warn("site is not accessible, leaving its watermark in place",
						"url", e.URL, "date", dt, "error", err)
					completedFully = false
					break
				}
				return err
			}

			progress.SetStep(stepWriting)
			k, uns, err := writer.Write(ctx, rows, tableName(e.URL, dt), dt)
			created += k
			progress.AddCreated(k)
			unshared = append(unshared, uns...)
			if err != nil {
				return err
			}
		}
		// The watermark only advances when every date in the range was
		// processed without an early break.
		if completedFully {
			advanced = append(advanced, Entry{URL: e.URL, LastDate: today})
		}
		progress.SetStep(stepDone)
		progress.URLDone()
	}

	r.stopTicker()

	if err := r.writeBack(ctx, sheetsc, worklistID, advanced); err != nil {
		return fmt.Errorf("writing worklist back: %w", err)
	}

	summary := fmt.Sprintf(
		"Работа была выполнена успешно!\n\n<b>Изначальное число URL:</b> %d\n<b>Из них обработано:</b> %d\n<b>Таблиц создано:</b> %d",
		len(entries), len(advanced), created)
	if len(unshared) > 0 {
		summary += fmt.Sprintf("\n<b>Таблиц, не получивших права:</b> %d", len(unshared))
		name := "unshared-" + r.now().UTC().Format("20060102-150405") + ".txt"
		r.Notify.BroadcastDocument(ctx, name, []byte(strings.Join(unshared, "\n")), summary)
	} else {
		r.Notify.Broadcast(ctx, summary)
	}

	log.Info("run finished", "urls", len(entries), "advanced", len(advanced), "created", created, "unshared", len(unshared))
	return nil
}

// writeBack replaces the control spreadsheet contents with the advanced
// entries. URLs that did not complete their range are absent from the new
// contents and will be re-read from their last good date on the next run.
func (r *Runner) writeBack(ctx context.Context, c *sheets.Client, id string, advanced []Entry) error {
	data := worklistCSV(advanced)

	tmp, err := os.CreateTemp("", "sctables-worklist-*.csv")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := c.ImportCSV(ctx, id, data); err != nil {
		return err
	}
	if err := os.Remove(tmp.Name()); err != nil {
		r.log().Warn("removing temporary worklist CSV", "path", tmp.Name(), "error", err)
	}
	return nil
}

// startTicker starts the live progress updater, cancelling a previous one
// first so two tickers never run at once.
func (r *Runner) startTicker(ctx context.Context, p *Progress) {
	r.stopTicker()

	tctx, cancel := context.WithCancel(ctx)
	r.tickMu.Lock()
	r.tickCancel = cancel
	r.tickMu.Unlock()

	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-tctx.Done():
				return
			case <-t.C:
				r.Notify.UpdateProgress(tctx, p.Text())
			}
		}
	}()
}

func (r *Runner) stopTicker() {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	if r.tickCancel != nil {
		r.tickCancel()
		r.tickCancel = nil
	}
}

// tableName builds the destination spreadsheet name for one URL and date.
func tableName(url, date string) string {
	name := strings.TrimPrefix(url, "https://")
	name = strings.TrimPrefix(name, "http://")
	name = strings.TrimSuffix(name, "/")
	return name + " " + date
}
