package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"sctables/internal/bot"
	"sctables/internal/cli"
	"sctables/internal/config"
	"sctables/internal/pipeline"
	"sctables/internal/request"
	"sctables/internal/schedule"
	"sctables/internal/store"
	"sctables/internal/version"
)

func main() { cli.Main(new(app)) }

type app struct {
	dbPath string
	debug  bool
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.StringVar(&a.dbPath, "db", "", "Path to the SQLite state `database`. Overrides DATABASE_PATH.")
	fs.BoolVar(&a.debug, "debug", false, "Enable debug logging.")
}

func (a *app) Run(ctx context.Context, env *cli.Env) error {
	// A .env file is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	token := env.Getenv("TELEGRAM_TOKEN")
	if token == "" {
		return fmt.Errorf("%w: environment variable TELEGRAM_TOKEN is not set", cli.ErrInvalidArgs)
	}
	dbPath := cmp.Or(a.dbPath, env.Getenv("DATABASE_PATH"), "sctables.db")

	level := slog.LevelInfo
	if a.debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(env.Stderr, &slog.HandlerOptions{Level: level}))
	scrubber := strings.NewReplacer(token, "[EXPUNGED]")

	st, err := store.NewSQLite(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer st.Close()

	cfg := &config.Service{Store: st}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return errors.New(scrubber.Replace(fmt.Sprintf("connecting to Telegram: %v", err)))
	}

	notify := bot.NewNotifier(api, st, log)
	runner := &pipeline.Runner{
		Config:     cfg,
		Notify:     notify,
		HTTPClient: request.DefaultClient,
		Log:        log,
		Scrubber:   scrubber,
	}

	sched := schedule.New(log)
	runJob := func(jctx context.Context) {
		err := runner.Run(jctx)
		if err == nil || errors.Is(err, pipeline.ErrAlreadyRunning) {
			return
		}
		log.Error("run failed", "error", err)
		notify.Broadcast(jctx, "Произошла ошибка:\n\n"+scrubber.Replace(err.Error()))
	}
	sched.Daily(ctx, "daily-run", func() int { return cfg.RunHour(ctx) }, runJob)

	b := bot.New(api, st, cfg, log, manualTrigger(ctx, sched, runner, runJob))
	b.HTTPClient = request.DefaultClient

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	log.Info("started", "version", version.Version().Version, "db", dbPath)
	b.Run(ctx, updates)

	// Let an in-flight run observe cancellation before the store closes.
	for runner.Running() {
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// manualTrigger returns the bot's manual-run hook. The job name is
// registered synchronously and stays registered until the run body
// returns, so a second tap is rejected even before the run starts.
func manualTrigger(ctx context.Context, sched *schedule.Scheduler, runner *pipeline.Runner, runJob func(context.Context)) func() error {
	return func() error {
		if runner.Running() || sched.Scheduled("manual-run") {
			return pipeline.ErrAlreadyRunning
		}
		sched.Once(ctx, "manual-run", runJob)
		return nil
	}
}
