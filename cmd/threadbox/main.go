// Package main contains the entrypoint for the threadbox service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/threadbox/internal/app"
	"github.com/edgard/threadbox/internal/config"
	"github.com/edgard/threadbox/internal/database"
	"github.com/edgard/threadbox/internal/logger"
	"github.com/edgard/threadbox/internal/messaging"
	"github.com/edgard/threadbox/internal/metrics"
	"github.com/edgard/threadbox/internal/notify/telegram"
	"github.com/edgard/threadbox/internal/scheduler"
	"github.com/edgard/threadbox/internal/tasks"
	"github.com/edgard/threadbox/internal/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all components (config, logger, db, messaging
// core, notifier, scheduler), handles graceful shutdown, and returns an exit
// code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	migrateOnly := flag.Bool("migrate-only", false, "Apply database migrations and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)

	if *migrateOnly {
		log.Info("Migrations applied, exiting", "path", cfg.Database.Path)
		return 0
	}

	clock := clockwork.NewRealClock()
	store := database.NewStore(db, log)
	directory := users.NewDirectory(store, clock, log)
	collector := metrics.New(cfg.Metrics.Namespace)

	components := app.Components{
		MetricsAddr:    cfg.Metrics.Addr,
		MetricsHandler: collector.Handler(),
	}

	// A nil *Notifier must not end up in the Pusher interface.
	var pusher messaging.Pusher
	var tgBot *bot.Bot
	if cfg.Telegram.Token != "" {
		tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log)
		if err != nil {
			log.Error("Failed to create Telegram bot", "error", err)
			return 1
		}
		tgBot = tg
		notifier := telegram.NewNotifier(tg, directory, cfg.Telegram.QueueSize, cfg.Telegram.SendTimeout, collector, log,
			telegram.WithRetry(cfg.Telegram.SendAttempts, cfg.Telegram.RetryDelay),
			telegram.WithRateLimit(cfg.Telegram.SendRate),
		)
		pusher = notifier
		components.Notifier = notifier
		components.Telegram = tg.Start
	} else {
		log.Info("Telegram token not set, push delivery disabled")
	}

	svc := messaging.NewService(store, messaging.Options{
		Users:     directory,
		Messaging: cfg.Messaging,
		Clock:     clock,
		Metrics:   collector,
		Pusher:    pusher,
		Logger:    log,
	})
	if tgBot != nil {
		telegram.RegisterUnreadCommand(tgBot, directory, svc, log)
	}

	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
		Clock:  clock,
	}
	sched, err := scheduler.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps),
		scheduler.WithClock(clock),
		scheduler.WithObserver(collector.TaskRun),
	)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	components.Scheduler = sched

	log.Info("Starting threadbox...")
	runErr := app.New(log, components).Run(ctx)
	log.Info("Run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("threadbox stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("threadbox stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
