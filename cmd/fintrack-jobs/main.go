package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
	"fintrack/internal/worker"
)

// ledgerStore is everything the jobs need from persistence. Both the SQLite
// repository and the in-memory store satisfy it.
type ledgerStore interface {
	services.RecurrenceStore
	services.GoalStore
	services.BudgetStore
	services.MovementReader
	services.NotificationStore
	services.NotificationPurger
	services.OwnerReader
	worker.JobLocker
}

func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	var store ledgerStore
	switch cfg.DataBackend {
	case "memory":
		store = memory.New()
		logger.Warn("Using in-memory backend, data will not survive a restart")
	default:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to open database", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer repo.Close()
		store = repo
	}

	// The broker is optional for the job runner: without it notifications
	// are persisted directly instead of going through the async lane.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, notifications will be persisted directly", "error", err)
		} else {
			defer client.Close()
			publisher = client
		}
	} else {
		logger.Info("AMQP disabled, notifications will be persisted directly")
	}

	notifier := services.NewNotificationService(store, publisher)
	goals := services.NewGoalLedger(store, notifier)
	budgets := services.NewBudgetMonitor(store, notifier, cfg.BudgetSweepRatio)
	scheduler := services.NewRecurrenceScheduler(store, notifier, goals, budgets)
	analytics := services.NewAnalyticsEngine(store, store, cfg.AnalyticsCacheTTL)
	summary := services.NewMonthlySummaryJob(store, store, notifier, analytics)
	cleanup := services.NewCleanupJob(store, cfg.NotificationRetention)

	caches := cache.NewManager()
	analytics.RegisterCaches(caches)
	caches.StartCleanup(cfg.AnalyticsCacheTTL)
	defer caches.Stop()

	runner := worker.NewRunner(store)
	jobs := []worker.Job{
		{
			Name: "recurrence",
			Spec: cfg.RecurrenceSpec,
			Run: func(ctx context.Context, now time.Time) error {
				posted, err := scheduler.Run(ctx, now)
				if err != nil {
					return err
				}
				logger.InfoContext(ctx, "Recurring movements posted", "count", posted)
				return nil
			},
		},
		{
			Name: "budget_sweep",
			Spec: cfg.BudgetSweepSpec,
			Run: func(ctx context.Context, _ time.Time) error {
				alerted, err := budgets.Sweep(ctx)
				if err != nil {
					return err
				}
				logger.InfoContext(ctx, "Budget sweep complete", "alerts", alerted)
				return nil
			},
		},
		{
			Name: "monthly_summary",
			Spec: cfg.MonthlySummarySpec,
			Run: func(ctx context.Context, now time.Time) error {
				sent, err := summary.Run(ctx, now)
				if err != nil {
					return err
				}
				logger.InfoContext(ctx, "Monthly summaries sent", "count", sent)
				return nil
			},
		},
		{
			Name: "cleanup",
			Spec: cfg.CleanupSpec,
			Run: func(ctx context.Context, now time.Time) error {
				purged, err := cleanup.Run(ctx, now)
				if err != nil {
					return err
				}
				logger.InfoContext(ctx, "Old notifications purged", "count", purged)
				return nil
			},
		},
	}
	for _, job := range jobs {
		if err := runner.Register(job); err != nil {
			logger.Error("Failed to register job", "job", job.Name, "error", err)
			os.Exit(1)
		}
	}

	// Post anything that came due while the process was down. The day lock
	// makes this a no-op when today's run already happened.
	runner.CatchUp(context.Background(), time.Now(), "recurrence")
	runner.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	runner.Stop()
	logger.Info("Job runner shut down cleanly")
}
