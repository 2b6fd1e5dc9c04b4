package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/PhillipSMartin/StJames/internal/adapter/repository/postgres"
	"github.com/PhillipSMartin/StJames/internal/adapter/site"
	"github.com/PhillipSMartin/StJames/internal/adapter/site/moms"
	"github.com/PhillipSMartin/StJames/internal/adapter/site/patch"
	"github.com/PhillipSMartin/StJames/internal/adapter/site/sitetest"
	"github.com/PhillipSMartin/StJames/internal/adapter/site/sojourner"
	"github.com/PhillipSMartin/StJames/internal/api"
	"github.com/PhillipSMartin/StJames/internal/config"
	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/domain/publishing"
	"github.com/PhillipSMartin/StJames/internal/notifier"
	"github.com/PhillipSMartin/StJames/internal/outbox"
	"github.com/PhillipSMartin/StJames/internal/reconciler"
	"github.com/PhillipSMartin/StJames/internal/transition"
	"github.com/PhillipSMartin/StJames/internal/worker"
	"github.com/PhillipSMartin/StJames/pkg/db"
	zaplog "github.com/PhillipSMartin/StJames/pkg/log"
	"github.com/PhillipSMartin/StJames/pkg/snowflake"
	"github.com/PhillipSMartin/StJames/sql/migrations"
)

// RunServer starts the HTTP server and background workers.
func RunServer() {
	app := fx.New(
		fx.Provide(
			// Config
			config.Load,

			// Event Store
			fx.Annotate(
				postgres.NewRepository,
				fx.As(new(event.Repository)),
			),

			// State machine and messaging
			newTransitionService,
			outbox.NewQueue,
			newChangeNotifier,
			notifier.NewResultNotifier,
			newPostingReconciler,

			// Publication workers, one per destination website
			newWorkers,

			// API
			api.NewRouter,
		),
		db.Module,        // Database Module
		snowflake.Module, // Snowflake ID Module
		zaplog.Module,    // Logger Module
		fx.Invoke(registerHooks),
	)

	app.Run()
}

// RunMigrations executes database migrations (up or down).
func RunMigrations(command string) error {
	if command == "" {
		command = "up"
	}

	cfg := config.Load()
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting database migration...", zap.String("command", command))

	dbURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBSSLMode,
	)

	d, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migration files: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, dbURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("Migration up applied successfully")
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("Migration down applied successfully")
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}

	return nil
}

func newTransitionService(cfg *config.Config, repo event.Repository, logger *zap.Logger) *transition.Service {
	return transition.NewService(repo, transition.Config{
		MaxAttempts:     cfg.TransitionMaxAttempts,
		InitialInterval: cfg.TransitionBackoffInitial,
		MaxInterval:     cfg.TransitionBackoffMax,
	}, logger)
}

func newChangeNotifier(cfg *config.Config, repo event.Repository, queue *outbox.Queue, logger *zap.Logger) *notifier.ChangeNotifier {
	return notifier.NewChangeNotifier(repo, queue, cfg.NotifierInterval, cfg.NotifierBatchSize, logger)
}

func newPostingReconciler(cfg *config.Config, repo event.Repository, transitions *transition.Service, logger *zap.Logger) *reconciler.PostingReconciler {
	return reconciler.NewPostingReconciler(repo, transitions, cfg.ReconcilerInterval, cfg.PostingStaleAfter, logger)
}

func siteConfig(cfg *config.Config, baseURL, token string) site.Config {
	return site.Config{
		BaseURL:   baseURL,
		APIToken:  token,
		Timeout:   cfg.SiteTimeout,
		RateLimit: float64(cfg.SiteRateLimit),
	}
}

// newWorkers builds one structurally identical worker per destination
// website; each differs only in its site adapter.
func newWorkers(
	cfg *config.Config,
	queue *outbox.Queue,
	transitions *transition.Service,
	results *notifier.ResultNotifier,
	logger *zap.Logger,
) []*worker.Worker {
	adapters := []publishing.SiteAdapter{
		patch.NewAdapter(siteConfig(cfg, cfg.PatchBaseURL, cfg.PatchAPIToken)),
		moms.NewAdapter(siteConfig(cfg, cfg.MomsBaseURL, cfg.MomsAPIToken)),
		sojourner.NewAdapter(siteConfig(cfg, cfg.SojournerBaseURL, cfg.SojournerAPIToken)),
		sitetest.NewAdapter(cfg.TestSiteFailWith, logger),
	}

	workerCfg := worker.Config{
		PollInterval: cfg.WorkerPollInterval,
		BatchSize:    cfg.WorkerBatchSize,
		BatchBudget:  cfg.WorkerBatchBudget,
	}
	publisher := &worker.ResultPublisher{Publish: results.Publish}

	workers := make([]*worker.Worker, 0, len(adapters))
	for _, adapter := range adapters {
		workers = append(workers, worker.New(adapter, queue, transitions, publisher, workerCfg, logger))
	}
	return workers
}

func registerHooks(
	lc fx.Lifecycle,
	router *api.Router,
	changeNotifier *notifier.ChangeNotifier,
	postingReconciler *reconciler.PostingReconciler,
	workers []*worker.Worker,
	cfg *config.Config,
	logger *zap.Logger,
) {
	var cancels []context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting HTTP server", zap.String("port", cfg.Port))

			background := func(run func(context.Context)) {
				runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
				cancels = append(cancels, cancel)
				go run(runCtx)
			}

			background(changeNotifier.Run)
			background(postingReconciler.Run)
			for _, w := range workers {
				background(w.Run)
			}

			go func() {
				if err := router.Run(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed to start", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server gracefully...")

			for _, cancel := range cancels {
				cancel()
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := router.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", zap.Error(err))
				return err
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		},
	})
}
