package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fincopilot-dev/fincopilot/internal/api"
	"github.com/fincopilot-dev/fincopilot/internal/domain/categorize"
	"github.com/fincopilot-dev/fincopilot/internal/domain/chart"
	"github.com/fincopilot-dev/fincopilot/internal/domain/ingest"
	"github.com/fincopilot-dev/fincopilot/internal/domain/transaction"
	"github.com/fincopilot-dev/fincopilot/pkg/config"
	"github.com/fincopilot-dev/fincopilot/pkg/cron"
	"github.com/fincopilot-dev/fincopilot/pkg/db"
	"github.com/fincopilot-dev/fincopilot/pkg/events"
	"github.com/fincopilot-dev/fincopilot/pkg/metrics"
	"github.com/fincopilot-dev/fincopilot/pkg/notify"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	ChartRepo       *chart.Repository
	TransactionRepo *transaction.Repository

	// Infrastructure
	Bus       *events.Bus
	Metrics   metrics.Recorder
	Scheduler *cron.Scheduler

	// Services
	Matcher       *categorize.SwappableMatcher
	Classifier    *categorize.Classifier
	Engine        *categorize.Engine
	Worker        *categorize.Worker
	IngestService *ingest.Service
	NotifyService *notify.Service

	// HTTP
	Server *api.Server
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	deps.initRepositories()
	if err := deps.initServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}
	deps.initServer()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes the repository layer
func (d *Dependencies) initRepositories() {
	d.ChartRepo = chart.NewRepository(d.DB.Pool)
	d.TransactionRepo = transaction.NewRepository(d.DB.Pool)
	d.Logger.Info("repositories initialized")
}

// initServices wires the categorization and ingestion pipeline
func (d *Dependencies) initServices(ctx context.Context) error {
	if d.Config.Observability.MetricsEnabled {
		d.Metrics = metrics.NewPrometheusRecorder()
	} else {
		d.Metrics = metrics.Noop{}
	}

	d.Bus = events.NewBus(d.Logger, 256)

	// Rule matcher built from the current chart; the scheduler rebuilds
	// it when the chart changes.
	entries, err := d.ChartRepo.GetFullChartOfAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load chart of accounts: %w", err)
	}
	registry := chart.NewRegistry(entries)
	d.Matcher = categorize.NewSwappableMatcher(categorize.NewTieredMatcher(registry))

	// LLM tier: real Gemini backend when a key is configured, a canned
	// offline backend otherwise.
	var completer categorize.Completer
	if d.Config.LLM.APIKey != "" {
		completer, err = categorize.NewGeminiCompleter(ctx)
		if err != nil {
			return fmt.Errorf("failed to init gemini completer: %w", err)
		}
	} else {
		d.Logger.Warn("no LLM API key configured, using offline completer")
		completer = categorize.StaticCompleter{Code: chart.UncategorizedCode, Confidence: 0.1}
	}
	d.Classifier = categorize.NewClassifier(completer, categorize.ClassifierConfig{
		Model:             d.Config.LLM.Model,
		Temperature:       d.Config.LLM.Temperature,
		MaxTokens:         d.Config.LLM.MaxTokens,
		RequestsPerSecond: d.Config.LLM.RequestsPerSecond,
	}, d.Metrics, d.Logger)

	d.Engine = categorize.NewEngine(d.Matcher, d.Classifier, d.Metrics, d.Logger)

	d.Worker = categorize.NewWorker(d.Engine, d.ChartRepo, d.TransactionRepo, d.Bus,
		categorize.Options{UseLLM: d.Config.LLM.APIKey != ""}, d.Logger)
	d.Bus.Subscribe(d.Worker)

	d.NotifyService = notify.NewService(d.Config.Notify.WebhookURL, d.Logger)
	d.Bus.Subscribe(d.NotifyService)

	d.IngestService = ingest.NewService(d.ChartRepo, d.TransactionRepo, d.Bus, d.Metrics, d.Logger)

	d.Scheduler = cron.NewScheduler(d.ChartRepo, d.Matcher, d.Config.Ingest.ChartRefreshCron, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initServer builds the HTTP surface
func (d *Dependencies) initServer() {
	d.Server = api.NewServer(d.IngestService, d.TransactionRepo, d.Bus, d.Logger)
	if d.Config.Observability.MetricsEnabled {
		d.Server.EnableMetrics()
	}
	d.Logger.Info("http server initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.Bus != nil {
		d.Bus.Stop()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
