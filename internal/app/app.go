package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/services/documents"
	"github.com/ternarybob/pulse/internal/services/kv"
	"github.com/ternarybob/pulse/internal/services/llm"
	"github.com/ternarybob/pulse/internal/services/mailer"
	"github.com/ternarybob/pulse/internal/services/newsletter"
	"github.com/ternarybob/pulse/internal/services/portfolio"
	"github.com/ternarybob/pulse/internal/services/prices"
	"github.com/ternarybob/pulse/internal/services/scheduler"
	"github.com/ternarybob/pulse/internal/services/transform"
	"github.com/ternarybob/pulse/internal/storage"
)

// NewsletterJob is the scheduler job name of the weekly run
const NewsletterJob = "weekly_newsletter"

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Key/value secrets
	KVService *kv.Service

	// LLM is nil when no Gemini or Claude key resolves
	LLM        interfaces.ContentGenerator
	llmFactory *llm.ProviderFactory

	// Price resolution; nil with priceErr set when providers cannot be configured
	PriceService     *prices.Service
	PortfolioService *portfolio.Service
	priceErr         error

	Importer          *documents.Importer
	Mailer            *mailer.Service
	NewsletterService *newsletter.Service
	SchedulerService  interfaces.SchedulerService
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Debug().
		Bool("llm_enabled", app.LLM != nil).
		Bool("prices_enabled", app.PriceService != nil).
		Bool("dry_run", cfg.Newsletter.DryRun).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order:
// secrets -> LLM -> prices -> portfolio -> documents -> mailer -> newsletter -> scheduler
func (a *App) initServices(ctx context.Context) error {
	kvStorage := a.StorageManager.KeyValueStorage()
	a.KVService = kv.NewService(kvStorage, a.Logger)

	if a.hasLLMKey(ctx) {
		a.llmFactory = llm.NewProviderFactory(&a.Config.Gemini, &a.Config.Claude, &a.Config.LLM, kvStorage, a.Logger)
		a.LLM = a.llmFactory
	} else {
		a.Logger.Warn().Msg("No Gemini or Claude API key found, market recap, commentary and statement import are disabled")
	}

	a.PriceService, a.priceErr = prices.NewServiceFromConfig(ctx, a.Config, kvStorage, a.LLM, common.SystemClock(), a.Logger)
	if a.priceErr != nil {
		a.Logger.Warn().Err(a.priceErr).Msg("Price service unavailable")
	} else {
		aggregator := portfolio.NewAggregator(portfolio.AggregatorOptions{
			MaxMovers:          a.Config.Newsletter.MaxMovers,
			Strategy:           portfolio.MoverStrategy(a.Config.Newsletter.MoverStrategy),
			WarnSuccessRatePct: a.Config.Newsletter.WarnSuccessRatePct,
		}, a.Logger)
		a.PortfolioService = portfolio.NewService(a.PriceService, aggregator, a.Logger)
	}

	var holdingsExtractor *documents.HoldingsExtractor
	if a.LLM != nil {
		holdingsExtractor = documents.NewHoldingsExtractor(a.LLM, a.Config.LLM.ExtractionModel, a.Logger)
	}
	a.Importer = documents.NewImporter(
		documents.NewExtractor(transform.NewService(a.Logger), a.Logger),
		holdingsExtractor,
		a.StorageManager.HoldingsStorage(),
		a.Logger,
	)

	a.Mailer = mailer.NewService(&a.Config.SMTP, kvStorage, a.Logger)

	if a.PortfolioService != nil {
		a.NewsletterService = newsletter.NewService(
			a.PortfolioService,
			a.StorageManager.HoldingsStorage(),
			a.LLM,
			a.Mailer,
			&a.Config.Newsletter,
			&a.Config.LLM,
			a.Logger,
		)
	}

	a.SchedulerService = scheduler.NewService(a.Logger)

	return nil
}

// hasLLMKey reports whether any LLM provider key resolves
func (a *App) hasLLMKey(ctx context.Context) bool {
	kvStorage := a.StorageManager.KeyValueStorage()
	if _, err := common.ResolveAPIKey(ctx, kvStorage, "gemini_api_key", a.Config.Gemini.APIKey); err == nil {
		return true
	}
	_, err := common.ResolveAPIKey(ctx, kvStorage, "anthropic_api_key", a.Config.Claude.APIKey)
	return err == nil
}

// RequirePrices returns why price resolution is unavailable, or nil
func (a *App) RequirePrices() error {
	if a.PortfolioService == nil {
		return fmt.Errorf("price service unavailable: %w", a.priceErr)
	}
	return nil
}

// RegisterNewsletterJob schedules RunAll on the configured cron expression.
// Each run is bounded by the scheduler timeout and cancelled with ctx.
func (a *App) RegisterNewsletterJob(ctx context.Context) error {
	if err := a.RequirePrices(); err != nil {
		return err
	}

	timeout := a.Config.Scheduler.GetTimeout()
	return a.SchedulerService.RegisterJob(NewsletterJob, a.Config.Scheduler.Schedule, func() error {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		report, err := a.NewsletterService.RunAll(runCtx)
		if err != nil {
			return err
		}
		if failed := report.Count(newsletter.StatusFailed); failed > 0 {
			return fmt.Errorf("run %s: %d of %d newsletters failed", report.RunID, failed, len(report.Users))
		}
		return nil
	})
}

// Close closes all application resources
func (a *App) Close() error {
	if a.SchedulerService != nil && a.SchedulerService.IsRunning() {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.llmFactory != nil {
		if err := a.llmFactory.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}

	if a.StorageManager != nil {
		start := time.Now()
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Debug().Dur("duration", time.Since(start)).Msg("Storage closed")
	}

	return nil
}
