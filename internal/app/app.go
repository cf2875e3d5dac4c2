package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/handlers"
	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
	"github.com/Matanbitton/cheap-crawler/internal/queue"
	"github.com/Matanbitton/cheap-crawler/internal/queue/workers"
	"github.com/Matanbitton/cheap-crawler/internal/services/crawler"
	"github.com/Matanbitton/cheap-crawler/internal/services/events"
	"github.com/Matanbitton/cheap-crawler/internal/services/scheduler"
	"github.com/Matanbitton/cheap-crawler/internal/services/scraper"
	badgerstorage "github.com/Matanbitton/cheap-crawler/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService interfaces.SchedulerService

	// Job execution
	QueueManager interfaces.QueueManager
	JobProcessor *workers.JobProcessor

	// Crawl pipeline
	Limiter        *crawler.LaunchLimiter
	CrawlerService *crawler.Service
	ScraperService interfaces.ScraperService

	// HTTP handlers
	ScrapeHandler *handlers.ScrapeHandler
	HealthHandler *handlers.HealthHandler
	JobHandler    *handlers.JobHandler
	WSHandler     *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	app.JobProcessor.Start()

	if err := app.SchedulerService.Start(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info().
		Str("version", common.GetVersion()).
		Msg("Application initialized")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := badgerstorage.NewManager(a.Logger, a.Config.Storage.Badger)
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

// initServices initializes all business services in dependency order.
//
// QUEUE-BASED JOB ARCHITECTURE:
// 1. QueueManager (Badger-backed) - persistent queue with visibility timeouts
// 2. JobProcessor - receives queued messages and routes them to workers
// 3. ScrapeWorker - executes scrape jobs through the crawler engine
//
// The synchronous /scrape path bypasses the queue entirely; both paths
// share the scraper service for validation and the crawler engine for
// the actual browsing.
func (a *App) initServices() error {
	// Event bus first, everything publishes through it
	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	// Persistent queue shares the Badger instance with job storage
	badgerDB, ok := a.StorageManager.DB().(*badgerstorage.BadgerDB)
	if !ok {
		return fmt.Errorf("storage manager does not expose a Badger connection")
	}

	queueCfg := a.Config.Queue
	queueMgr, err := queue.NewBadgerManager(
		badgerDB.Store().Badger(),
		queueCfg.QueueName,
		queueCfg.VisibilityDuration(),
		queueCfg.MaxRetries+1,
	)
	if err != nil {
		return fmt.Errorf("failed to create queue manager: %w", err)
	}
	a.QueueManager = queueMgr

	// Crawl pipeline: limiter caps browser launches process-wide
	a.Limiter = crawler.NewLaunchLimiter(a.Config.Crawler.MaxBrowsers)
	a.CrawlerService = crawler.NewService(a.Config.Crawler, a.Limiter, a.EventService, a.Logger)
	a.ScraperService = scraper.NewService(
		a.Config.Scraper,
		a.Config.AllowTestURLs(),
		a.CrawlerService,
		a.EventService,
		a.Logger,
	)

	// Background job execution
	a.JobProcessor = workers.NewJobProcessor(
		a.QueueManager,
		a.StorageManager.JobStorage(),
		a.EventService,
		a.Logger,
		queueCfg,
	)
	scrapeWorker := workers.NewScrapeWorker(
		a.CrawlerService,
		a.StorageManager.JobStorage(),
		a.EventService,
		a.Logger,
	)
	a.JobProcessor.RegisterExecutor(scrapeWorker)

	// Scheduled maintenance: purge terminal job records past retention
	a.SchedulerService = scheduler.NewService(a.Logger)
	retention := a.Config.Retention
	err = a.SchedulerService.RegisterJob("purge_terminal_jobs", retention.Schedule, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		now := time.Now()
		removed, err := a.StorageManager.JobStorage().PurgeTerminalJobs(
			ctx,
			now.Add(-retention.CompletedDuration()),
			now.Add(-retention.FailedDuration()),
		)
		if err != nil {
			return err
		}
		if removed > 0 {
			a.Logger.Info().Int("removed", removed).Msg("Purged terminal scrape jobs")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register purge job: %w", err)
	}

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)
	a.WSHandler.SubscribeToEvents()

	a.ScrapeHandler = handlers.NewScrapeHandler(a.ScraperService, a.Logger)
	a.HealthHandler = handlers.NewHealthHandler(
		a.ScraperService,
		a.QueueManager,
		a.StorageManager.JobStorage(),
		a.Limiter,
		a.Logger,
	)
	a.JobHandler = handlers.NewJobHandler(
		a.ScraperService,
		a.StorageManager.JobStorage(),
		a.QueueManager,
		a.Logger,
	)

	return nil
}

// Close shuts down all components in reverse dependency order
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.JobProcessor != nil {
		a.JobProcessor.Stop()
		a.Logger.Info().Msg("Job processor stopped")
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.QueueManager != nil {
		if err := a.QueueManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue manager")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
