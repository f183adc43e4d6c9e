// Package app wires configuration, storage, adapters, modules, and services
// into a running engine
package app

import (
	"context"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/adapters/portal"
	"github.com/ternarybob/colligo/internal/adapters/svc"
	"github.com/ternarybob/colligo/internal/adapters/toolrunner"
	"github.com/ternarybob/colligo/internal/adapters/transfer"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/handlers"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/modules"
	"github.com/ternarybob/colligo/internal/modules/builder"
	"github.com/ternarybob/colligo/internal/modules/crawler"
	"github.com/ternarybob/colligo/internal/services/events"
	"github.com/ternarybob/colligo/internal/services/scheduler"
	"github.com/ternarybob/colligo/internal/services/status"
	"github.com/ternarybob/colligo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService

	Registry         *modules.Registry
	StatusService    *status.Service
	SchedulerService *scheduler.Service

	// USPS portal browser, held for shutdown
	Portal *portal.USPSPortal

	LogFeed *handlers.LogFeed

	// HTTP handlers
	APIHandler    *handlers.APIHandler
	ModuleHandler *handlers.ModuleHandler
	StatusHandler *handlers.StatusHandler
	WSHandler     *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, err
	}
	app.StorageManager = storageManager

	app.EventService = events.NewService(logger)

	// WebSocket handler and log feed come up before the modules so early
	// run logs reach connected clients
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger)
	app.LogFeed = handlers.NewLogFeed(app.WSHandler, &cfg.WebSocket)
	app.LogFeed.Start()
	logger.SetChannel("websocket", app.LogFeed.Channel())

	app.initModules()

	app.StatusService = status.NewService(
		app.Registry,
		app.StorageManager,
		app.EventService,
		cfg.Status.SnapshotInterval,
		logger,
	)

	app.SchedulerService = scheduler.NewService(app.Registry, logger)

	app.ModuleHandler = handlers.NewModuleHandler(app.Registry, logger)
	app.StatusHandler = handlers.NewStatusHandler(app.StatusService, logger)
	app.APIHandler = handlers.NewAPIHandler(logger)

	return app, nil
}

// initModules builds the adapter set and registers the six lifecycle modules
func (a *App) initModules() {
	cfg := a.Config

	a.Portal = portal.NewUSPSPortal(cfg.USPS, a.Logger)

	royalMailTransfer := transfer.NewClient(transfer.Options{
		Timeout:        cfg.Downloads.RequestTimeout,
		RetryAttempts:  cfg.Downloads.RetryAttempts,
		RetryBackoff:   cfg.Downloads.RetryBackoff,
		RateLimitBytes: cfg.Downloads.RateLimitBytes,
		Username:       cfg.RoyalMail.Username,
		Password:       cfg.RoyalMail.Password,
	}, a.Logger)

	parascriptTransfer := transfer.NewClient(transfer.Options{
		Timeout:        cfg.Downloads.RequestTimeout,
		RetryAttempts:  cfg.Downloads.RetryAttempts,
		RetryBackoff:   cfg.Downloads.RetryBackoff,
		RateLimitBytes: cfg.Downloads.RateLimitBytes,
	}, a.Logger)

	toolRunner := toolrunner.NewRunner(cfg.Tools.RunTimeout, a.Logger)
	serviceController := svc.NewController(a.Logger)

	downloadDir := func(provider models.Provider) string {
		return filepath.Join(cfg.Workspace.Root, string(provider), "downloads")
	}

	a.Registry = modules.NewRegistry(a.Logger)

	register := func(id models.ModuleID, pl modules.Pipeline) {
		a.Registry.Register(modules.New(id, pl, a.EventService, a.Logger))
	}

	register(models.ModuleUSPSCrawler, crawler.NewUSPSPipeline(
		a.Portal, a.StorageManager, a.EventService,
		downloadDir(models.ProviderUSPS), a.Logger))

	register(models.ModuleRoyalMailCrawler, crawler.NewRoyalMailPipeline(
		royalMailTransfer, cfg.RoyalMail.BaseURL, a.StorageManager, a.EventService,
		downloadDir(models.ProviderRoyalMail), a.Logger))

	register(models.ModuleParascriptCrawler, crawler.NewParascriptPipeline(
		parascriptTransfer, cfg.Parascript.BaseURL, a.StorageManager, a.EventService,
		downloadDir(models.ProviderParascript), a.Logger))

	register(models.ModuleUSPSBuilder, builder.NewUSPSPipeline(
		cfg, a.StorageManager, a.EventService, toolRunner, serviceController, a.Logger))

	register(models.ModuleRoyalMailBuilder, builder.NewRoyalMailPipeline(
		cfg, a.StorageManager, a.EventService, toolRunner, serviceController, a.Logger))

	register(models.ModuleParascriptBuilder, builder.NewParascriptPipeline(
		cfg, a.StorageManager, a.EventService, toolRunner, serviceController, a.Logger))
}

// Start launches the background services and the startup crawler sweep
func (a *App) Start(ctx context.Context) error {
	a.StatusService.Start()

	if a.Config.Scheduler.Enabled {
		if err := a.SchedulerService.Start(a.Config.Scheduler.CrawlSchedule); err != nil {
			return err
		}
	}

	a.Registry.StartupSweep(ctx)

	a.Logger.Info().Msg("Application started")
	return nil
}

// Close shuts down components in reverse dependency order
func (a *App) Close() {
	for _, m := range a.Registry.All() {
		m.Stop()
	}

	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}
	if a.StatusService != nil {
		a.StatusService.Stop()
	}
	if a.Portal != nil {
		a.Portal.Close()
	}
	if a.LogFeed != nil {
		a.LogFeed.Stop()
	}
	if a.WSHandler != nil {
		a.WSHandler.Close()
	}
	if a.EventService != nil {
		a.EventService.Close()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}

	a.Logger.Info().Msg("Application stopped")
}
