// -----------------------------------------------------------------------
// Application - Dependency wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/events"
	"github.com/ternarybob/geminus/internal/git"
	"github.com/ternarybob/geminus/internal/github"
	"github.com/ternarybob/geminus/internal/handlers"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/metrics"
	"github.com/ternarybob/geminus/internal/reports"
	"github.com/ternarybob/geminus/internal/scancache"
	"github.com/ternarybob/geminus/internal/scanner"
	"github.com/ternarybob/geminus/internal/services/maintenance"
	"github.com/ternarybob/geminus/internal/storage/badger"
	"github.com/ternarybob/geminus/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	Storage *badger.Manager

	// Core services
	EventService interfaces.EventService
	ScanCache    *scancache.Service
	Scanner      *scanner.Service
	Branches     *git.Manager
	Worker       *worker.ScanWorker
	Reports      *reports.Coordinator
	Metrics      *metrics.Collector
	Maintenance  *maintenance.Service

	// Activity feed
	LogStream *handlers.LogStreamer
	Activity  *handlers.ActivityBroadcaster

	// HTTP handlers
	WSHandler       *handlers.WebSocketHandler
	APIHandler      *handlers.APIHandler
	ScanHandler     *handlers.ScanHandler
	JobHandler      *handlers.JobHandler
	ImportHandler   *handlers.ImportHandler
	StatusHandler   *handlers.StatusHandler
	PipelineHandler *handlers.PipelineHandler
	CacheHandler    *handlers.CacheHandler
	ReportHandler   *handlers.ReportHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// The event bus and the hub come up first so every later service can
	// publish and every log record can reach connected dashboards.
	app.EventService = events.NewService(app.Logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.Logger)

	// Stream server logs onto the hub through arbor's context channel
	app.LogStream = handlers.NewLogStreamer(app.WSHandler, &cfg.WebSocket, app.Logger)
	if err := app.LogStream.Start(); err != nil {
		return nil, fmt.Errorf("failed to start log streamer: %w", err)
	}
	app.Logger.SetChannel("context", app.LogStream.GetChannel())

	// Initialize services
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Start the job server AFTER metrics and activity subscriptions exist so
	// the first queued job already emits observable events
	app.Worker.Start()
	app.Logger.Debug().Msg("Scan worker started")

	logger.Info().
		Str("pipeline", cfg.Orchestrator.PipelineID).
		Int("max_concurrent", cfg.Orchestrator.MaxConcurrent).
		Bool("cache_enabled", cfg.Cache.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	manager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.Storage = manager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	// Scan result cache on top of the badger cache store
	a.ScanCache = scancache.NewService(a.Storage.CacheStore(), a.Config.Cache, a.Logger)
	a.Logger.Debug().
		Bool("enabled", a.Config.Cache.Enabled).
		Int("ttl_days", a.Config.Cache.TTLDays).
		Msg("Scan cache initialized")

	// Git workflow: commit tracker, PR backend, branch manager
	tracker := git.NewTracker(a.Logger)
	prBackend := github.NewService(a.Config.Git, a.Logger)
	a.Branches = git.NewManager(a.Config.Git, prBackend, a.Logger)
	a.Logger.Debug().
		Str("branch_prefix", a.Config.Git.BranchPrefix).
		Bool("dry_run", a.Config.Git.DryRun).
		Msg("Git workflow initialized")

	// Cache-aware scanner over the external pattern detector
	detector := scanner.NewDetector(a.Config.Scanner, a.Logger)
	a.Scanner = scanner.NewService(detector, tracker, a.ScanCache, a.Config.Cache, a.Logger)
	a.Logger.Debug().Str("binary", a.Config.Scanner.Binary).Msg("Scanner initialized")

	// Report coordinator (nil generator selects the built-in renderer)
	a.Reports = reports.NewCoordinator(nil, a.Config.Reports, a.Logger)

	// Scan worker: the job server specialized for duplicate detection
	w, err := worker.NewScanWorker(worker.Options{
		Scanner:      a.Scanner,
		Events:       a.EventService,
		Store:        a.Storage.JobStorage(),
		Branches:     a.Branches,
		Reports:      a.Reports,
		Logger:       a.Logger,
		Orchestrator: a.Config.Orchestrator,
		Git:          a.Config.Git,
	})
	if err != nil {
		return fmt.Errorf("failed to create scan worker: %w", err)
	}
	a.Worker = w
	a.Logger.Debug().Msg("Scan worker initialized")

	// Subscribe the metrics collector before the worker starts so no
	// lifecycle event goes uncounted
	collector, err := metrics.NewCollector(a.EventService, a.Worker, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create metrics collector: %w", err)
	}
	a.Metrics = collector

	// Mirror job lifecycle events onto the websocket hub
	activity, err := handlers.NewActivityBroadcaster(a.WSHandler, a.EventService, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to register activity broadcaster: %w", err)
	}
	a.Activity = activity

	// Background upkeep: cache sweeps, retry audits, value-log GC
	a.Maintenance = maintenance.NewService(a.ScanCache, a.Worker, a.Storage, a.Config.Maintenance, a.Logger)
	if err := a.Maintenance.Start(); err != nil {
		return fmt.Errorf("failed to start maintenance scheduler: %w", err)
	}

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler()
	a.ScanHandler = handlers.NewScanHandler(a.Worker, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.Worker, a.Logger)
	a.ImportHandler = handlers.NewImportHandler(a.Storage.JobStorage(), a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Worker, a.ScanCache, a.Logger)
	a.PipelineHandler = handlers.NewPipelineHandler(a.Storage.JobStorage(), a.Logger)
	a.CacheHandler = handlers.NewCacheHandler(a.ScanCache, a.Logger)
	a.ReportHandler = handlers.NewReportHandler(a.Reports, a.Logger)

	a.Logger.Debug().Msg("HTTP handlers initialized")
	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	// Stop accepting work first; running scans get the stop timeout
	if a.Worker != nil {
		a.Worker.Stop()
		a.Logger.Info().Msg("Scan worker stopped")
	}

	if a.Maintenance != nil {
		a.Maintenance.Stop()
	}

	if a.LogStream != nil {
		if err := a.LogStream.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop log streamer")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
