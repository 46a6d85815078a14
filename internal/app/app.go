package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/common"
	"github.com/ternarybob/lotwatch/internal/handlers"
	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/parsers"
	"github.com/ternarybob/lotwatch/internal/services/events"
	"github.com/ternarybob/lotwatch/internal/services/fetch"
	"github.com/ternarybob/lotwatch/internal/services/ingest"
	"github.com/ternarybob/lotwatch/internal/services/orchestrator"
	"github.com/ternarybob/lotwatch/internal/services/scheduler"
	"github.com/ternarybob/lotwatch/internal/services/seed"
	"github.com/ternarybob/lotwatch/internal/storage/blob"
	"github.com/ternarybob/lotwatch/internal/storage/postgres"
)

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Storage
	Store     *postgres.Store
	BlobStore interfaces.BlobStorage

	// Model token registry used by URL building
	Registry *parsers.ModelRegistry

	// Services
	EventService        interfaces.EventService
	FetchService        interfaces.FetchService
	IngestService       interfaces.IngestService
	OrchestratorService interfaces.OrchestratorService
	SchedulerService    interfaces.SchedulerService
	SeedService         *seed.Service

	// HTTP handlers
	JobHandler     *handlers.JobHandler
	DealerHandler  *handlers.DealerHandler
	ListingHandler *handlers.ListingHandler
	StatusHandler  *handlers.StatusHandler
	WSHandler      *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	appCtx, cancel := context.WithCancel(ctx)
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       appCtx,
		cancelCtx: cancel,
	}

	// Connect Postgres and apply the schema
	store, err := postgres.New(appCtx, cfg.Database, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.Store = store

	if schemaPath := findSchemaFile(); schemaPath != "" {
		if err := store.Migrate(appCtx, schemaPath); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	} else {
		logger.Warn().Msg("Schema file not found, skipping migration")
	}

	// Blob store for raw page snapshots
	blobStore, err := blob.NewStore(cfg.Blob, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	app.BlobStore = blobStore

	// Model token registry (compiled-in defaults merged with models.yaml)
	registry, err := parsers.LoadModelRegistry(cfg.Registry.Path)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to load model registry: %w", err)
	}
	app.Registry = registry
	logger.Info().
		Int("models", len(registry.Models())).
		Str("path", cfg.Registry.Path).
		Msg("Model registry loaded")

	// Event bus and websocket fan-out. The websocket handler subscribes on
	// construction so it must follow the event service.
	app.EventService = events.NewService(logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger, &cfg.WebSocket)

	// Scrape pipeline services
	app.FetchService = fetch.NewClient(cfg.Fetch, logger)
	app.IngestService = ingest.NewService(store, cfg.Scrape.InventorySourceRank, logger)
	app.OrchestratorService = orchestrator.NewService(
		store,
		store,
		app.FetchService,
		app.IngestService,
		app.BlobStore,
		app.EventService,
		app.Registry,
		cfg.Scrape,
		logger,
	)

	// Dealer catalog importer
	app.SeedService = seed.NewService(store, logger)

	// Scheduler for recurring sweeps, opt-in via config
	if cfg.Scheduler.Enabled {
		app.SchedulerService = scheduler.NewService(app.OrchestratorService, cfg.Scheduler, logger)
		if err := app.SchedulerService.Start(appCtx); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// HTTP handlers
	app.JobHandler = handlers.NewJobHandler(app.OrchestratorService, store, store, logger)
	app.DealerHandler = handlers.NewDealerHandler(store, app.SeedService, logger)
	app.ListingHandler = handlers.NewListingHandler(store, logger)
	app.StatusHandler = handlers.NewStatusHandler(store, app.SchedulerService, logger)

	logger.Info().Msg("Application initialized")

	return app, nil
}

// Close tears down application components in reverse dependency order.
func (a *App) Close() {
	if a.SchedulerService != nil && a.SchedulerService.IsRunning() {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}

	// Stop background work before closing the stores under it
	a.cancelCtx()

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Event service close failed")
		}
	}

	if a.BlobStore != nil {
		if err := a.BlobStore.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Blob store close failed")
		}
	}

	if a.Store != nil {
		a.Store.Close()
	}

	a.Logger.Info().Msg("Application closed")
}

// findSchemaFile locates deployments/schema.sql relative to the working
// directory or the executable.
func findSchemaFile() string {
	candidates := []string{
		"deployments/schema.sql",
		"schema.sql",
	}
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		candidates = append(candidates,
			filepath.Join(execDir, "schema.sql"),
			filepath.Join(execDir, "deployments", "schema.sql"),
		)
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
