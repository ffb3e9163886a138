// Package app provides the main application lifecycle management for the
// pricefeed ingestor.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/pricefeed/internal/api"
	"github.com/jonesrussell/pricefeed/internal/config"
	"github.com/jonesrussell/pricefeed/internal/database"
	"github.com/jonesrussell/pricefeed/internal/events"
	"github.com/jonesrussell/pricefeed/internal/fetcher"
	"github.com/jonesrussell/pricefeed/internal/ingest"
	"github.com/jonesrussell/pricefeed/internal/logger"
	"github.com/jonesrussell/pricefeed/internal/metrics"
	"github.com/jonesrussell/pricefeed/internal/quarantine"
	"github.com/jonesrussell/pricefeed/internal/queue"
	"github.com/jonesrussell/pricefeed/internal/resolver"
	"github.com/jonesrussell/pricefeed/internal/scheduler"
	"github.com/jonesrussell/pricefeed/internal/writer"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second

	cronTickSpec  = "* * * * *"  // every minute
	cronPruneSpec = "30 3 * * *" // daily, off-peak
)

// App represents the ingestor with all its dependencies wired.
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *redis.Client
	scheduler   *scheduler.Scheduler
	workers     *scheduler.WorkerPool
	cron        *cron.Cron
	httpServer  *http.Server
	version     string
}

// Options contains configuration for creating a new App
type Options struct {
	ConfigPath string
	Version    string
}

// New creates a new App instance with all dependencies initialized
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "pricefeed-ingestor"),
		logger.String("version", opts.Version),
	)

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), database.DefaultPingTimeout)
	defer cancel()
	if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to Redis: %w", pingErr)
	}

	// Repositories share the raw *sql.DB under sqlx.
	feedRepo := database.NewFeedRepository(db.DB)
	runRepo := database.NewRunRepository(db.DB)
	quarantineRepo := database.NewQuarantineRepository(db.DB)
	priceRepo := database.NewPriceRepository(db.DB)
	productRepo := database.NewProductRepository(db.DB)
	relationshipRepo := database.NewRelationshipRepository(db.DB)

	uploads, err := fetcher.NewDirUploadStore(cfg.Uploads.Dir)
	if err != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("create upload store: %w", err)
	}

	jobQueue := queue.New(redisClient, appLogger)
	publisher := events.NewRedisPublisher(redisClient, appLogger)
	tracker := metrics.NewRedisTracker(redisClient, appLogger)
	collectors := metrics.NewCollectors(prometheus.DefaultRegisterer)

	feedFetcher := fetcher.New(uploads, appLogger, fetcher.WithTimeout(cfg.Fetcher.Timeout))
	priceWriter := writer.New(productRepo, priceRepo, appLogger)
	productResolver := resolver.New(productRepo, appLogger, cfg.Resolver.Version)
	productResolver.MatchThreshold = cfg.MatchThresholdTier()
	manager := quarantine.NewManager(quarantineRepo, productRepo, feedRepo, appLogger)

	runner := ingest.NewRunner(ingest.Deps{
		Feeds:         feedRepo,
		Runs:          runRepo,
		Relationships: relationshipRepo,
		Fetcher:       feedFetcher,
		Quarantiner:   manager,
		Writer:        priceWriter,
		Resolver:      productResolver,
		Publisher:     publisher,
		Collectors:    collectors,
		Tracker:       tracker,
		Grace:         cfg.Grace,
		Log:           appLogger,
	})

	sched := scheduler.New(feedRepo, runRepo, jobQueue, appLogger)
	workers := scheduler.NewWorkerPool(jobQueue, runner, scheduler.WorkerPoolConfig{
		Workers: cfg.Scheduler.Workers,
	}, appLogger)

	router := api.NewRouter(api.Deps{
		Feeds:         feedRepo,
		Runs:          runRepo,
		Quarantine:    quarantineRepo,
		Manager:       manager,
		Relationships: relationshipRepo,
		Uploads:       uploads,
		Tracker:       tracker,
		QueueStats:    jobQueue,
		Tester:        fetcher.New(uploads, appLogger, fetcher.WithTimeout(fetcher.DefaultInteractiveTimeout)),
		DB:            db,
		Redis:         redisClient,
		CORSOrigins:   cfg.Server.CORSOrigins,
		Debug:         cfg.Debug,
		Log:           appLogger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &App{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		redisClient: redisClient,
		scheduler:   sched,
		workers:     workers,
		cron:        cron.New(),
		httpServer:  httpServer,
		version:     opts.Version,
	}, nil
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.scheduleCronJobs(runCtx); err != nil {
		return err
	}
	a.cron.Start()
	a.workers.Start(runCtx)

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening",
			logger.String("address", a.config.Server.Address))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	return a.waitForShutdown(cancel, serverErr)
}

// scheduleCronJobs registers the periodic scheduler entries: Tick and
// DrainManualRuns every minute, PruneRuns daily.
func (a *App) scheduleCronJobs(ctx context.Context) error {
	if _, err := a.cron.AddFunc(cronTickSpec, func() {
		if _, tickErr := a.scheduler.Tick(ctx); tickErr != nil {
			a.logger.Error("tick failed", logger.Error(tickErr))
		}
		if _, drainErr := a.scheduler.DrainManualRuns(ctx); drainErr != nil {
			a.logger.Error("manual drain failed", logger.Error(drainErr))
		}
	}); err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}

	if _, err := a.cron.AddFunc(cronPruneSpec, func() {
		if _, pruneErr := a.scheduler.PruneRuns(ctx, a.config.Scheduler.RunRetention); pruneErr != nil {
			a.logger.Error("run pruning failed", logger.Error(pruneErr))
		}
	}); err != nil {
		return fmt.Errorf("schedule prune: %w", err)
	}
	return nil
}

// waitForShutdown handles graceful shutdown
func (a *App) waitForShutdown(cancel context.CancelFunc, serverErr chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var shutdownErr error
	select {
	case sig := <-sigChan:
		a.logger.Info("shutting down gracefully", logger.String("signal", sig.String()))
	case err := <-serverErr:
		a.logger.Error("http server error", logger.Error(err))
		shutdownErr = err
	}

	cancel()

	cronCtx := a.cron.Stop()
	<-cronCtx.Done()
	a.workers.Stop()
	a.shutdownHTTPServer()

	a.logger.Info("service stopped")
	return shutdownErr
}

// shutdownHTTPServer gracefully shuts down the HTTP server
func (a *App) shutdownHTTPServer() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("server shutdown error", logger.Error(err))
	} else {
		a.logger.Info("http server stopped")
	}
}

// Close cleans up resources
func (a *App) Close() error {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close Redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger
func (a *App) Logger() logger.Logger {
	return a.logger
}
