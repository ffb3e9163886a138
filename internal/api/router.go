// Package api is the operator-facing HTTP surface: feed management,
// manual triggers, run history, quarantine workflows, uploads and stats.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/pricefeed/internal/database"
	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/fetcher"
	"github.com/jonesrussell/pricefeed/internal/logger"
	"github.com/jonesrussell/pricefeed/internal/metrics"
	"github.com/jonesrussell/pricefeed/internal/quarantine"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	serviceVersion       = "1.0.0"

	defaultListLimit = 50
	maxListLimit     = 500
)

// Pinger is anything with a context ping, used for health checks.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// FeedStore is the feed persistence the API needs.
type FeedStore interface {
	Create(ctx context.Context, feed *domain.Feed) error
	GetByID(ctx context.Context, id string) (*domain.Feed, error)
	UpdateStatus(ctx context.Context, id string, status domain.FeedStatus) error
	SetManualPending(ctx context.Context, id string, pending bool) error
}

// RunStore is the run persistence the API needs.
type RunStore interface {
	GetByID(ctx context.Context, id string) (*domain.FeedRun, error)
	ListByFeed(ctx context.Context, feedID string, limit int) ([]domain.FeedRun, error)
}

// QuarantineStore is the read side of the quarantine pen.
type QuarantineStore interface {
	GetByID(ctx context.Context, id string) (*domain.QuarantinedRecord, error)
	List(ctx context.Context, filter database.QuarantineFilter) ([]domain.QuarantinedRecord, error)
	ListCorrections(ctx context.Context, quarantineID string) ([]domain.FeedCorrection, error)
	CountByStatus(ctx context.Context) (map[domain.QuarantineStatus]int64, error)
}

// QuarantineManager is the write side: corrections and reprocessing.
type QuarantineManager interface {
	ApplyCorrection(ctx context.Context, id, field, newValue, author string) (*domain.FeedCorrection, error)
	Reprocess(ctx context.Context, id string) ([]domain.BlockingError, error)
	ReprocessAll(ctx context.Context, filter database.QuarantineFilter) (*quarantine.BulkResult, error)
	DismissAll(ctx context.Context, filter database.QuarantineFilter, note string) (*quarantine.BulkResult, error)
}

// RelationshipStore reads the retailer-side visibility inputs.
type RelationshipStore interface {
	ListByRetailer(ctx context.Context, retailerID string) ([]domain.MerchantRelationship, error)
	GetEligibility(ctx context.Context, retailerID string) (domain.RetailerEligibility, error)
}

// UploadStore stages push uploads for the fetcher to consume.
type UploadStore interface {
	Put(ctx context.Context, feedID string, data []byte) error
}

// QueueStats exposes queue depths for the overview endpoint.
type QueueStats interface {
	Depths(ctx context.Context) (manual, scheduled, dead int64, err error)
}

// Router holds the API dependencies
type Router struct {
	feeds         FeedStore
	runs          RunStore
	qstore        QuarantineStore
	qmanager      QuarantineManager
	relationships RelationshipStore
	uploads       UploadStore
	tracker       metrics.Tracker
	queueStats    QueueStats
	tester        *fetcher.Fetcher
	db            Pinger
	redisClient   *redis.Client
	corsOrigins   []string
	debug         bool
	log           logger.Logger
}

// Deps bundles the router's collaborators.
type Deps struct {
	Feeds         FeedStore
	Runs          RunStore
	Quarantine    QuarantineStore
	Manager       QuarantineManager
	Relationships RelationshipStore
	Uploads       UploadStore
	Tracker       metrics.Tracker
	QueueStats    QueueStats
	Tester        *fetcher.Fetcher
	DB            Pinger
	Redis         *redis.Client
	CORSOrigins   []string
	Debug         bool
	Log           logger.Logger
}

// NewRouter creates a new API router
func NewRouter(deps Deps) *Router {
	return &Router{
		feeds:         deps.Feeds,
		runs:          deps.Runs,
		qstore:        deps.Quarantine,
		qmanager:      deps.Manager,
		relationships: deps.Relationships,
		uploads:       deps.Uploads,
		tracker:       deps.Tracker,
		queueStats:    deps.QueueStats,
		tester:        deps.Tester,
		db:            deps.DB,
		redisClient:   deps.Redis,
		corsOrigins:   deps.CORSOrigins,
		debug:         deps.Debug,
		log:           deps.Log,
	}
}

// SetupRoutes builds the gin engine with middleware and all routes.
func (r *Router) SetupRoutes() *gin.Engine {
	if !r.debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(r.corsMiddleware())

	router.GET("/health", r.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	feeds := v1.Group("/feeds")
	feeds.POST("", r.createFeed)
	feeds.GET("/:id", r.getFeed)
	feeds.PUT("/:id/status", r.updateFeedStatus)
	feeds.POST("/:id/trigger", r.triggerRun)
	feeds.POST("/:id/upload", r.uploadPayload)
	feeds.POST("/:id/test-fetch", r.testFetch)
	feeds.GET("/:id/runs", r.listRuns)

	runs := v1.Group("/runs")
	runs.GET("/:id", r.getRun)

	retailers := v1.Group("/retailers")
	retailers.GET("/:id/visibility", r.getRetailerVisibility)

	quarantined := v1.Group("/quarantine")
	quarantined.GET("", r.listQuarantined)
	quarantined.POST("/reprocess", r.bulkReprocess) // More specific route before :id
	quarantined.POST("/dismiss", r.bulkDismiss)
	quarantined.GET("/:id", r.getQuarantined)
	quarantined.POST("/:id/corrections", r.applyCorrection)
	quarantined.POST("/:id/reprocess", r.reprocessOne)

	stats := v1.Group("/stats")
	stats.GET("/overview", r.getStatsOverview)
	stats.GET("/runs/recent", r.getRecentRuns)

	return router
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(r.corsOrigins) > 0 {
		cfg.AllowOrigins = r.corsOrigins
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AllowCredentials = len(r.corsOrigins) > 0
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	return cors.New(cfg)
}

// healthCheck reports database and Redis connectivity.
func (r *Router) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":  healthStatusHealthy,
		"service": "pricefeed-ingestor",
		"version": serviceVersion,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	dbConnected := true
	if err := r.db.PingContext(ctx); err != nil {
		dbConnected = false
		health["status"] = healthStatusDegraded
	}
	health["database"] = gin.H{"connected": dbConnected}

	redisConnected := true
	if err := r.redisClient.Ping(ctx).Err(); err != nil {
		redisConnected = false
		if health["status"] == healthStatusHealthy {
			health["status"] = healthStatusDegraded
		}
	}
	health["redis"] = gin.H{"connected": redisConnected}

	c.JSON(http.StatusOK, health)
}
