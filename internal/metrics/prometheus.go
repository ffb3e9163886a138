package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors holds the Prometheus instruments exported on /metrics.
// The Redis tracker feeds the operator dashboard; these feed alerting.
type Collectors struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	RowsRead         *prometheus.CounterVec
	RowsWritten      *prometheus.CounterVec
	RowsQuarantined  *prometheus.CounterVec
	FetchErrors      *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	FeedsByStatus    *prometheus.GaugeVec
	ResolverOutcomes *prometheus.CounterVec
}

// NewCollectors registers the ingest instruments with the registerer.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)

	return &Collectors{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricefeed",
			Name:      "runs_total",
			Help:      "Completed feed runs by trigger and final status.",
		}, []string{"trigger", "status"}),

		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pricefeed",
			Name:      "run_duration_seconds",
			Help:      "Wall time of feed runs from start to finish.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"trigger"}),

		RowsRead: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricefeed",
			Name:      "rows_read_total",
			Help:      "Rows read from feed payloads.",
		}, []string{"feed_id"}),

		RowsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricefeed",
			Name:      "rows_written_total",
			Help:      "Price observations written.",
		}, []string{"feed_id"}),

		RowsQuarantined: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricefeed",
			Name:      "rows_quarantined_total",
			Help:      "Records quarantined by blocking validation errors.",
		}, []string{"feed_id"}),

		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricefeed",
			Name:      "fetch_errors_total",
			Help:      "Transport fetch failures by error kind.",
		}, []string{"kind"}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pricefeed",
			Name:      "queue_depth",
			Help:      "Jobs waiting in the work queue.",
		}, []string{"priority"}),

		FeedsByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pricefeed",
			Name:      "feeds",
			Help:      "Configured feeds by lifecycle status.",
		}, []string{"status"}),

		ResolverOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricefeed",
			Name:      "resolver_outcomes_total",
			Help:      "Resolution outcomes by link status and tier.",
		}, []string{"status", "tier"}),
	}
}

// ObserveRun records one finished run.
func (c *Collectors) ObserveRun(trigger, status string, duration time.Duration) {
	c.RunsTotal.WithLabelValues(trigger, status).Inc()
	c.RunDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}
