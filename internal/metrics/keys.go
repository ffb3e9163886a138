package metrics

import "fmt"

const (
	// KeyPrefixMetrics is the prefix for all metrics keys
	KeyPrefixMetrics = "pricefeed:metrics"
	// KeyPrefixWritten is the prefix for written-observation counters
	KeyPrefixWritten = "written"
	// KeyPrefixQuarantined is the prefix for quarantined-record counters
	KeyPrefixQuarantined = "quarantined"
	// KeyPrefixErrors is the prefix for run-error counters
	KeyPrefixErrors = "errors"
	// KeyRecentRuns is the Redis key for the recent runs list
	KeyRecentRuns = "pricefeed:metrics:recent:runs"
	// KeyLastIngest is the Redis key for the last ingest timestamp
	KeyLastIngest = "pricefeed:metrics:last_ingest"
	// MaxRecentRuns is the maximum number of recent runs to keep
	MaxRecentRuns = 100
	// MetricsTTLDays is the TTL in days for metrics counters
	MetricsTTLDays = 30
	// RecentRunsTTLDays is the TTL in days for the recent runs list
	RecentRunsTTLDays = 7

	// HoursPerDay converts the day-based TTL constants to durations.
	HoursPerDay = 24
)

// RedisKeys provides methods to build Redis keys consistently
type RedisKeys struct {
	prefix string
}

// NewRedisKeys creates a new RedisKeys instance
func NewRedisKeys(prefix string) *RedisKeys {
	return &RedisKeys{prefix: prefix}
}

// Written returns the Redis key for the written counter for a feed
func (k *RedisKeys) Written(feedID string) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixWritten, feedID)
}

// Quarantined returns the Redis key for the quarantined counter for a feed
func (k *RedisKeys) Quarantined(feedID string) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixQuarantined, feedID)
}

// Errors returns the Redis key for the error counter for a feed
func (k *RedisKeys) Errors(feedID string) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixErrors, feedID)
}
