package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/pricefeed/internal/logger"
)

// RedisTracker implements Tracker on Redis counters and lists. Counters
// carry a rolling TTL so stats reflect recent activity, not all time.
type RedisTracker struct {
	client redis.UniversalClient
	keys   *RedisKeys
	log    logger.Logger
}

// NewRedisTracker creates a new tracker
func NewRedisTracker(client redis.UniversalClient, log logger.Logger) *RedisTracker {
	return &RedisTracker{
		client: client,
		keys:   NewRedisKeys(KeyPrefixMetrics),
		log:    log,
	}
}

// IncrementWritten adds to the written-observation counter for a feed
func (t *RedisTracker) IncrementWritten(ctx context.Context, feedID string, n int64) error {
	return t.incrBy(ctx, t.keys.Written(feedID), n, "written")
}

// IncrementQuarantined adds to the quarantined counter for a feed
func (t *RedisTracker) IncrementQuarantined(ctx context.Context, feedID string, n int64) error {
	return t.incrBy(ctx, t.keys.Quarantined(feedID), n, "quarantined")
}

// IncrementErrors increments the run-error counter for a feed
func (t *RedisTracker) IncrementErrors(ctx context.Context, feedID string) error {
	return t.incrBy(ctx, t.keys.Errors(feedID), 1, "errors")
}

func (t *RedisTracker) incrBy(ctx context.Context, key string, n int64, counter string) error {
	if n == 0 {
		return nil
	}
	ttl := MetricsTTLDays * HoursPerDay * time.Hour

	pipe := t.client.Pipeline()
	pipe.IncrBy(ctx, key, n)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		t.log.Warn("failed to increment counter",
			logger.String("counter", counter),
			logger.String("redis_key", key),
			logger.Error(err))
		return fmt.Errorf("increment %s counter: %w", counter, err)
	}
	return nil
}

// AddRecentRun pushes a completed run onto the recent activity list
func (t *RedisTracker) AddRecentRun(ctx context.Context, run RecentRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	ttl := RecentRunsTTLDays * HoursPerDay * time.Hour

	pipe := t.client.Pipeline()
	pipe.LPush(ctx, KeyRecentRuns, data)
	pipe.LTrim(ctx, KeyRecentRuns, 0, MaxRecentRuns-1)
	pipe.Expire(ctx, KeyRecentRuns, ttl)

	if _, err = pipe.Exec(ctx); err != nil {
		t.log.Warn("failed to add recent run",
			logger.String("run_id", run.RunID),
			logger.String("feed_id", run.FeedID),
			logger.Error(err))
		return fmt.Errorf("add recent run: %w", err)
	}
	return nil
}

// GetStats returns aggregated statistics for the given feeds
func (t *RedisTracker) GetStats(ctx context.Context, feedIDs []string) (*Stats, error) {
	pipe := t.client.Pipeline()

	writtenCmds := make(map[string]*redis.StringCmd)
	quarantinedCmds := make(map[string]*redis.StringCmd)
	errorCmds := make(map[string]*redis.StringCmd)

	for _, feedID := range feedIDs {
		writtenCmds[feedID] = pipe.Get(ctx, t.keys.Written(feedID))
		quarantinedCmds[feedID] = pipe.Get(ctx, t.keys.Quarantined(feedID))
		errorCmds[feedID] = pipe.Get(ctx, t.keys.Errors(feedID))
	}
	lastIngestCmd := pipe.Get(ctx, KeyLastIngest)

	if _, execErr := pipe.Exec(ctx); execErr != nil && !errors.Is(execErr, redis.Nil) {
		return nil, fmt.Errorf("execute pipeline: %w", execErr)
	}

	stats := &Stats{
		Feeds: make([]FeedStats, 0, len(feedIDs)),
	}

	for _, feedID := range feedIDs {
		feedStats := FeedStats{FeedID: feedID}

		// Missing keys read as zero.
		if v, err := writtenCmds[feedID].Int64(); err == nil {
			feedStats.Written = v
			stats.TotalWritten += v
		}
		if v, err := quarantinedCmds[feedID].Int64(); err == nil {
			feedStats.Quarantined = v
			stats.TotalQuarantined += v
		}
		if v, err := errorCmds[feedID].Int64(); err == nil {
			feedStats.Errors = v
			stats.TotalErrors += v
		}

		stats.Feeds = append(stats.Feeds, feedStats)
	}

	if lastIngestStr, err := lastIngestCmd.Result(); err == nil && lastIngestStr != "" {
		if lastIngest, parseErr := time.Parse(time.RFC3339, lastIngestStr); parseErr == nil {
			stats.LastIngest = lastIngest
		}
	}

	return stats, nil
}

// GetRecentRuns returns recently completed runs, newest first
func (t *RedisTracker) GetRecentRuns(ctx context.Context, limit int) ([]RecentRun, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > MaxRecentRuns {
		limit = MaxRecentRuns
	}

	results, err := t.client.LRange(ctx, KeyRecentRuns, 0, int64(limit-1)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []RecentRun{}, nil
		}
		return nil, fmt.Errorf("get recent runs: %w", err)
	}

	runs := make([]RecentRun, 0, len(results))
	for _, result := range results {
		var run RecentRun
		if unmarshalErr := json.Unmarshal([]byte(result), &run); unmarshalErr != nil {
			t.log.Warn("failed to unmarshal recent run", logger.Error(unmarshalErr))
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// UpdateLastIngest updates the last ingest timestamp
func (t *RedisTracker) UpdateLastIngest(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := t.client.Set(ctx, KeyLastIngest, now, 0).Err(); err != nil {
		t.log.Warn("failed to update last ingest", logger.Error(err))
		return fmt.Errorf("update last ingest: %w", err)
	}
	return nil
}
