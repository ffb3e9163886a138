package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/pricefeed/internal/logger"
	"github.com/jonesrussell/pricefeed/internal/metrics"
)

func newTestTracker(t *testing.T) (*metrics.RedisTracker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return metrics.NewRedisTracker(client, logger.NewNopLogger()), mr
}

func TestIncrementAndGetStats(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.IncrementWritten(ctx, "feed-1", 10))
	require.NoError(t, tracker.IncrementWritten(ctx, "feed-1", 5))
	require.NoError(t, tracker.IncrementQuarantined(ctx, "feed-1", 2))
	require.NoError(t, tracker.IncrementErrors(ctx, "feed-2"))

	stats, err := tracker.GetStats(ctx, []string{"feed-1", "feed-2"})
	require.NoError(t, err)

	require.Equal(t, int64(15), stats.TotalWritten)
	require.Equal(t, int64(2), stats.TotalQuarantined)
	require.Equal(t, int64(1), stats.TotalErrors)
	require.Len(t, stats.Feeds, 2)

	require.Equal(t, int64(15), stats.Feeds[0].Written)
	require.Equal(t, int64(2), stats.Feeds[0].Quarantined)
	require.Equal(t, int64(1), stats.Feeds[1].Errors)
}

func TestIncrementZeroIsNoop(t *testing.T) {
	tracker, mr := newTestTracker(t)

	require.NoError(t, tracker.IncrementWritten(context.Background(), "feed-1", 0))
	require.Empty(t, mr.Keys())
}

func TestGetStatsMissingFeedsReadZero(t *testing.T) {
	tracker, _ := newTestTracker(t)

	stats, err := tracker.GetStats(context.Background(), []string{"never-seen"})
	require.NoError(t, err)
	require.Equal(t, int64(0), stats.TotalWritten)
	require.Len(t, stats.Feeds, 1)
	require.Equal(t, int64(0), stats.Feeds[0].Written)
}

func TestCountersCarryTTL(t *testing.T) {
	tracker, mr := newTestTracker(t)

	require.NoError(t, tracker.IncrementWritten(context.Background(), "feed-1", 1))

	key := "pricefeed:metrics:written:feed-1"
	require.True(t, mr.Exists(key))
	require.Greater(t, mr.TTL(key), time.Duration(0))
}

func TestRecentRuns(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	finished := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.AddRecentRun(ctx, metrics.RecentRun{
			RunID:       "run-" + string(rune('a'+i)),
			FeedID:      "feed-1",
			FeedName:    "Main feed",
			Status:      "succeeded",
			RowsWritten: 10 * (i + 1),
			FinishedAt:  finished.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := tracker.GetRecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	// Newest first.
	require.Equal(t, "run-c", runs[0].RunID)
	require.Equal(t, 30, runs[0].RowsWritten)
	require.Equal(t, "run-a", runs[2].RunID)
}

func TestRecentRunsTrimsToCap(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < metrics.MaxRecentRuns+10; i++ {
		require.NoError(t, tracker.AddRecentRun(ctx, metrics.RecentRun{
			RunID:  "run",
			FeedID: "feed-1",
			Status: "succeeded",
		}))
	}

	runs, err := tracker.GetRecentRuns(ctx, metrics.MaxRecentRuns*2)
	require.NoError(t, err)
	require.Len(t, runs, metrics.MaxRecentRuns)
}

func TestUpdateLastIngest(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.UpdateLastIngest(ctx))

	stats, err := tracker.GetStats(ctx, nil)
	require.NoError(t, err)
	require.False(t, stats.LastIngest.IsZero())
	require.WithinDuration(t, time.Now().UTC(), stats.LastIngest, time.Minute)
}
