package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/logger"
	"github.com/jonesrussell/pricefeed/internal/queue"
)

func newTestQueue(t *testing.T, opts ...queue.Option) (*queue.Queue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return queue.New(client, logger.NewNopLogger(), opts...), mr
}

func TestEnqueueDequeue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "feed-1", domain.TriggerScheduled)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	require.Equal(t, "feed-1", job.FeedID)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, job.ID, got.ID)
	require.Equal(t, domain.TriggerScheduled, got.Trigger)

	// Queue drained.
	next, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestEnqueueDuplicate(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "feed-1", domain.TriggerScheduled)
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, "feed-1", domain.TriggerManual)
	require.ErrorIs(t, err, queue.ErrDuplicate)

	// A different feed is unaffected.
	_, err = q.Enqueue(ctx, "feed-2", domain.TriggerScheduled)
	require.NoError(t, err)
}

func TestDuplicateClearsAfterAck(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "feed-1", domain.TriggerScheduled)
	require.NoError(t, err)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	// Still reserved while in flight.
	pending, err := q.Pending(ctx, "feed-1")
	require.NoError(t, err)
	require.True(t, pending)

	require.NoError(t, q.Ack(ctx, job))

	pending, err = q.Pending(ctx, "feed-1")
	require.NoError(t, err)
	require.False(t, pending)

	_, err = q.Enqueue(ctx, "feed-1", domain.TriggerScheduled)
	require.NoError(t, err)
}

func TestManualJobsDequeueFirst(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "feed-scheduled", domain.TriggerScheduled)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "feed-manual", domain.TriggerManual)
	require.NoError(t, err)

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "feed-manual", first.FeedID)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "feed-scheduled", second.FeedID)
}

func TestFailBacksOff(t *testing.T) {
	q, mr := newTestQueue(t, queue.WithBackoffBase(time.Minute))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "feed-1", domain.TriggerScheduled)
	require.NoError(t, err)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, job, errors.New("connect timeout")))
	require.Equal(t, 1, job.Attempt)

	// Not ready yet: backoff pushes the score into the future.
	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	// The unique key survives a retry so the feed stays reserved.
	pending, err := q.Pending(ctx, "feed-1")
	require.NoError(t, err)
	require.True(t, pending)

	// The job is parked in the scheduled set awaiting its retry time.
	require.True(t, mr.Exists("pricefeed:queue:scheduled"))
}

func TestFailDeadLettersAfterMaxAttempts(t *testing.T) {
	q, _ := newTestQueue(t, queue.WithMaxAttempts(2), queue.WithBackoffBase(time.Millisecond))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "feed-1", domain.TriggerScheduled)
	require.NoError(t, err)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	// First failure retries.
	require.NoError(t, q.Fail(ctx, job, errors.New("boom")))

	time.Sleep(5 * time.Millisecond)
	retried, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, retried)
	require.Equal(t, 1, retried.Attempt)

	// Second failure exhausts the budget and dead-letters.
	require.NoError(t, q.Fail(ctx, retried, errors.New("boom again")))

	_, _, dead, err := q.Depths(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), dead)

	// Dead-lettering releases the unique key.
	pending, err := q.Pending(ctx, "feed-1")
	require.NoError(t, err)
	require.False(t, pending)
}

func TestDepths(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "feed-1", domain.TriggerScheduled)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "feed-2", domain.TriggerManual)
	require.NoError(t, err)

	manual, scheduled, dead, err := q.Depths(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), manual)
	require.Equal(t, int64(1), scheduled)
	require.Equal(t, int64(0), dead)
}
