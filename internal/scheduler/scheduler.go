// Package scheduler decides when feeds run. It claims due feeds, drains
// manual-run requests and prunes old run history; the actual ingest work
// happens on the worker pool consuming the shared queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/logger"
	"github.com/jonesrussell/pricefeed/internal/queue"
)

const (
	// defaultClaimBatch bounds one Tick's claim so a single instance
	// cannot starve its peers of due feeds.
	defaultClaimBatch = 100
	// defaultManualBatch bounds one DrainManualRuns pass.
	defaultManualBatch = 100
)

// FeedStore is the feed persistence the scheduler needs.
type FeedStore interface {
	ClaimDue(ctx context.Context, limit int) ([]domain.Feed, error)
	ListManualPending(ctx context.Context, limit int) ([]domain.Feed, error)
	SetManualPending(ctx context.Context, id string, pending bool) error
}

// RunStore prunes run history.
type RunStore interface {
	PruneTerminal(ctx context.Context, retention time.Duration) (int64, error)
}

// JobQueue is the enqueue side of the work queue.
type JobQueue interface {
	Enqueue(ctx context.Context, feedID string, trigger domain.TriggerKind) (*queue.Job, error)
}

// Scheduler claims work and feeds the queue. Multiple instances may run
// concurrently; the SKIP LOCKED claim and the queue's unique keys keep
// them from duplicating work.
type Scheduler struct {
	feeds       FeedStore
	runs        RunStore
	queue       JobQueue
	log         logger.Logger
	claimBatch  int
	manualBatch int
}

// New creates a scheduler.
func New(feeds FeedStore, runs RunStore, q JobQueue, log logger.Logger) *Scheduler {
	return &Scheduler{
		feeds:       feeds,
		runs:        runs,
		queue:       q,
		log:         log,
		claimBatch:  defaultClaimBatch,
		manualBatch: defaultManualBatch,
	}
}

// Tick claims due feeds and enqueues one scheduled job per claim. The
// claim statement already advanced each feed's next_run_at, so a crash
// between claim and enqueue costs at most one cycle for those feeds.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	feeds, err := s.feeds.ClaimDue(ctx, s.claimBatch)
	if err != nil {
		return 0, fmt.Errorf("claim due feeds: %w", err)
	}

	enqueued := 0
	for i := range feeds {
		if _, enqueueErr := s.queue.Enqueue(ctx, feeds[i].ID, domain.TriggerScheduled); enqueueErr != nil {
			if errors.Is(enqueueErr, queue.ErrDuplicate) {
				// A job for the feed is already pending; its run covers
				// this cycle.
				continue
			}
			return enqueued, fmt.Errorf("enqueue feed %s: %w", feeds[i].ID, enqueueErr)
		}
		enqueued++
	}

	if len(feeds) > 0 {
		s.log.Info("tick claimed feeds",
			logger.Int("claimed", len(feeds)),
			logger.Int("enqueued", enqueued))
	}
	return enqueued, nil
}

// DrainManualRuns enqueues high-priority jobs for feeds flagged by an
// operator and clears the flag. The flag clears even when a job is
// already pending, so a second trigger never double-runs a feed.
func (s *Scheduler) DrainManualRuns(ctx context.Context) (int, error) {
	feeds, err := s.feeds.ListManualPending(ctx, s.manualBatch)
	if err != nil {
		return 0, fmt.Errorf("list manual pending: %w", err)
	}

	enqueued := 0
	for i := range feeds {
		_, enqueueErr := s.queue.Enqueue(ctx, feeds[i].ID, domain.TriggerManual)
		switch {
		case enqueueErr == nil:
			enqueued++
		case errors.Is(enqueueErr, queue.ErrDuplicate):
			// Fall through to clear the flag; the pending job satisfies
			// the request.
		default:
			return enqueued, fmt.Errorf("enqueue manual run for %s: %w", feeds[i].ID, enqueueErr)
		}

		if clearErr := s.feeds.SetManualPending(ctx, feeds[i].ID, false); clearErr != nil {
			return enqueued, fmt.Errorf("clear manual flag for %s: %w", feeds[i].ID, clearErr)
		}
	}

	if enqueued > 0 {
		s.log.Info("manual runs drained", logger.Int("enqueued", enqueued))
	}
	return enqueued, nil
}

// PruneRuns deletes terminal runs older than the retention window.
func (s *Scheduler) PruneRuns(ctx context.Context, retention time.Duration) (int64, error) {
	deleted, err := s.runs.PruneTerminal(ctx, retention)
	if err != nil {
		return deleted, fmt.Errorf("prune runs: %w", err)
	}
	if deleted > 0 {
		s.log.Info("old runs pruned",
			logger.Int64("deleted", deleted),
			logger.Duration("retention", retention))
	}
	return deleted, nil
}
