// Package queue implements the shared work queue on Redis sorted sets.
//
// The queue guarantees the three properties the scheduler relies on:
// enqueue-with-unique-key (no duplicate manual-trigger jobs), priority
// (manual triggers outrank scheduled ones) and bounded retry with
// exponential backoff.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/logger"
)

const (
	manualKey    = "pricefeed:queue:manual"
	scheduledKey = "pricefeed:queue:scheduled"
	deadKey      = "pricefeed:queue:dead"
	uniquePrefix = "pricefeed:queue:unique:"

	// uniqueTTL caps how long a unique-key reservation can outlive a
	// crashed worker before the feed becomes triggerable again.
	uniqueTTL = 2 * time.Hour

	defaultMaxAttempts = 3
	defaultBackoffBase = time.Minute
)

// ErrDuplicate is returned when an enqueue's unique key is already held by
// a pending or in-flight job.
var ErrDuplicate = errors.New("job with this unique key already pending")

// Job is one unit of ingest work: a single feed run.
type Job struct {
	ID         string             `json:"id"`
	FeedID     string             `json:"feed_id"`
	Trigger    domain.TriggerKind `json:"trigger"`
	Attempt    int                `json:"attempt"`
	EnqueuedAt time.Time          `json:"enqueued_at"`
}

// Queue is a Redis-backed priority work queue.
type Queue struct {
	client      *redis.Client
	log         logger.Logger
	maxAttempts int
	backoffBase time.Duration
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxAttempts overrides the retry budget.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) { q.maxAttempts = n }
}

// WithBackoffBase overrides the first retry delay.
func WithBackoffBase(d time.Duration) Option {
	return func(q *Queue) { q.backoffBase = d }
}

// New creates a queue.
func New(client *redis.Client, log logger.Logger, opts ...Option) *Queue {
	q := &Queue{
		client:      client,
		log:         log,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a job for the feed. The feed id doubles as the unique key:
// while a job for the feed is pending or in flight, further enqueues
// return ErrDuplicate.
func (q *Queue) Enqueue(ctx context.Context, feedID string, trigger domain.TriggerKind) (*Job, error) {
	reserved, err := q.client.SetNX(ctx, uniquePrefix+feedID, "1", uniqueTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve unique key: %w", err)
	}
	if !reserved {
		return nil, ErrDuplicate
	}

	job := &Job{
		ID:         uuid.New().String(),
		FeedID:     feedID,
		Trigger:    trigger,
		Attempt:    0,
		EnqueuedAt: time.Now().UTC(),
	}

	if addErr := q.add(ctx, job, time.Now()); addErr != nil {
		// Roll back the reservation so the feed stays triggerable.
		q.client.Del(ctx, uniquePrefix+feedID)
		return nil, addErr
	}

	q.log.Debug("job enqueued",
		logger.String("job_id", job.ID),
		logger.String("feed_id", feedID),
		logger.String("trigger", string(trigger)))
	return job, nil
}

// Dequeue pops the next ready job, manual jobs first. Returns nil when
// nothing is ready.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	for _, key := range []string{manualKey, scheduledKey} {
		job, err := q.popReady(ctx, key)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
	}
	return nil, nil
}

// Ack releases the job's unique key after successful processing.
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	if err := q.client.Del(ctx, uniquePrefix+job.FeedID).Err(); err != nil {
		return fmt.Errorf("release unique key: %w", err)
	}
	return nil
}

// Fail re-schedules the job with exponential backoff, or dead-letters it
// once the attempt budget is exhausted.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) error {
	job.Attempt++
	if job.Attempt >= q.maxAttempts {
		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal dead job: %w", err)
		}
		if pushErr := q.client.LPush(ctx, deadKey, payload).Err(); pushErr != nil {
			return fmt.Errorf("dead-letter job: %w", pushErr)
		}
		if ackErr := q.Ack(ctx, job); ackErr != nil {
			return ackErr
		}
		q.log.Warn("job dead-lettered",
			logger.String("job_id", job.ID),
			logger.String("feed_id", job.FeedID),
			logger.Int("attempts", job.Attempt),
			logger.Error(cause))
		return nil
	}

	delay := time.Duration(math.Pow(2, float64(job.Attempt-1))) * q.backoffBase
	if err := q.add(ctx, job, time.Now().Add(delay)); err != nil {
		return err
	}

	q.log.Info("job scheduled for retry",
		logger.String("job_id", job.ID),
		logger.String("feed_id", job.FeedID),
		logger.Int("attempt", job.Attempt),
		logger.Duration("delay", delay),
		logger.Error(cause))
	return nil
}

// Pending reports whether a job for the feed is pending or in flight.
func (q *Queue) Pending(ctx context.Context, feedID string) (bool, error) {
	n, err := q.client.Exists(ctx, uniquePrefix+feedID).Result()
	if err != nil {
		return false, fmt.Errorf("check unique key: %w", err)
	}
	return n == 1, nil
}

// Depths returns the current manual/scheduled/dead queue sizes.
func (q *Queue) Depths(ctx context.Context) (manual, scheduled, dead int64, err error) {
	if manual, err = q.client.ZCard(ctx, manualKey).Result(); err != nil {
		return 0, 0, 0, fmt.Errorf("manual depth: %w", err)
	}
	if scheduled, err = q.client.ZCard(ctx, scheduledKey).Result(); err != nil {
		return 0, 0, 0, fmt.Errorf("scheduled depth: %w", err)
	}
	if dead, err = q.client.LLen(ctx, deadKey).Result(); err != nil {
		return 0, 0, 0, fmt.Errorf("dead depth: %w", err)
	}
	return manual, scheduled, dead, nil
}

func (q *Queue) add(ctx context.Context, job *Job, readyAt time.Time) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	key := scheduledKey
	if job.Trigger == domain.TriggerManual {
		key = manualKey
	}

	if addErr := q.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: payload,
	}).Err(); addErr != nil {
		return fmt.Errorf("add job: %w", addErr)
	}
	return nil
}

// popReady claims one ready member from a sorted set. The ZRem result
// arbitrates between concurrent workers: only the one whose remove
// reports 1 owns the job.
func (q *Queue) popReady(ctx context.Context, key string) (*Job, error) {
	now := float64(time.Now().UnixMilli())

	for {
		members, err := q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   fmt.Sprintf("%f", now),
			Count: 1,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("range ready jobs: %w", err)
		}
		if len(members) == 0 {
			return nil, nil
		}

		removed, err := q.client.ZRem(ctx, key, members[0]).Result()
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		if removed == 0 {
			// Another worker claimed it first; look again.
			continue
		}

		var job Job
		if unmarshalErr := json.Unmarshal([]byte(members[0]), &job); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal job: %w", unmarshalErr)
		}
		return &job, nil
	}
}
