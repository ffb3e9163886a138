// Package ingest executes one feed run end to end: fetch, parse, validate,
// write, resolve, finish.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/events"
	"github.com/jonesrussell/pricefeed/internal/fetcher"
	"github.com/jonesrussell/pricefeed/internal/identity"
	"github.com/jonesrussell/pricefeed/internal/logger"
	"github.com/jonesrussell/pricefeed/internal/metrics"
	"github.com/jonesrussell/pricefeed/internal/parser"
	"github.com/jonesrussell/pricefeed/internal/quarantine"
	"github.com/jonesrussell/pricefeed/internal/writer"
)

// resolveBatchSize bounds the post-run resolution pass.
const resolveBatchSize = 500

// FeedStore is the feed persistence the runner needs.
type FeedStore interface {
	GetByID(ctx context.Context, id string) (*domain.Feed, error)
	RecordRunOutcome(ctx context.Context, feed *domain.Feed) error
}

// RunStore is the run persistence the runner needs.
type RunStore interface {
	Create(ctx context.Context, run *domain.FeedRun) error
	Finish(ctx context.Context, run *domain.FeedRun) error
}

// RelationshipStore reads the owning merchant's subscription state.
type RelationshipStore interface {
	GetSubscription(ctx context.Context, merchantID string) (*domain.Subscription, error)
}

// Fetcher retrieves feed payloads.
type Fetcher interface {
	Fetch(ctx context.Context, feedID string, cfg domain.TransportConfig) (*fetcher.Result, error)
}

// Quarantiner holds records that fail validation.
type Quarantiner interface {
	Hold(ctx context.Context, feedID, runID string, rec *domain.SourceRecord, blocking []domain.BlockingError) error
}

// PriceWriter persists accepted records.
type PriceWriter interface {
	WriteAll(ctx context.Context, feed *domain.Feed, run *domain.FeedRun, records []domain.SourceRecord) (*writer.Stats, error)
}

// Resolver re-resolves products without a current-version link.
type Resolver interface {
	ResolveBatch(ctx context.Context, limit int) (int, error)
}

// Runner executes feed runs. One instance is shared by all workers.
type Runner struct {
	feeds         FeedStore
	runs          RunStore
	relationships RelationshipStore
	fetcher       Fetcher
	quarantiner   Quarantiner
	writer        PriceWriter
	resolver      Resolver
	publisher     events.Publisher
	collectors    *metrics.Collectors
	tracker       metrics.Tracker
	grace         domain.GracePolicy
	log           logger.Logger
	tracer        trace.Tracer
}

// Deps bundles the runner's collaborators. Collectors and tracker may be
// nil when metrics are disabled.
type Deps struct {
	Feeds         FeedStore
	Runs          RunStore
	Relationships RelationshipStore
	Fetcher       Fetcher
	Quarantiner   Quarantiner
	Writer        PriceWriter
	Resolver      Resolver
	Publisher     events.Publisher
	Collectors    *metrics.Collectors
	Tracker       metrics.Tracker
	Grace         domain.GracePolicy
	Log           logger.Logger
}

// NewRunner creates a runner.
func NewRunner(deps Deps) *Runner {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Runner{
		feeds:         deps.Feeds,
		runs:          deps.Runs,
		relationships: deps.Relationships,
		fetcher:       deps.Fetcher,
		quarantiner:   deps.Quarantiner,
		writer:        deps.Writer,
		resolver:      deps.Resolver,
		publisher:     publisher,
		collectors:    deps.Collectors,
		tracker:       deps.Tracker,
		grace:         deps.Grace,
		log:           deps.Log,
		tracer:        otel.Tracer("pricefeed/ingest"),
	}
}

// Run executes one run of the feed. A returned error means the attempt is
// retryable; nil covers success, skips and the unchanged-payload fast
// path.
func (r *Runner) Run(ctx context.Context, feedID string, trigger domain.TriggerKind) error {
	ctx, span := r.tracer.Start(ctx, "ingest.run",
		trace.WithAttributes(
			attribute.String("feed.id", feedID),
			attribute.String("run.trigger", string(trigger)),
		))
	defer span.End()

	feed, err := r.feeds.GetByID(ctx, feedID)
	if err != nil {
		return fmt.Errorf("load feed: %w", err)
	}

	run := &domain.FeedRun{
		ID:        uuid.New().String(),
		FeedID:    feed.ID,
		Trigger:   trigger,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	span.SetAttributes(attribute.String("run.id", run.ID))

	skip, err := r.subscriptionGate(ctx, feed)
	if err != nil {
		if finishErr := r.finishFailed(ctx, feed, run, "SUBSCRIPTION_CHECK", err); finishErr != nil {
			return finishErr
		}
		return err
	}
	if skip {
		return r.finishSkipped(ctx, feed, run)
	}

	result, fetchErr := r.fetcher.Fetch(ctx, feed.ID, feed.Transport)
	if fetchErr != nil {
		return r.transportFailure(ctx, feed, run, fetchErr)
	}

	contentHash := identity.ContentHash(result.Data)
	if feed.LastContentHash != nil && *feed.LastContentHash == contentHash {
		// Payload unchanged since the previous run: nothing to write.
		return r.finishUnchanged(ctx, feed, run)
	}

	format := feed.Format
	if format == "" || format == domain.FormatAuto {
		format = result.Format
	}
	parsed, parseErr := parser.Parse(result.Data, format)
	if parseErr != nil {
		// A payload that fails to decode at all is usually not a feed:
		// a maintenance page or truncated download served with a 200.
		// Classified with the transport errors so the attempt retries.
		return r.transportFailure(ctx, feed, run, &fetcher.TransportError{
			Kind: fetcher.ErrKindContentType,
			Err:  parseErr,
		})
	}

	run.RowsRead = parsed.RowsRead
	run.RowsParsed = parsed.RowsParsed
	run.ErrorCount = len(parsed.RowErrors)

	accepted := make([]domain.SourceRecord, 0, len(parsed.Records))
	for i := range parsed.Records {
		rec := &parsed.Records[i]
		identity.Annotate(rec)

		if blocking := quarantine.Validate(rec); len(blocking) > 0 {
			if holdErr := r.quarantiner.Hold(ctx, feed.ID, run.ID, rec, blocking); holdErr != nil {
				if finishErr := r.finishFailed(ctx, feed, run, "QUARANTINE_WRITE", holdErr); finishErr != nil {
					return finishErr
				}
				return holdErr
			}
			run.Quarantined++
			continue
		}
		accepted = append(accepted, *rec)
	}

	stats, writeErr := r.writer.WriteAll(ctx, feed, run, accepted)
	if writeErr != nil {
		if finishErr := r.finishFailed(ctx, feed, run, "WRITE_ERROR", writeErr); finishErr != nil {
			return finishErr
		}
		return writeErr
	}
	run.RowsWritten = stats.PricesWritten

	if _, resolveErr := r.resolver.ResolveBatch(ctx, resolveBatchSize); resolveErr != nil {
		// Resolution is repaired by any later batch; the run's writes are
		// already durable.
		r.log.Warn("post-run resolution failed",
			logger.String("run_id", run.ID),
			logger.Error(resolveErr))
	}

	return r.finishSucceeded(ctx, feed, run, contentHash)
}

// subscriptionGate reports whether the run must be skipped because the
// owning merchant's subscription lapsed past grace.
func (r *Runner) subscriptionGate(ctx context.Context, feed *domain.Feed) (bool, error) {
	if feed.MerchantID == nil {
		return false, nil
	}
	sub, err := r.relationships.GetSubscription(ctx, *feed.MerchantID)
	if err != nil {
		return false, fmt.Errorf("load subscription: %w", err)
	}
	return r.grace.ShouldSkipRun(sub, time.Now().UTC()), nil
}

func (r *Runner) finishSkipped(ctx context.Context, feed *domain.Feed, run *domain.FeedRun) error {
	run.Status = domain.RunStatusSkipped
	if err := r.runs.Finish(ctx, run); err != nil && !errors.Is(err, domain.ErrRunNotTerminal) {
		return fmt.Errorf("finish skipped run: %w", err)
	}

	r.publish(ctx, &events.Event{
		EventType:  events.FeedSkippedSubscription,
		FeedID:     feed.ID,
		RetailerID: feed.RetailerID,
		MerchantID: derefString(feed.MerchantID),
		RunID:      run.ID,
		Message:    "subscription lapsed past grace period",
	})
	r.observeRun(run)

	r.log.Info("run skipped for lapsed subscription",
		logger.String("feed_id", feed.ID),
		logger.String("run_id", run.ID))
	return nil
}

func (r *Runner) finishUnchanged(ctx context.Context, feed *domain.Feed, run *domain.FeedRun) error {
	run.Status = domain.RunStatusSucceeded
	if err := r.runs.Finish(ctx, run); err != nil && !errors.Is(err, domain.ErrRunNotTerminal) {
		return fmt.Errorf("finish unchanged run: %w", err)
	}

	recovered := feed.RecordSuccess()
	if err := r.feeds.RecordRunOutcome(ctx, feed); err != nil {
		return fmt.Errorf("record run outcome: %w", err)
	}
	if recovered {
		r.publishRecovered(ctx, feed, run)
	}
	r.observeRun(run)

	r.log.Debug("payload unchanged, nothing to ingest",
		logger.String("feed_id", feed.ID),
		logger.String("run_id", run.ID))
	return nil
}

func (r *Runner) finishSucceeded(ctx context.Context, feed *domain.Feed, run *domain.FeedRun, contentHash string) error {
	run.Status = domain.RunStatusSucceeded
	if err := r.runs.Finish(ctx, run); err != nil && !errors.Is(err, domain.ErrRunNotTerminal) {
		return fmt.Errorf("finish run: %w", err)
	}

	recovered := feed.RecordSuccess()
	feed.LastContentHash = &contentHash
	if err := r.feeds.RecordRunOutcome(ctx, feed); err != nil {
		return fmt.Errorf("record run outcome: %w", err)
	}

	if recovered {
		r.publishRecovered(ctx, feed, run)
	}
	if run.Quarantined > 0 {
		r.publish(ctx, &events.Event{
			EventType:  events.FeedWarning,
			FeedID:     feed.ID,
			RetailerID: feed.RetailerID,
			MerchantID: derefString(feed.MerchantID),
			RunID:      run.ID,
			Message:    fmt.Sprintf("%d records quarantined", run.Quarantined),
		})
	}
	r.observeRun(run)
	r.trackSuccess(ctx, feed, run)

	r.log.Info("run succeeded",
		logger.String("feed_id", feed.ID),
		logger.String("run_id", run.ID),
		logger.Int("rows_read", run.RowsRead),
		logger.Int("rows_written", run.RowsWritten),
		logger.Int("quarantined", run.Quarantined),
		logger.Int("row_errors", run.ErrorCount))
	return nil
}

// trackSuccess records dashboard stats; failures here only warn.
func (r *Runner) trackSuccess(ctx context.Context, feed *domain.Feed, run *domain.FeedRun) {
	if r.tracker == nil {
		return
	}
	if err := r.tracker.IncrementWritten(ctx, feed.ID, int64(run.RowsWritten)); err != nil {
		r.log.Warn("written counter update failed", logger.Error(err))
	}
	if err := r.tracker.IncrementQuarantined(ctx, feed.ID, int64(run.Quarantined)); err != nil {
		r.log.Warn("quarantined counter update failed", logger.Error(err))
	}
	if err := r.tracker.AddRecentRun(ctx, metrics.RecentRun{
		RunID:       run.ID,
		FeedID:      feed.ID,
		FeedName:    feed.Name,
		Status:      string(run.Status),
		RowsWritten: run.RowsWritten,
		Quarantined: run.Quarantined,
		FinishedAt:  time.Now().UTC(),
	}); err != nil {
		r.log.Warn("recent run update failed", logger.Error(err))
	}
	if err := r.tracker.UpdateLastIngest(ctx); err != nil {
		r.log.Warn("last ingest update failed", logger.Error(err))
	}
}

// transportFailure finishes the run as failed, advances the feed's
// consecutive-failure state and reports the attempt as retryable.
func (r *Runner) transportFailure(ctx context.Context, feed *domain.Feed, run *domain.FeedRun, cause error) error {
	code := string(fetcher.KindOf(cause))
	if r.collectors != nil {
		r.collectors.FetchErrors.WithLabelValues(code).Inc()
	}
	if finishErr := r.finishFailed(ctx, feed, run, code, cause); finishErr != nil {
		return finishErr
	}

	crossed := feed.RecordFailure()
	if err := r.feeds.RecordRunOutcome(ctx, feed); err != nil {
		return fmt.Errorf("record run outcome: %w", err)
	}
	if crossed {
		r.publish(ctx, &events.Event{
			EventType:  events.FeedFailed,
			FeedID:     feed.ID,
			RetailerID: feed.RetailerID,
			MerchantID: derefString(feed.MerchantID),
			RunID:      run.ID,
			ErrorCode:  code,
			Message:    cause.Error(),
		})
	}

	return fmt.Errorf("fetch feed %s: %w", feed.ID, cause)
}

// finishFailed marks the run failed with its diagnosis. The return covers
// only the bookkeeping itself; whether the attempt retries is the caller's
// decision.
func (r *Runner) finishFailed(ctx context.Context, feed *domain.Feed, run *domain.FeedRun, code string, cause error) error {
	run.Status = domain.RunStatusFailed
	run.ErrorCode = &code
	detail := cause.Error()
	run.ErrorDetail = &detail

	if err := r.runs.Finish(ctx, run); err != nil && !errors.Is(err, domain.ErrRunNotTerminal) {
		return fmt.Errorf("finish failed run: %w", err)
	}
	r.observeRun(run)
	if r.tracker != nil {
		if err := r.tracker.IncrementErrors(ctx, feed.ID); err != nil {
			r.log.Warn("error counter update failed", logger.Error(err))
		}
	}

	r.log.Error("run failed",
		logger.String("feed_id", feed.ID),
		logger.String("run_id", run.ID),
		logger.String("error_code", code),
		logger.Error(cause))
	return nil
}

func (r *Runner) publishRecovered(ctx context.Context, feed *domain.Feed, run *domain.FeedRun) {
	r.publish(ctx, &events.Event{
		EventType:  events.FeedRecovered,
		FeedID:     feed.ID,
		RetailerID: feed.RetailerID,
		MerchantID: derefString(feed.MerchantID),
		RunID:      run.ID,
		Message:    "feed recovered after consecutive failures",
	})
}

// publish emits best-effort; a dropped event never fails a run.
func (r *Runner) publish(ctx context.Context, event *events.Event) {
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.log.Warn("event publish failed",
			logger.String("event_type", string(event.EventType)),
			logger.Error(err))
	}
}

func (r *Runner) observeRun(run *domain.FeedRun) {
	if r.collectors == nil {
		return
	}
	r.collectors.ObserveRun(string(run.Trigger), string(run.Status), time.Since(run.StartedAt))
	r.collectors.RowsRead.WithLabelValues(run.FeedID).Add(float64(run.RowsRead))
	r.collectors.RowsWritten.WithLabelValues(run.FeedID).Add(float64(run.RowsWritten))
	r.collectors.RowsQuarantined.WithLabelValues(run.FeedID).Add(float64(run.Quarantined))
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
