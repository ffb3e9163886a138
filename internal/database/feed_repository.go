package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/pricefeed/internal/domain"
)

// feedSelectList is the column list for SELECT/RETURNING on feeds (single
// source for schema changes).
const feedSelectList = `id, retailer_id, merchant_id, name, transport, format,
			schedule_frequency_hours, next_run_at, manual_run_pending, status,
			consecutive_failures, last_content_hash, created_at, updated_at`

// FeedRepository manages configured feeds in PostgreSQL.
type FeedRepository struct {
	db *sql.DB
}

// NewFeedRepository creates a new repository.
func NewFeedRepository(db *sql.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// ClaimDue claims up to limit enabled feeds whose next_run_at has passed.
// The claim and the next_run_at advance happen in one atomic statement
// with FOR UPDATE SKIP LOCKED, so concurrent scheduler instances never
// double-claim a feed; a crash after this statement commits loses at most
// one cycle for feeds whose enqueue never happened.
func (r *FeedRepository) ClaimDue(ctx context.Context, limit int) ([]domain.Feed, error) {
	query := `
		UPDATE feeds
		SET next_run_at = NOW() + (schedule_frequency_hours * INTERVAL '1 hour'),
		    updated_at = NOW()
		WHERE id IN (
			SELECT id FROM feeds
			WHERE status = 'enabled'
			  AND next_run_at <= NOW()
			ORDER BY next_run_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + feedSelectList

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due feeds: %w", err)
	}
	defer rows.Close()

	return scanFeeds(rows)
}

// ListManualPending returns feeds flagged for a manual run.
func (r *FeedRepository) ListManualPending(ctx context.Context, limit int) ([]domain.Feed, error) {
	query := `SELECT ` + feedSelectList + `
		FROM feeds
		WHERE manual_run_pending = TRUE
		  AND status IN ('enabled', 'failed')
		ORDER BY updated_at ASC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list manual pending: %w", err)
	}
	defer rows.Close()

	return scanFeeds(rows)
}

// SetManualPending flags or clears a feed's manual-run request.
func (r *FeedRepository) SetManualPending(ctx context.Context, id string, pending bool) error {
	query := `UPDATE feeds SET manual_run_pending = $2, updated_at = NOW() WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id, pending); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("set manual pending: %w", err)
	}
	return nil
}

// GetByID retrieves a single feed.
func (r *FeedRepository) GetByID(ctx context.Context, id string) (*domain.Feed, error) {
	query := `SELECT ` + feedSelectList + ` FROM feeds WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)
	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	return feed, nil
}

// UpdateStatus sets the feed status.
func (r *FeedRepository) UpdateStatus(ctx context.Context, id string, status domain.FeedStatus) error {
	query := `UPDATE feeds SET status = $2, updated_at = NOW() WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id, string(status)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("update feed status: %w", err)
	}
	return nil
}

// RecordRunOutcome persists the feed's post-run state: status transitions
// from the consecutive-failure rule, the failure counter, and the content
// hash of the last successfully fetched payload.
func (r *FeedRepository) RecordRunOutcome(ctx context.Context, feed *domain.Feed) error {
	query := `
		UPDATE feeds
		SET status = $2,
		    consecutive_failures = $3,
		    last_content_hash = $4,
		    updated_at = NOW()
		WHERE id = $1`

	if err := r.execExpectOneRow(ctx, query,
		feed.ID, string(feed.Status), feed.ConsecutiveFailures, feed.LastContentHash); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("record run outcome: %w", err)
	}
	return nil
}

// Create inserts a new feed.
func (r *FeedRepository) Create(ctx context.Context, feed *domain.Feed) error {
	transportJSON, err := json.Marshal(feed.Transport)
	if err != nil {
		return fmt.Errorf("marshal transport: %w", err)
	}

	query := `
		INSERT INTO feeds (
			id, retailer_id, merchant_id, name, transport, format,
			schedule_frequency_hours, next_run_at, manual_run_pending, status,
			consecutive_failures, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.ExecContext(ctx, query,
		feed.ID, feed.RetailerID, feed.MerchantID, feed.Name, transportJSON,
		string(feed.Format), int(feed.ScheduleFrequency.Hours()), feed.NextRunAt,
		feed.ManualRunPending, string(feed.Status), feed.ConsecutiveFailures,
		feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feed: %w", err)
	}
	return nil
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row
// was affected.
func (r *FeedRepository) execExpectOneRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// rowScanner lets scanFeed work on both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*domain.Feed, error) {
	var (
		f             domain.Feed
		transportJSON []byte
		format        string
		status        string
		freqHours     int
	)

	err := row.Scan(
		&f.ID, &f.RetailerID, &f.MerchantID, &f.Name, &transportJSON, &format,
		&freqHours, &f.NextRunAt, &f.ManualRunPending, &status,
		&f.ConsecutiveFailures, &f.LastContentHash, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if unmarshalErr := json.Unmarshal(transportJSON, &f.Transport); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal transport: %w", unmarshalErr)
	}
	f.Format = domain.FeedFormat(format)
	f.Status = domain.FeedStatus(status)
	f.ScheduleFrequency = time.Duration(freqHours) * time.Hour
	return &f, nil
}

const initialFeedCapacity = 50

func scanFeeds(rows *sql.Rows) ([]domain.Feed, error) {
	feeds := make([]domain.Feed, 0, initialFeedCapacity)
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, *feed)
	}
	return feeds, rows.Err()
}
