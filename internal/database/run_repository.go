package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/pricefeed/internal/domain"
)

const runSelectList = `id, feed_id, trigger_kind, status, started_at, finished_at,
			rows_read, rows_parsed, rows_written, quarantined, error_count,
			error_code, error_detail`

// pruneBatchSize bounds each delete so pruning never holds long locks on
// a large runs table.
const pruneBatchSize = 1000

// RunRepository manages feed run history in PostgreSQL.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new running run row.
func (r *RunRepository) Create(ctx context.Context, run *domain.FeedRun) error {
	query := `
		INSERT INTO feed_runs (
			id, feed_id, trigger_kind, status, started_at
		) VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.FeedID, string(run.Trigger), string(run.Status), run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Finish marks a run terminal with its counters. Only running runs can be
// finished; finishing an already-terminal run returns ErrRunNotTerminal.
func (r *RunRepository) Finish(ctx context.Context, run *domain.FeedRun) error {
	query := `
		UPDATE feed_runs
		SET status = $2,
		    finished_at = NOW(),
		    rows_read = $3,
		    rows_parsed = $4,
		    rows_written = $5,
		    quarantined = $6,
		    error_count = $7,
		    error_code = $8,
		    error_detail = $9
		WHERE id = $1
		  AND status = 'running'`

	result, err := r.db.ExecContext(ctx, query,
		run.ID, string(run.Status), run.RowsRead, run.RowsParsed,
		run.RowsWritten, run.Quarantined, run.ErrorCount,
		run.ErrorCode, run.ErrorDetail)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrRunNotTerminal
	}
	return nil
}

// GetByID retrieves a single run.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.FeedRun, error) {
	query := `SELECT ` + runSelectList + ` FROM feed_runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListByFeed returns recent runs for a feed, newest first.
func (r *RunRepository) ListByFeed(ctx context.Context, feedID string, limit int) ([]domain.FeedRun, error) {
	query := `SELECT ` + runSelectList + `
		FROM feed_runs
		WHERE feed_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.FeedRun, 0, limit)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan run: %w", scanErr)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// HasPendingForFeed reports whether a run is currently in flight for the
// feed, used to de-duplicate manual triggers.
func (r *RunRepository) HasPendingForFeed(ctx context.Context, feedID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feed_runs WHERE feed_id = $1 AND status = 'running'`,
		feedID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count running: %w", err)
	}
	return count > 0, nil
}

// PruneTerminal deletes terminal runs older than the retention window in
// bounded batches. Running runs are never eligible. Returns total deleted.
func (r *RunRepository) PruneTerminal(ctx context.Context, retention time.Duration) (int64, error) {
	query := `
		DELETE FROM feed_runs
		WHERE id IN (
			SELECT id FROM feed_runs
			WHERE status IN ('succeeded', 'failed', 'skipped')
			  AND finished_at < NOW() - $1::interval
			LIMIT $2
		)`

	var total int64
	for {
		result, err := r.db.ExecContext(ctx, query, retention.String(), pruneBatchSize)
		if err != nil {
			return total, fmt.Errorf("prune runs: %w", err)
		}
		deleted, rowsErr := result.RowsAffected()
		if rowsErr != nil {
			return total, fmt.Errorf("get affected rows: %w", rowsErr)
		}
		total += deleted
		if deleted < pruneBatchSize {
			return total, nil
		}
	}
}

func scanRun(row rowScanner) (*domain.FeedRun, error) {
	var (
		run     domain.FeedRun
		trigger string
		status  string
	)

	err := row.Scan(
		&run.ID, &run.FeedID, &trigger, &status, &run.StartedAt, &run.FinishedAt,
		&run.RowsRead, &run.RowsParsed, &run.RowsWritten, &run.Quarantined,
		&run.ErrorCount, &run.ErrorCode, &run.ErrorDetail,
	)
	if err != nil {
		return nil, err
	}
	run.Trigger = domain.TriggerKind(trigger)
	run.Status = domain.RunStatus(status)
	return &run, nil
}
