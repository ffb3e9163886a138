package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonesrussell/pricefeed/internal/domain"
)

const quarantineSelectList = `id, feed_id, run_id, row_number, fields, errors,
			status, dismiss_note, created_at, updated_at`

// QuarantineFilter narrows bulk operations and listings.
type QuarantineFilter struct {
	FeedID string
	Code   domain.ErrorCode
	Limit  int
}

// QuarantineRepository manages quarantined records and their corrections.
type QuarantineRepository struct {
	db *sql.DB
}

// NewQuarantineRepository creates a new repository.
func NewQuarantineRepository(db *sql.DB) *QuarantineRepository {
	return &QuarantineRepository{db: db}
}

// Insert persists a record that failed validation.
func (r *QuarantineRepository) Insert(ctx context.Context, rec *domain.QuarantinedRecord) error {
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	errorsJSON, err := json.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	query := `
		INSERT INTO quarantined_records (
			id, feed_id, run_id, row_number, fields, errors, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.FeedID, rec.RunID, rec.RowNumber, fieldsJSON, errorsJSON,
		string(rec.Status), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert quarantined record: %w", err)
	}
	return nil
}

// GetByID retrieves one quarantined record.
func (r *QuarantineRepository) GetByID(ctx context.Context, id string) (*domain.QuarantinedRecord, error) {
	query := `SELECT ` + quarantineSelectList + ` FROM quarantined_records WHERE id = $1`

	rec, err := scanQuarantined(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quarantined record: %w", err)
	}
	return rec, nil
}

// List returns quarantined (non-terminal) records matching the filter,
// oldest first so bulk operations drain in arrival order.
func (r *QuarantineRepository) List(ctx context.Context, filter QuarantineFilter) ([]domain.QuarantinedRecord, error) {
	query := `SELECT ` + quarantineSelectList + `
		FROM quarantined_records
		WHERE status = 'quarantined'
		  AND ($1 = '' OR feed_id = $1)
		  AND ($2 = '' OR errors @> $3::jsonb)
		ORDER BY created_at ASC
		LIMIT $4`

	codeMatch := "[]"
	if filter.Code != "" {
		match, err := json.Marshal([]map[string]string{{"code": string(filter.Code)}})
		if err != nil {
			return nil, fmt.Errorf("marshal code filter: %w", err)
		}
		codeMatch = string(match)
	}

	rows, err := r.db.QueryContext(ctx, query,
		filter.FeedID, string(filter.Code), codeMatch, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("list quarantined records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.QuarantinedRecord, 0, filter.Limit)
	for rows.Next() {
		rec, scanErr := scanQuarantined(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan quarantined record: %w", scanErr)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// AppendCorrection records a field-level fix. Corrections are append-only.
func (r *QuarantineRepository) AppendCorrection(ctx context.Context, c *domain.FeedCorrection) error {
	query := `
		INSERT INTO feed_corrections (
			id, quarantine_id, field, old_value, new_value, author, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.QuarantineID, c.Field, c.OldValue, c.NewValue, c.Author, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert correction: %w", err)
	}
	return nil
}

// ListCorrections returns all corrections for a record, oldest first, so
// the latest value per field wins when overlaid in order.
func (r *QuarantineRepository) ListCorrections(ctx context.Context, quarantineID string) ([]domain.FeedCorrection, error) {
	query := `
		SELECT id, quarantine_id, field, old_value, new_value, author, created_at
		FROM feed_corrections
		WHERE quarantine_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, quarantineID)
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}
	defer rows.Close()

	var corrections []domain.FeedCorrection
	for rows.Next() {
		var c domain.FeedCorrection
		if scanErr := rows.Scan(&c.ID, &c.QuarantineID, &c.Field, &c.OldValue,
			&c.NewValue, &c.Author, &c.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan correction: %w", scanErr)
		}
		corrections = append(corrections, c)
	}
	return corrections, rows.Err()
}

// MarkResolved transitions a quarantined record to resolved. Only
// non-terminal records transition; resolving an already-terminal record
// reports domain.ErrQuarantineTerminal so bulk reprocess stays idempotent.
func (r *QuarantineRepository) MarkResolved(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.QuarantineStatusResolved, nil)
}

// MarkDismissed transitions a quarantined record to dismissed with the
// operator's note.
func (r *QuarantineRepository) MarkDismissed(ctx context.Context, id, note string) error {
	return r.transition(ctx, id, domain.QuarantineStatusDismissed, &note)
}

func (r *QuarantineRepository) transition(ctx context.Context, id string, status domain.QuarantineStatus, note *string) error {
	query := `
		UPDATE quarantined_records
		SET status = $2,
		    dismiss_note = COALESCE($3, dismiss_note),
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'quarantined'`

	result, err := r.db.ExecContext(ctx, query, id, string(status), note)
	if err != nil {
		return fmt.Errorf("transition quarantined record: %w", err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrQuarantineTerminal
	}
	return nil
}

// CountByStatus returns quarantine counts for monitoring.
func (r *QuarantineRepository) CountByStatus(ctx context.Context) (map[domain.QuarantineStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM quarantined_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.QuarantineStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, fmt.Errorf("scan count: %w", scanErr)
		}
		counts[domain.QuarantineStatus(status)] = count
	}
	return counts, rows.Err()
}

func scanQuarantined(row rowScanner) (*domain.QuarantinedRecord, error) {
	var (
		rec        domain.QuarantinedRecord
		fieldsJSON []byte
		errorsJSON []byte
		status     string
	)

	err := row.Scan(
		&rec.ID, &rec.FeedID, &rec.RunID, &rec.RowNumber, &fieldsJSON,
		&errorsJSON, &status, &rec.DismissNote, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if unmarshalErr := json.Unmarshal(fieldsJSON, &rec.Fields); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", unmarshalErr)
	}
	if unmarshalErr := json.Unmarshal(errorsJSON, &rec.Errors); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", unmarshalErr)
	}
	rec.Status = domain.QuarantineStatus(status)
	return &rec, nil
}
