package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonesrussell/pricefeed/internal/domain"
)

// PriceRepository manages price history, presence and seen facts.
//
// All writes here are idempotent by contract: the observation insert is
// conflict-safe on (source_product_id, signature, run_id), the presence
// upsert keeps one row per source product, and the seen insert ignores
// duplicates per (run_id, source_product_id). Callers may retry a failed
// or partially-completed run's write step without creating duplicates.
type PriceRepository struct {
	db *sql.DB
}

// NewPriceRepository creates a new repository.
func NewPriceRepository(db *sql.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// InsertObservation appends one price observation. A conflict on
// (source_product_id, signature, run_id) is a no-op reported as
// written=false, never an error.
func (r *PriceRepository) InsertObservation(ctx context.Context, obs *domain.PriceObservation) (bool, error) {
	query := `
		INSERT INTO price_observations (
			id, source_product_id, price, currency, original_price, in_stock,
			signature, run_id, trigger_kind, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source_product_id, signature, run_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		obs.ID, obs.SourceProductID, obs.Price, obs.Currency, obs.OriginalPrice,
		obs.InStock, obs.Signature, obs.RunID, string(obs.Trigger), obs.ObservedAt)
	if err != nil {
		return false, fmt.Errorf("insert observation: %w", err)
	}

	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return false, fmt.Errorf("get affected rows: %w", rowsErr)
	}
	return rows > 0, nil
}

// UpsertPresence records last-seen-at per source product: one row per
// product, overwritten on every sighting. Drives staleness reporting
// independent of price history.
func (r *PriceRepository) UpsertPresence(ctx context.Context, sourceProductID string) error {
	query := `
		INSERT INTO product_presence (source_product_id, last_seen_at)
		VALUES ($1, NOW())
		ON CONFLICT (source_product_id)
		DO UPDATE SET last_seen_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, sourceProductID); err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

// InsertSeen records that a run saw a source product, insert-or-ignore per
// (run, product). Drives freshness reporting.
func (r *PriceRepository) InsertSeen(ctx context.Context, runID, sourceProductID string) error {
	query := `
		INSERT INTO run_seen_products (run_id, source_product_id, seen_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (run_id, source_product_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, runID, sourceProductID); err != nil {
		return fmt.Errorf("insert seen: %w", err)
	}
	return nil
}

// LatestSignature returns the most recent observation signature for a
// source product, or "" when it has none. Used to skip unchanged prices.
func (r *PriceRepository) LatestSignature(ctx context.Context, sourceProductID string) (string, error) {
	var signature string
	err := r.db.QueryRowContext(ctx, `
		SELECT signature FROM price_observations
		WHERE source_product_id = $1
		ORDER BY observed_at DESC
		LIMIT 1`, sourceProductID).Scan(&signature)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest signature: %w", err)
	}
	return signature, nil
}
