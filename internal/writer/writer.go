// Package writer persists validated records: source products, price
// observations, presence and per-run seen facts.
package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/identity"
	"github.com/jonesrussell/pricefeed/internal/logger"
)

// ProductStore is the source-product persistence the writer depends on.
type ProductStore interface {
	UpsertSourceProduct(ctx context.Context, sp *domain.SourceProduct) (*domain.SourceProduct, error)
}

// PriceStore is the price/presence/seen persistence the writer depends on.
type PriceStore interface {
	InsertObservation(ctx context.Context, obs *domain.PriceObservation) (bool, error)
	UpsertPresence(ctx context.Context, sourceProductID string) error
	InsertSeen(ctx context.Context, runID, sourceProductID string) error
	LatestSignature(ctx context.Context, sourceProductID string) (string, error)
}

// Stats summarizes one write pass.
type Stats struct {
	ProductsUpserted int
	PricesWritten    int
	PricesSkipped    int
}

// Writer turns annotated records into durable rows. Every write path is
// idempotent, so a retried run cannot duplicate history.
type Writer struct {
	products ProductStore
	prices   PriceStore
	log      logger.Logger
}

// New creates a writer.
func New(products ProductStore, prices PriceStore, log logger.Logger) *Writer {
	return &Writer{products: products, prices: prices, log: log}
}

// WriteRecord persists one validated record for a run. The price
// observation is skipped (not failed) when its signature matches the
// product's latest stored observation; presence and seen facts are
// recorded either way.
func (w *Writer) WriteRecord(ctx context.Context, feed *domain.Feed, run *domain.FeedRun, rec *domain.SourceRecord, stats *Stats) error {
	sp := &domain.SourceProduct{
		ID:           uuid.New().String(),
		RetailerID:   feed.RetailerID,
		IdentityKey:  rec.IdentityKey,
		IdentityFrom: rec.IdentityFrom,
		Title:        rec.Name,
		URL:          rec.URL,
		UPC:          optional(rec.UPC),
		SKU:          optional(rec.SKU),
		Brand:        optional(rec.Brand),
		Caliber:      optional(rec.Caliber),
		PackSize:     optional(rec.PackSize),
	}

	stored, err := w.products.UpsertSourceProduct(ctx, sp)
	if err != nil {
		return fmt.Errorf("upsert source product: %w", err)
	}
	stats.ProductsUpserted++

	signature := identity.PriceSignature(rec.Price, rec.Currency, rec.OriginalPrice)

	latest, err := w.prices.LatestSignature(ctx, stored.ID)
	if err != nil {
		return fmt.Errorf("latest signature: %w", err)
	}

	if latest == signature {
		stats.PricesSkipped++
	} else {
		obs := &domain.PriceObservation{
			ID:              uuid.New().String(),
			SourceProductID: stored.ID,
			Price:           rec.Price,
			Currency:        rec.Currency,
			OriginalPrice:   rec.OriginalPrice,
			InStock:         rec.InStock,
			Signature:       signature,
			RunID:           run.ID,
			Trigger:         run.Trigger,
			ObservedAt:      time.Now().UTC(),
		}
		written, insertErr := w.prices.InsertObservation(ctx, obs)
		if insertErr != nil {
			return fmt.Errorf("insert observation: %w", insertErr)
		}
		if written {
			stats.PricesWritten++
		} else {
			stats.PricesSkipped++
		}
	}

	if presErr := w.prices.UpsertPresence(ctx, stored.ID); presErr != nil {
		return fmt.Errorf("upsert presence: %w", presErr)
	}
	if seenErr := w.prices.InsertSeen(ctx, run.ID, stored.ID); seenErr != nil {
		return fmt.Errorf("insert seen: %w", seenErr)
	}
	return nil
}

// WriteAll persists a batch of validated records and returns write stats.
// A failing record aborts the pass; the caller may retry the whole run
// safely because every underlying write is conflict-safe.
func (w *Writer) WriteAll(ctx context.Context, feed *domain.Feed, run *domain.FeedRun, records []domain.SourceRecord) (*Stats, error) {
	stats := &Stats{}
	for i := range records {
		if err := w.WriteRecord(ctx, feed, run, &records[i], stats); err != nil {
			return stats, fmt.Errorf("write record row %d: %w", records[i].RowNumber, err)
		}
	}

	w.log.Debug("write pass complete",
		logger.String("feed_id", feed.ID),
		logger.String("run_id", run.ID),
		logger.Int("products", stats.ProductsUpserted),
		logger.Int("prices_written", stats.PricesWritten),
		logger.Int("prices_skipped", stats.PricesSkipped))
	return stats, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
