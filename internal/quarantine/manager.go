// Package quarantine validates parsed records and manages the holding pen
// for records that fail, including operator corrections and reprocessing.
package quarantine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/pricefeed/internal/database"
	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/identity"
	"github.com/jonesrussell/pricefeed/internal/logger"
	"github.com/jonesrussell/pricefeed/internal/parser"
)

const (
	// ReprocessAllLimit caps one bulk reprocess pass.
	ReprocessAllLimit = 1000
	// DismissAllLimit caps one bulk dismiss pass.
	DismissAllLimit = 500
	// minDismissNoteLen is the shortest acceptable bulk-dismiss note.
	minDismissNoteLen = 10
)

// Store is the persistence surface the manager depends on.
type Store interface {
	Insert(ctx context.Context, rec *domain.QuarantinedRecord) error
	GetByID(ctx context.Context, id string) (*domain.QuarantinedRecord, error)
	List(ctx context.Context, filter database.QuarantineFilter) ([]domain.QuarantinedRecord, error)
	AppendCorrection(ctx context.Context, c *domain.FeedCorrection) error
	ListCorrections(ctx context.Context, quarantineID string) ([]domain.FeedCorrection, error)
	MarkResolved(ctx context.Context, id string) error
	MarkDismissed(ctx context.Context, id, note string) error
}

// ProductStore promotes corrected records into source products.
type ProductStore interface {
	UpsertSourceProduct(ctx context.Context, sp *domain.SourceProduct) (*domain.SourceProduct, error)
}

// FeedStore resolves the owning feed of a quarantined record, needed for
// the retailer attribution at promotion time.
type FeedStore interface {
	GetByID(ctx context.Context, id string) (*domain.Feed, error)
}

// BulkResult reports one bulk operation: how many records changed state
// and whether the filter matched more than the pass limit.
type BulkResult struct {
	Affected  int  `json:"affected"`
	Truncated bool `json:"truncated"`
}

// Manager is the quarantine and correction service.
type Manager struct {
	store    Store
	products ProductStore
	feeds    FeedStore
	log      logger.Logger
}

// NewManager creates a manager.
func NewManager(store Store, products ProductStore, feeds FeedStore, log logger.Logger) *Manager {
	return &Manager{store: store, products: products, feeds: feeds, log: log}
}

// Validate checks a record against the blocking rules and returns every
// violation, not just the first. An empty slice means the record is
// accepted.
func Validate(rec *domain.SourceRecord) []domain.BlockingError {
	var blocking []domain.BlockingError

	if strings.TrimSpace(rec.Name) == "" {
		blocking = append(blocking, domain.BlockingError{
			Code:    domain.CodeMissingTitle,
			Message: "record has no title",
		})
	}

	if strings.TrimSpace(rec.ItemID) == "" &&
		strings.TrimSpace(rec.SKU) == "" &&
		strings.TrimSpace(rec.UPC) == "" {
		blocking = append(blocking, domain.BlockingError{
			Code:    domain.CodeMissingIdentifier,
			Message: "record has no item id, sku or upc",
		})
	}

	if upc := strings.TrimSpace(rec.UPC); upc != "" {
		digits := digitsOnly(upc)
		if len(digits) < 8 || len(digits) > 14 {
			blocking = append(blocking, domain.BlockingError{
				Code:    domain.CodeInvalidUPC,
				Message: fmt.Sprintf("upc %q has %d digits, want 8-14", upc, len(digits)),
			})
		}
	}

	if strings.TrimSpace(rec.RawPrice) == "" {
		blocking = append(blocking, domain.BlockingError{
			Code:    domain.CodeMissingPrice,
			Message: "record has no price",
		})
	} else if rec.Price <= 0 {
		blocking = append(blocking, domain.BlockingError{
			Code:    domain.CodeInvalidPrice,
			Message: fmt.Sprintf("price %.2f is not positive", rec.Price),
		})
	}

	return blocking
}

// Hold persists a failed record into quarantine for the run.
func (m *Manager) Hold(ctx context.Context, feedID, runID string, rec *domain.SourceRecord, blocking []domain.BlockingError) error {
	now := time.Now().UTC()
	qr := &domain.QuarantinedRecord{
		ID:        uuid.New().String(),
		FeedID:    feedID,
		RunID:     runID,
		RowNumber: rec.RowNumber,
		Fields:    rec.Fields,
		Errors:    blocking,
		Status:    domain.QuarantineStatusQuarantined,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Insert(ctx, qr); err != nil {
		return fmt.Errorf("hold record: %w", err)
	}
	return nil
}

// ApplyCorrection appends a field-level fix to a quarantined record. The
// record itself is untouched; corrections only take effect at reprocess
// time, latest value per field winning.
func (m *Manager) ApplyCorrection(ctx context.Context, id, field, newValue, author string) (*domain.FeedCorrection, error) {
	rec, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, domain.ErrQuarantineTerminal
	}

	c := &domain.FeedCorrection{
		ID:           uuid.New().String(),
		QuarantineID: id,
		Field:        field,
		OldValue:     rec.Fields[field],
		NewValue:     newValue,
		Author:       author,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.store.AppendCorrection(ctx, c); err != nil {
		return nil, err
	}

	m.log.Info("correction applied",
		logger.String("quarantine_id", id),
		logger.String("field", field),
		logger.String("author", author))
	return c, nil
}

// Reprocess overlays the record's corrections, re-validates and, on
// success, promotes it to a source product and marks it resolved. On
// failure the record stays quarantined and the still-blocking errors are
// returned alongside a nil error.
func (m *Manager) Reprocess(ctx context.Context, id string) ([]domain.BlockingError, error) {
	qr, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if qr.Status.Terminal() {
		return nil, domain.ErrQuarantineTerminal
	}

	corrections, err := m.store.ListCorrections(ctx, id)
	if err != nil {
		return nil, err
	}

	rec := parser.ResolveFields(qr.RowNumber, qr.EffectiveFields(corrections))
	if blocking := Validate(rec); len(blocking) > 0 {
		return blocking, nil
	}

	if err := m.promote(ctx, qr, rec); err != nil {
		return nil, err
	}
	if err := m.store.MarkResolved(ctx, id); err != nil {
		return nil, err
	}

	m.log.Info("quarantined record promoted",
		logger.String("quarantine_id", id),
		logger.String("feed_id", qr.FeedID))
	return nil, nil
}

// ReprocessAll reprocesses every non-terminal record matching the filter,
// up to the pass limit. Records that stay blocked or went terminal under a
// concurrent operator are skipped, not errors.
func (m *Manager) ReprocessAll(ctx context.Context, filter database.QuarantineFilter) (*BulkResult, error) {
	filter.Limit = ReprocessAllLimit + 1
	records, err := m.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{Truncated: len(records) > ReprocessAllLimit}
	if result.Truncated {
		records = records[:ReprocessAllLimit]
	}

	for i := range records {
		blocking, reprocessErr := m.Reprocess(ctx, records[i].ID)
		if errors.Is(reprocessErr, domain.ErrQuarantineTerminal) {
			continue
		}
		if reprocessErr != nil {
			return result, fmt.Errorf("reprocess %s: %w", records[i].ID, reprocessErr)
		}
		if len(blocking) == 0 {
			result.Affected++
		}
	}
	return result, nil
}

// DismissAll dismisses every non-terminal record matching the filter, up
// to the pass limit. The note is mandatory and recorded on each record.
func (m *Manager) DismissAll(ctx context.Context, filter database.QuarantineFilter, note string) (*BulkResult, error) {
	if len(strings.TrimSpace(note)) < minDismissNoteLen {
		return nil, domain.ErrDismissNoteTooShort
	}

	filter.Limit = DismissAllLimit + 1
	records, err := m.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{Truncated: len(records) > DismissAllLimit}
	if result.Truncated {
		records = records[:DismissAllLimit]
	}

	for i := range records {
		dismissErr := m.store.MarkDismissed(ctx, records[i].ID, note)
		if errors.Is(dismissErr, domain.ErrQuarantineTerminal) {
			continue
		}
		if dismissErr != nil {
			return result, fmt.Errorf("dismiss %s: %w", records[i].ID, dismissErr)
		}
		result.Affected++
	}
	return result, nil
}

// promote upserts the corrected record as a source product. The upsert key
// covers title, identifier, sku and price so repeated promotion of the
// same corrected content lands on one product.
func (m *Manager) promote(ctx context.Context, qr *domain.QuarantinedRecord, rec *domain.SourceRecord) error {
	feed, err := m.feeds.GetByID(ctx, qr.FeedID)
	if err != nil {
		return fmt.Errorf("load owning feed: %w", err)
	}

	identity.Annotate(rec)

	sp := &domain.SourceProduct{
		ID:           uuid.New().String(),
		RetailerID:   feed.RetailerID,
		IdentityKey:  identity.UpsertKey(rec.Name, rec.ItemID, rec.SKU, rec.Price),
		IdentityFrom: rec.IdentityFrom,
		Title:        rec.Name,
		URL:          rec.URL,
		UPC:          optional(rec.UPC),
		SKU:          optional(rec.SKU),
		Brand:        optional(rec.Brand),
		Caliber:      optional(rec.Caliber),
		PackSize:     optional(rec.PackSize),
	}

	if _, upsertErr := m.products.UpsertSourceProduct(ctx, sp); upsertErr != nil {
		return fmt.Errorf("promote record: %w", upsertErr)
	}
	return nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
