package writer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/identity"
	"github.com/jonesrussell/pricefeed/internal/logger"
	"github.com/jonesrussell/pricefeed/internal/writer"
)

type fakeProductStore struct {
	upserts []domain.SourceProduct
	err     error
}

func (f *fakeProductStore) UpsertSourceProduct(_ context.Context, sp *domain.SourceProduct) (*domain.SourceProduct, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.upserts = append(f.upserts, *sp)
	stored := *sp
	// Simulate the conflict path returning the existing row id.
	stored.ID = "sp-" + sp.IdentityKey
	return &stored, nil
}

type fakePriceStore struct {
	latest       map[string]string
	observations []domain.PriceObservation
	presence     []string
	seen         []string
	insertDup    bool
}

func (f *fakePriceStore) InsertObservation(_ context.Context, obs *domain.PriceObservation) (bool, error) {
	if f.insertDup {
		return false, nil
	}
	f.observations = append(f.observations, *obs)
	return true, nil
}

func (f *fakePriceStore) UpsertPresence(_ context.Context, sourceProductID string) error {
	f.presence = append(f.presence, sourceProductID)
	return nil
}

func (f *fakePriceStore) InsertSeen(_ context.Context, runID, sourceProductID string) error {
	f.seen = append(f.seen, runID+"/"+sourceProductID)
	return nil
}

func (f *fakePriceStore) LatestSignature(_ context.Context, sourceProductID string) (string, error) {
	return f.latest[sourceProductID], nil
}

func testFeed() *domain.Feed {
	return &domain.Feed{ID: "feed-1", RetailerID: "r-1"}
}

func testRun() *domain.FeedRun {
	return &domain.FeedRun{ID: "run-1", FeedID: "feed-1", Trigger: domain.TriggerScheduled}
}

func record(key string, price float64) domain.SourceRecord {
	return domain.SourceRecord{
		RowNumber:   2,
		Name:        "Widget",
		URL:         "https://shop.test/w",
		Price:       price,
		Currency:    "USD",
		InStock:     true,
		IdentityKey: key,
		IdentityFrom: domain.IdentitySKU,
	}
}

func TestWriteAllWritesNewPrices(t *testing.T) {
	products := &fakeProductStore{}
	prices := &fakePriceStore{latest: map[string]string{}}
	w := writer.New(products, prices, logger.NewNopLogger())

	records := []domain.SourceRecord{record("k1", 19.99), record("k2", 5.00)}

	stats, err := w.WriteAll(context.Background(), testFeed(), testRun(), records)
	if err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}

	if stats.ProductsUpserted != 2 || stats.PricesWritten != 2 || stats.PricesSkipped != 0 {
		t.Errorf("stats = %+v, want 2 upserted, 2 written, 0 skipped", stats)
	}
	if len(prices.observations) != 2 {
		t.Fatalf("observations = %d, want 2", len(prices.observations))
	}

	obs := prices.observations[0]
	if obs.RunID != "run-1" || obs.Trigger != domain.TriggerScheduled {
		t.Errorf("observation run attribution wrong: %+v", obs)
	}
	if obs.Signature != identity.PriceSignature(19.99, "USD", nil) {
		t.Error("observation carries a wrong signature")
	}

	// Presence and seen facts recorded for both.
	if len(prices.presence) != 2 || len(prices.seen) != 2 {
		t.Errorf("presence/seen = %d/%d, want 2/2", len(prices.presence), len(prices.seen))
	}
}

func TestWriteRecordSkipsUnchangedSignature(t *testing.T) {
	sig := identity.PriceSignature(19.99, "USD", nil)
	products := &fakeProductStore{}
	prices := &fakePriceStore{latest: map[string]string{"sp-k1": sig}}
	w := writer.New(products, prices, logger.NewNopLogger())

	stats, err := w.WriteAll(context.Background(), testFeed(), testRun(),
		[]domain.SourceRecord{record("k1", 19.99)})
	if err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}

	if stats.PricesWritten != 0 || stats.PricesSkipped != 1 {
		t.Errorf("stats = %+v, want 0 written, 1 skipped", stats)
	}
	if len(prices.observations) != 0 {
		t.Error("unchanged signature must not insert an observation")
	}

	// Presence still updates even when the price is unchanged.
	if len(prices.presence) != 1 || len(prices.seen) != 1 {
		t.Errorf("presence/seen = %d/%d, want 1/1", len(prices.presence), len(prices.seen))
	}
}

func TestWriteRecordCountsConflictAsSkip(t *testing.T) {
	products := &fakeProductStore{}
	prices := &fakePriceStore{latest: map[string]string{}, insertDup: true}
	w := writer.New(products, prices, logger.NewNopLogger())

	stats, err := w.WriteAll(context.Background(), testFeed(), testRun(),
		[]domain.SourceRecord{record("k1", 19.99)})
	if err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	if stats.PricesWritten != 0 || stats.PricesSkipped != 1 {
		t.Errorf("stats = %+v, want conflict counted as skip", stats)
	}
}

func TestWriteAllAbortsOnStoreError(t *testing.T) {
	products := &fakeProductStore{err: errors.New("connection reset")}
	prices := &fakePriceStore{latest: map[string]string{}}
	w := writer.New(products, prices, logger.NewNopLogger())

	_, err := w.WriteAll(context.Background(), testFeed(), testRun(),
		[]domain.SourceRecord{record("k1", 19.99)})
	if err == nil {
		t.Fatal("WriteAll() expected error when the store fails")
	}
}

func TestWriteRecordMapsOptionalFields(t *testing.T) {
	products := &fakeProductStore{}
	prices := &fakePriceStore{latest: map[string]string{}}
	w := writer.New(products, prices, logger.NewNopLogger())

	rec := record("k1", 19.99)
	rec.UPC = "012345678905"
	rec.Brand = "Acme"

	stats := &writer.Stats{}
	if err := w.WriteRecord(context.Background(), testFeed(), testRun(), &rec, stats); err != nil {
		t.Fatalf("WriteRecord() error = %v", err)
	}

	sp := products.upserts[0]
	if sp.UPC == nil || *sp.UPC != "012345678905" {
		t.Error("UPC not carried onto the source product")
	}
	if sp.SKU != nil {
		t.Error("empty SKU should map to nil, not empty string")
	}
	if sp.RetailerID != "r-1" {
		t.Errorf("RetailerID = %q, want feed's retailer", sp.RetailerID)
	}
}
