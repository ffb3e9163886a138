package domain

import "time"

// SourceProduct is the retailer-side identity a price observation attaches
// to, prior to catalog matching.
type SourceProduct struct {
	ID           string       `db:"id"            json:"id"`
	RetailerID   string       `db:"retailer_id"   json:"retailer_id"`
	IdentityKey  string       `db:"identity_key"  json:"identity_key"`
	IdentityFrom IdentityKind `db:"identity_from" json:"identity_from"`
	Title        string       `db:"title"         json:"title"`
	URL          string       `db:"url"           json:"url"`
	UPC          *string      `db:"upc"           json:"upc,omitempty"`
	SKU          *string      `db:"sku"           json:"sku,omitempty"`
	Brand        *string      `db:"brand"         json:"brand,omitempty"`
	Caliber      *string      `db:"caliber"       json:"caliber,omitempty"`
	PackSize     *string      `db:"pack_size"     json:"pack_size,omitempty"`
	LastSeenAt   time.Time    `db:"last_seen_at"  json:"last_seen_at"`
	CreatedAt    time.Time    `db:"created_at"    json:"created_at"`
}

// PriceObservation is an accepted, persisted price fact. Rows are
// append-only: corrections produce new rows, never in-place edits.
type PriceObservation struct {
	ID              string      `db:"id"                json:"id"`
	SourceProductID string      `db:"source_product_id" json:"source_product_id"`
	Price           float64     `db:"price"             json:"price"`
	Currency        string      `db:"currency"          json:"currency"`
	OriginalPrice   *float64    `db:"original_price"    json:"original_price,omitempty"`
	InStock         bool        `db:"in_stock"          json:"in_stock"`
	Signature       string      `db:"signature"         json:"signature"`
	RunID           string      `db:"run_id"            json:"run_id"`
	Trigger         TriggerKind `db:"trigger_kind"      json:"trigger_kind"`
	ObservedAt      time.Time   `db:"observed_at"       json:"observed_at"`
}
