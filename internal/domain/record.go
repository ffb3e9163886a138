package domain

// IdentityKind tells which candidate won identity derivation.
// Priority is fixed: network-assigned item id, then merchant SKU, then a
// hash of the canonicalized URL.
type IdentityKind string

const (
	IdentityItemID  IdentityKind = "item_id"
	IdentitySKU     IdentityKind = "sku"
	IdentityURLHash IdentityKind = "url_hash"
)

// SourceRecord is one parsed row from a feed, not yet trusted.
type SourceRecord struct {
	RowNumber int               `json:"row_number"`
	Fields    map[string]string `json:"fields"`

	// Canonical fields resolved by the parser's alias mapping.
	Name          string `json:"name"`
	URL           string `json:"url"`
	RawPrice      string `json:"raw_price"`
	RawStock      string `json:"raw_stock"`
	Currency      string `json:"currency"`
	ItemID        string `json:"item_id,omitempty"`
	SKU           string `json:"sku,omitempty"`
	UPC           string `json:"upc,omitempty"`
	Brand         string `json:"brand,omitempty"`
	Caliber       string `json:"caliber,omitempty"`
	PackSize      string `json:"pack_size,omitempty"`
	RawOrigPrice  string `json:"raw_orig_price,omitempty"`

	// Normalized by the parser.
	Price         float64  `json:"price"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
	InStock       bool     `json:"in_stock"`

	// Annotated by the identity engine.
	IdentityKey  string       `json:"identity_key,omitempty"`
	IdentityFrom IdentityKind `json:"identity_from,omitempty"`
	Signature    string       `json:"signature,omitempty"`
}

// ErrorCode is a closed set of blocking validation error codes.
type ErrorCode string

const (
	CodeMissingIdentifier ErrorCode = "MISSING_IDENTIFIER"
	CodeInvalidUPC        ErrorCode = "INVALID_UPC"
	CodeMissingTitle      ErrorCode = "MISSING_TITLE"
	CodeMissingPrice      ErrorCode = "MISSING_PRICE"
	CodeInvalidPrice      ErrorCode = "INVALID_PRICE"
)

// BlockingError is a single coded validation failure on a record.
type BlockingError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// RowError is a per-row parse failure. Parse errors never fail the run;
// they accumulate on the run's error list with their row numbers.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}
