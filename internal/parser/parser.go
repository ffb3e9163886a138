// Package parser converts raw feed bytes into logical source records.
// Feeds are arbitrarily shaped; the contract here is extracting a fixed
// logical schema from whatever shape is found, not supporting a specific
// wire format.
package parser

import (
	"bytes"
	"fmt"

	"github.com/jonesrussell/pricefeed/internal/domain"
)

// ParseResult is the outcome of parsing one feed payload. RowErrors are
// per-row and never fatal; the invariant RowsParsed <= RowsRead always
// holds and callers may assert it.
type ParseResult struct {
	Records    []domain.SourceRecord
	RowsRead   int
	RowsParsed int
	RowErrors  []domain.RowError
}

// Parse converts raw bytes into source records. The format hint routes to
// a parser variant; FormatAuto sniffs the payload shape.
func Parse(data []byte, hint domain.FeedFormat) (*ParseResult, error) {
	format := hint
	if format == "" || format == domain.FormatAuto {
		format = Sniff(data)
	}

	switch format {
	case domain.FormatJSON:
		return parseJSON(data)
	case domain.FormatXML:
		return parseXML(data)
	case domain.FormatDelimited:
		return parseDelimited(data)
	default:
		return nil, fmt.Errorf("unknown feed format %q", format)
	}
}

// Sniff guesses the payload format from its leading bytes: JSON object or
// array, XML prolog or tag, else delimited text.
func Sniff(data []byte) domain.FeedFormat {
	trimmed := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf")
	if len(trimmed) == 0 {
		return domain.FormatDelimited
	}
	switch trimmed[0] {
	case '{', '[':
		return domain.FormatJSON
	case '<':
		return domain.FormatXML
	default:
		return domain.FormatDelimited
	}
}

// buildRecord resolves one raw field map into a source record. A row is
// dropped (not fatal) when name, URL or price cannot be resolved, or when
// the price string fails numeric parsing.
func buildRecord(rowNumber int, fields map[string]string) (*domain.SourceRecord, error) {
	m := newFieldMap(fields)

	name := m.get(FieldName)
	url := m.get(FieldURL)
	rawPrice := m.get(FieldPrice)

	if name == "" {
		return nil, fmt.Errorf("row %d: no name field resolved", rowNumber)
	}
	if url == "" {
		return nil, fmt.Errorf("row %d: no url field resolved", rowNumber)
	}
	if rawPrice == "" {
		return nil, fmt.Errorf("row %d: no price field resolved", rowNumber)
	}

	price, err := NormalizePrice(rawPrice)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", rowNumber, err)
	}

	rec := &domain.SourceRecord{
		RowNumber:    rowNumber,
		Fields:       fields,
		Name:         name,
		URL:          url,
		RawPrice:     rawPrice,
		RawStock:     m.get(FieldStock),
		Currency:     m.get(FieldCurrency),
		ItemID:       m.get(FieldItemID),
		SKU:          m.get(FieldSKU),
		UPC:          m.get(FieldUPC),
		Brand:        m.get(FieldBrand),
		Caliber:      m.get(FieldCaliber),
		PackSize:     m.get(FieldPackSize),
		RawOrigPrice: m.get(FieldOrigPrice),
		Price:        price,
	}

	if rec.Currency == "" {
		rec.Currency = "USD"
	}
	rec.InStock = NormalizeStock(rec.RawStock)

	if rec.RawOrigPrice != "" {
		// A malformed original price degrades to absent, it never drops
		// the row.
		if orig, origErr := NormalizePrice(rec.RawOrigPrice); origErr == nil {
			rec.OriginalPrice = &orig
		}
	}

	return rec, nil
}

// ResolveFields maps a raw field map through the alias tables without
// dropping the row: unresolved or malformed values stay zero so the caller
// can run validation over the result. Used when re-validating corrected
// quarantined records.
func ResolveFields(rowNumber int, fields map[string]string) *domain.SourceRecord {
	m := newFieldMap(fields)

	rec := &domain.SourceRecord{
		RowNumber:    rowNumber,
		Fields:       fields,
		Name:         m.get(FieldName),
		URL:          m.get(FieldURL),
		RawPrice:     m.get(FieldPrice),
		RawStock:     m.get(FieldStock),
		Currency:     m.get(FieldCurrency),
		ItemID:       m.get(FieldItemID),
		SKU:          m.get(FieldSKU),
		UPC:          m.get(FieldUPC),
		Brand:        m.get(FieldBrand),
		Caliber:      m.get(FieldCaliber),
		PackSize:     m.get(FieldPackSize),
		RawOrigPrice: m.get(FieldOrigPrice),
	}

	if price, err := NormalizePrice(rec.RawPrice); err == nil {
		rec.Price = price
	}
	if rec.Currency == "" {
		rec.Currency = "USD"
	}
	rec.InStock = NormalizeStock(rec.RawStock)
	if rec.RawOrigPrice != "" {
		if orig, err := NormalizePrice(rec.RawOrigPrice); err == nil {
			rec.OriginalPrice = &orig
		}
	}
	return rec
}

func rowErrorf(row int, format string, args ...any) domain.RowError {
	return domain.RowError{Row: row, Message: fmt.Sprintf(format, args...)}
}

// collect appends a built record or records the row error, maintaining the
// RowsParsed <= RowsRead invariant.
func (r *ParseResult) collect(rowNumber int, fields map[string]string) {
	r.RowsRead++
	rec, err := buildRecord(rowNumber, fields)
	if err != nil {
		r.RowErrors = append(r.RowErrors, domain.RowError{Row: rowNumber, Message: err.Error()})
		return
	}
	r.RowsParsed++
	r.Records = append(r.Records, *rec)
}
