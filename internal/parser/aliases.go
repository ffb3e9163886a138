package parser

import "strings"

// Logical fields the parser extracts from whatever shape the feed has.
const (
	FieldName      = "name"
	FieldURL       = "url"
	FieldPrice     = "price"
	FieldOrigPrice = "original_price"
	FieldCurrency  = "currency"
	FieldUPC       = "upc"
	FieldSKU       = "sku"
	FieldItemID    = "item_id"
	FieldBrand     = "brand"
	FieldCaliber   = "caliber"
	FieldPackSize  = "pack_size"
	FieldStock     = "stock"
)

// fieldAliases maps each logical field to an ordered list of source column
// names, checked in priority order. Matching is insensitive to case,
// spaces, underscores and dashes, so "PRODUCT_NAME" and "ProductName" both
// hit the "productname" alias.
var fieldAliases = map[string][]string{
	FieldName:      {"name", "productname", "title", "itemname", "description"},
	FieldURL:       {"url", "producturl", "link", "itemurl", "productlink"},
	FieldPrice:     {"price", "saleprice", "currentprice", "itemprice", "cost"},
	FieldOrigPrice: {"originalprice", "msrp", "listprice", "retailprice", "wasprice"},
	FieldCurrency:  {"currency", "currencycode"},
	FieldUPC:       {"upc", "upccode", "gtin", "ean", "barcode"},
	FieldSKU:       {"sku", "merchantsku", "itemsku", "partnumber", "mpn"},
	FieldItemID:    {"itemid", "id", "productid", "networkitemid"},
	FieldBrand:     {"brand", "manufacturer", "brandname", "make"},
	FieldCaliber:   {"caliber", "calibre", "cartridge"},
	FieldPackSize:  {"packsize", "roundcount", "rounds", "quantity", "count"},
	FieldStock:     {"stock", "instock", "stockstatus", "availability", "available"},
}

// normalizeHeader folds a source column name to its comparable form.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
	return h
}

// fieldMap resolves raw row fields into logical fields using the alias
// lists. Raw keys are normalized once; the first alias present wins.
type fieldMap struct {
	byHeader map[string]string
}

func newFieldMap(fields map[string]string) *fieldMap {
	m := &fieldMap{byHeader: make(map[string]string, len(fields))}
	for k, v := range fields {
		key := normalizeHeader(k)
		// First occurrence wins on header collisions after folding.
		if _, ok := m.byHeader[key]; !ok {
			m.byHeader[key] = strings.TrimSpace(v)
		}
	}
	return m
}

// get returns the value for a logical field, or "" when no alias matched.
func (m *fieldMap) get(logical string) string {
	for _, alias := range fieldAliases[logical] {
		if v, ok := m.byHeader[alias]; ok && v != "" {
			return v
		}
	}
	return ""
}
