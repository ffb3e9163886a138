package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnparseablePrice is returned when a price string has no usable number.
var ErrUnparseablePrice = errors.New("unparseable price")

// truthy/falsy stock vocabulary. Absent or unrecognized values default to
// in-stock; only an explicit falsy token marks a record out of stock.
var (
	truthyStock = map[string]bool{
		"true": true, "1": true, "yes": true, "y": true,
		"in stock": true, "instock": true, "available": true,
	}
	falsyStock = map[string]bool{
		"false": true, "0": true, "no": true, "n": true,
		"out of stock": true, "outofstock": true, "unavailable": true,
		"sold out": true, "soldout": true,
	}
)

// NormalizeStock maps a raw stock indicator onto a boolean using the fixed
// vocabulary, defaulting to in-stock.
func NormalizeStock(raw string) bool {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return true
	}
	if falsyStock[v] {
		return false
	}
	if truthyStock[v] {
		return true
	}
	return true
}

// NormalizePrice strips currency symbols and thousands separators and
// parses the remainder as a positive decimal. Handles both "1,234.56" and
// "1.234,56" groupings.
func NormalizePrice(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrUnparseablePrice)
	}

	// Keep digits, separators and sign; drop currency symbols and codes.
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" {
		return 0, fmt.Errorf("%w: %q", ErrUnparseablePrice, raw)
	}

	s = normalizeSeparators(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparseablePrice, raw)
	}
	return v, nil
}

// normalizeSeparators reduces mixed group/decimal separators to a plain
// dot-decimal form.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Whichever separator appears last is the decimal point.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// A single comma followed by exactly two digits is a decimal
		// point; anything else is grouping.
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 == 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	return s
}
