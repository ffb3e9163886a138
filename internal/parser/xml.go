package parser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/jonesrussell/pricefeed/internal/domain"
)

// itemElementNames are element names treated as one product record each.
var itemElementNames = map[string]bool{
	"product": true,
	"item":    true,
	"entry":   true,
	"record":  true,
	"offer":   true,
}

// parseXML streams the document and turns each repeated item element into
// a field map from its attributes and child elements.
func parseXML(data []byte) (*ParseResult, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	result := &ParseResult{}
	rowNumber := 0

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || !itemElementNames[strings.ToLower(start.Name.Local)] {
			continue
		}

		rowNumber++
		fields, itemErr := decodeItem(decoder, start)
		if itemErr != nil {
			result.RowsRead++
			result.RowErrors = append(result.RowErrors, domain.RowError{
				Row:     rowNumber,
				Message: itemErr.Error(),
			})
			continue
		}
		result.collect(rowNumber, fields)
	}

	return result, nil
}

// decodeItem reads one item element into a flat field map. Attributes and
// direct child elements both contribute; deeper nesting flattens onto the
// child element's name.
func decodeItem(decoder *xml.Decoder, start xml.StartElement) (map[string]string, error) {
	fields := make(map[string]string)
	for _, attr := range start.Attr {
		fields[attr.Name.Local] = attr.Value
	}

	var current string
	var text strings.Builder
	depth := 0

	for {
		tok, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("read item: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				current = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth >= 1 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 0 {
				// Closing the item element itself.
				return fields, nil
			}
			if depth == 1 && current != "" {
				if v := strings.TrimSpace(text.String()); v != "" {
					fields[current] = v
				}
				current = ""
			}
			depth--
		}
	}
}
