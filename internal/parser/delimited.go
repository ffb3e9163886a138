package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/jonesrussell/pricefeed/internal/domain"
)

// candidate delimiters for sniffing, most common first.
var delimiters = []rune{',', '\t', ';', '|'}

// parseDelimited reads delimited text with a header row. The delimiter is
// sniffed from the header line; short or malformed rows drop individually.
func parseDelimited(data []byte) (*ParseResult, error) {
	delim := sniffDelimiter(data)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return &ParseResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	result := &ParseResult{}
	rowNumber := 1 // header is row 1; data starts at row 2

	for {
		rowNumber++
		row, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			var parseErr *csv.ParseError
			if errors.As(readErr, &parseErr) {
				result.RowsRead++
				result.RowErrors = append(result.RowErrors, domain.RowError{
					Row:     rowNumber,
					Message: readErr.Error(),
				})
				continue
			}
			return result, fmt.Errorf("read row %d: %w", rowNumber, readErr)
		}

		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				fields[col] = row[i]
			}
		}
		result.collect(rowNumber, fields)
	}

	return result, nil
}

// sniffDelimiter picks the candidate that splits the first line into the
// most columns.
func sniffDelimiter(data []byte) rune {
	line := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		line = data[:idx]
	}

	best := ','
	bestCount := 0
	for _, d := range delimiters {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best = d
			bestCount = n
		}
	}
	return best
}
