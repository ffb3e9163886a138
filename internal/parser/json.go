package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// productArrayKeys are object members checked, in order, for the record
// array when the payload is a JSON object rather than a bare array.
var productArrayKeys = []string{"products", "items", "records", "data", "feed"}

// parseJSON accepts a top-level array of objects or an object wrapping one
// under a products-like key. Nested values are flattened to strings.
func parseJSON(data []byte) (*ParseResult, error) {
	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	items, err := jsonItems(top)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			result.RowsRead++
			result.RowErrors = append(result.RowErrors, rowErrorf(i+1, "element %d is not an object", i))
			continue
		}
		result.collect(i+1, flattenJSONObject(obj))
	}
	return result, nil
}

func jsonItems(top any) ([]any, error) {
	switch v := top.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range productArrayKeys {
			if arr, ok := v[key].([]any); ok {
				return arr, nil
			}
		}
		return nil, fmt.Errorf("json object has no product array (looked for %v)", productArrayKeys)
	default:
		return nil, fmt.Errorf("unsupported json top-level type %T", top)
	}
}

// flattenJSONObject stringifies scalar members. Nested objects and arrays
// are skipped; feeds carry flat records and the alias mapping only works
// on scalars.
func flattenJSONObject(obj map[string]any) map[string]string {
	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case float64:
			fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			fields[k] = strconv.FormatBool(val)
		case nil:
			// Absent.
		}
	}
	return fields
}
