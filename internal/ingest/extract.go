package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ExtractPrice pulls a price out of an upstream payload whose schema is not
// contractually fixed. Strategies are tried in order:
//
//  1. a top-level "price" field
//  2. "data.price"
//  3. a top-level field named after the symbol
//  4. "rates.<symbol>"
//  5. the first numeric value found anywhere in the payload
//
// The last strategy is deliberately lenient; callers log which payloads fall
// through to it so schema drift upstream stays visible.
func ExtractPrice(payload []byte, symbol string) (decimal.Decimal, bool, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return decimal.Zero, false, fmt.Errorf("extract %s: empty payload", symbol)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &root); err != nil {
		return extractLoose(trimmed, symbol, err)
	}

	if price, ok := numericField(root, "price"); ok {
		return price, false, nil
	}
	if nested, ok := objectField(root, "data"); ok {
		if price, ok := numericField(nested, "price"); ok {
			return price, false, nil
		}
	}
	if price, ok := numericField(root, symbol); ok {
		return price, false, nil
	}
	if nested, ok := objectField(root, "rates"); ok {
		if price, ok := numericField(nested, symbol); ok {
			return price, false, nil
		}
	}
	if price, ok := firstNumber(root); ok {
		return price, true, nil
	}
	return decimal.Zero, false, fmt.Errorf("extract %s: no numeric value in payload", symbol)
}

// extractLoose handles payloads whose root is not a JSON object. A bare
// number or an array still yields a first-number result.
func extractLoose(payload []byte, symbol string, decodeErr error) (decimal.Decimal, bool, error) {
	if price, ok := asDecimal(payload); ok {
		return price, true, nil
	}
	if items, ok := rawArray(payload); ok {
		for _, item := range items {
			if price, ok := asDecimal(item); ok {
				return price, true, nil
			}
			if nested, ok := rawObject(item); ok {
				if price, ok := firstNumber(nested); ok {
					return price, true, nil
				}
			}
		}
		return decimal.Zero, false, fmt.Errorf("extract %s: no numeric value in payload", symbol)
	}
	return decimal.Zero, false, fmt.Errorf("extract %s: decode payload: %w", symbol, decodeErr)
}

func objectField(obj map[string]json.RawMessage, name string) (map[string]json.RawMessage, bool) {
	raw, ok := lookup(obj, name)
	if !ok {
		return nil, false
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, false
	}
	return nested, true
}

func numericField(obj map[string]json.RawMessage, name string) (decimal.Decimal, bool) {
	raw, ok := lookup(obj, name)
	if !ok {
		return decimal.Zero, false
	}
	return asDecimal(raw)
}

// lookup is case-insensitive so "XAU" matches a payload keyed "xau".
func lookup(obj map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	if raw, ok := obj[name]; ok {
		return raw, true
	}
	for key, raw := range obj {
		if strings.EqualFold(key, name) {
			return raw, true
		}
	}
	return nil, false
}

// asDecimal accepts JSON numbers and numeric strings.
func asDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		if d, derr := decimal.NewFromString(num.String()); derr == nil {
			return d, true
		}
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if d, derr := decimal.NewFromString(strings.TrimSpace(str)); derr == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}

// firstNumber walks the payload depth-first and returns the first numeric
// leaf. Map iteration order is not stable, so keys are probed sorted to keep
// the result deterministic for a given payload.
func firstNumber(obj map[string]json.RawMessage) (decimal.Decimal, bool) {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := obj[key]
		if d, ok := asDecimal(raw); ok {
			return d, true
		}
		if nested, ok := rawObject(raw); ok {
			if d, ok := firstNumber(nested); ok {
				return d, true
			}
			continue
		}
		if items, ok := rawArray(raw); ok {
			for _, item := range items {
				if d, ok := asDecimal(item); ok {
					return d, true
				}
				if nested, ok := rawObject(item); ok {
					if d, ok := firstNumber(nested); ok {
						return d, true
					}
				}
			}
		}
	}
	return decimal.Zero, false
}

func rawObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, false
	}
	return nested, true
}

func rawArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}
