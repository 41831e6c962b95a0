// Package sanitize strips card data from provider payloads before they are stored.
package sanitize

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

var sensitiveFields = map[string]struct{}{
	"card":        {},
	"cvv":         {},
	"pan":         {},
	"card_number": {},
	"cvc":         {},
	"bank_card":   {},
}

func IsSensitiveField(name string) bool {
	_, ok := sensitiveFields[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// JSON removes sensitive keys at any depth and returns the re-encoded document.
// Numbers are kept as their original literals.
func JSON(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return "", err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", errors.New("sanitize: trailing data after JSON document")
	}

	encoded, err := json.Marshal(Value(doc))
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// Value walks decoded JSON (maps, slices, scalars) and drops sensitive keys in place.
func Value(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for key, child := range t {
			if IsSensitiveField(key) {
				delete(t, key)
				continue
			}
			t[key] = Value(child)
		}
		return t
	case []interface{}:
		for i, child := range t {
			t[i] = Value(child)
		}
		return t
	default:
		return v
	}
}
