// Package wireformat decodes event and blob payloads whose field names may
// arrive as either snake_case or camelCase (spec §4.C: "Parse event fields
// tolerantly"). It normalises every key to snake_case before routing into
// encoding/json's struct-tag matching, using goccy/go-json for the actual
// marshal/unmarshal (the direct dependency AKJUS-bsc-erigon pulls in for
// the same reason: it is a drop-in, faster encoding/json).
package wireformat

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/stoewer/go-strcase"
)

// DecodeTolerant normalises every object key in raw to snake_case, then
// unmarshals the result into v. Struct tags on v must use snake_case.
func DecodeTolerant(raw []byte, v interface{}) error {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("wireformat: decode raw payload: %w", err)
	}
	normalised := normalise(generic)
	normalisedBytes, err := json.Marshal(normalised)
	if err != nil {
		return fmt.Errorf("wireformat: re-encode normalised payload: %w", err)
	}
	if err := json.Unmarshal(normalisedBytes, v); err != nil {
		return fmt.Errorf("wireformat: decode normalised payload: %w", err)
	}
	return nil
}

// normalise walks a decoded JSON value and lower-snake-cases every map key,
// recursing into nested objects and arrays. Values are left untouched.
func normalise(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[strcase.SnakeCase(k)] = normalise(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalise(val)
		}
		return out
	default:
		return v
	}
}

// Field fetches a tolerant field from a decoded generic map, trying the
// snake_case, UpperCamelCase and lowerCamelCase spellings of name.
func Field(m map[string]interface{}, name string) (interface{}, bool) {
	if v, ok := m[strcase.SnakeCase(name)]; ok {
		return v, true
	}
	if v, ok := m[strcase.UpperCamelCase(name)]; ok {
		return v, true
	}
	lowerCamel := strcase.UpperCamelCase(name)
	if len(lowerCamel) > 0 {
		lowerCamel = string(lowerCamel[0]+('a'-'A')) + lowerCamel[1:]
		if v, ok := m[lowerCamel]; ok {
			return v, true
		}
	}
	return nil, false
}
