package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dhima/datman/pkg/dataerr"
	"github.com/xeipuuv/gojsonschema"
)

// Params are driver-specific connection parameters (host, port, credentials, bucket, ...).
type Params map[string]any

var containerSchema = gojsonschema.NewStringLoader(`{"type": "object"}`)

// ParseParams accepts a JSON document (string or bytes) or an already decoded mapping.
// Only the top-level container is checked; keys are interpreted by the driver.
func ParseParams(src any) (Params, error) {
	const op = "parse params"

	var doc any
	switch v := src.(type) {
	case Params:
		if v == nil {
			return nil, dataerr.InvalidArgument(op, "params are nil")
		}
		return v.clone(), nil
	case map[string]any:
		if v == nil {
			return nil, dataerr.InvalidArgument(op, "params are nil")
		}
		return Params(v).clone(), nil
	case string:
		if err := json.Unmarshal([]byte(v), &doc); err != nil {
			return nil, dataerr.New(dataerr.KindInvalidArgument, op, fmt.Errorf("decode json: %w", err))
		}
	case []byte:
		if err := json.Unmarshal(v, &doc); err != nil {
			return nil, dataerr.New(dataerr.KindInvalidArgument, op, fmt.Errorf("decode json: %w", err))
		}
	default:
		return nil, dataerr.InvalidArgument(op, "invalid params type: %T", src)
	}

	result, err := gojsonschema.Validate(containerSchema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, dataerr.New(dataerr.KindInvalidArgument, op, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, dataerr.InvalidArgument(op, "params must be an object: %s", strings.Join(msgs, "; "))
	}

	return Params(doc.(map[string]any)), nil
}

func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the value of key rendered as a string, and whether it was present.
// Numbers decoded from JSON are rendered without a fractional part when integral.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// Bool returns key as a boolean; strings like "true"/"false" are accepted.
func (p Params) Bool(key string, fallback bool) bool {
	switch t := p[key].(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	}
	return fallback
}

// Without returns a copy of p lacking the given keys.
func (p Params) Without(keys ...string) Params {
	out := p.clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
