// Package rc implements the RPC surface of spec.md §6: a name->handler
// registry in the shape of rclone's fs/rc (Params, Registry.Get,
// Call.Fn), served here over net/rpc/jsonrpc rather than rclone's
// HTTP+JSON transport, since DTS's peers are other DTS daemons, not
// browsers.
package rc

import (
	"encoding/json"
	"fmt"
)

// Params is an untyped bag of named arguments/results, the lingua
// franca of every RPC call (mirrors fs/rc.Params).
type Params map[string]interface{}

// ErrParamNotFound is returned by Get when a key is missing.
type ErrParamNotFound string

func (e ErrParamNotFound) Error() string {
	return fmt.Sprintf("didn't find %q in parameters", string(e))
}

// IsErrParamNotFound reports whether err is an ErrParamNotFound.
func IsErrParamNotFound(err error) bool {
	_, ok := err.(ErrParamNotFound)
	return ok
}

// ErrParamInvalid wraps a type-conversion failure for a known key.
type ErrParamInvalid struct{ error }

// Get fetches a raw value, erroring with ErrParamNotFound if absent.
func (p Params) Get(key string) (interface{}, error) {
	v, ok := p[key]
	if !ok {
		return nil, ErrParamNotFound(key)
	}
	return v, nil
}

// GetString fetches and type-asserts a string parameter.
func (p Params) GetString(key string) (string, error) {
	v, err := p.Get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrParamInvalid{fmt.Errorf("parameter %q is not a string", key)}
	}
	return s, nil
}

// GetInt64 fetches and coerces a numeric parameter to int64 (JSON
// decodes all numbers as float64, so both are accepted).
func (p Params) GetInt64(key string) (int64, error) {
	v, err := p.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, ErrParamInvalid{fmt.Errorf("parameter %q is not a number", key)}
	}
}

// GetBool fetches and type-asserts a bool parameter.
func (p Params) GetBool(key string) (bool, error) {
	v, err := p.Get(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, ErrParamInvalid{fmt.Errorf("parameter %q is not a bool", key)}
	}
	return b, nil
}

// GetStringDefault is GetString with a fallback for an absent key.
func (p Params) GetStringDefault(key, def string) string {
	s, err := p.GetString(key)
	if err != nil {
		return def
	}
	return s
}

// Reshape marshals in to JSON and unmarshals it into out, the generic
// escape hatch for converting between Params and a typed struct.
func Reshape(out interface{}, in interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("rc: reshape marshal: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("rc: reshape unmarshal: %w", err)
	}
	return nil
}
