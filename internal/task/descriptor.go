package task

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Recognized parameter keys. Input and output are path-valued and are
// canonicalized by the path guard before dispatch; operation names a
// sub-action and is checked against the destructive-verb denylist.
const (
	ParamInput     = "input"
	ParamOutput    = "output"
	ParamOperation = "operation"
)

// PathParams lists the path-valued keys guarded before dispatch.
var PathParams = []string{ParamInput, ParamOutput}

// ErrInvalidParameter marks a missing or mistyped descriptor parameter.
var ErrInvalidParameter = errors.New("invalid parameter")

// Descriptor is the structured form of a classified task.
type Descriptor struct {
	Kind   Kind
	Params map[string]any
}

// NewDescriptor builds a descriptor, copying params.
func NewDescriptor(kind Kind, params map[string]any) Descriptor {
	d := Descriptor{Kind: kind, Params: make(map[string]any, len(params))}
	for k, v := range params {
		d.Params[k] = v
	}
	return d
}

// With returns a copy of d with key set to value. d is left untouched.
func (d Descriptor) With(key string, value any) Descriptor {
	out := NewDescriptor(d.Kind, d.Params)
	out.Params[key] = value
	return out
}

// Has reports whether key is present.
func (d Descriptor) Has(key string) bool {
	_, ok := d.Params[key]
	return ok
}

// String returns a required, non-empty string parameter.
func (d Descriptor) String(key string) (string, error) {
	v, ok := d.Params[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %q is required", ErrInvalidParameter, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string, got %T", ErrInvalidParameter, key, v)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %q is empty", ErrInvalidParameter, key)
	}
	return s, nil
}

// OptionalString returns a string parameter or def when absent.
func (d Descriptor) OptionalString(key, def string) (string, error) {
	if v, ok := d.Params[key]; !ok || v == nil {
		return def, nil
	}
	return d.String(key)
}

// Int returns a required integer parameter. JSON numbers (float64) and
// numeric strings are accepted as long as they hold a whole number.
func (d Descriptor) Int(key string) (int, error) {
	v, ok := d.Params[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %q is required", ErrInvalidParameter, key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, fmt.Errorf("%w: %q must be a whole number, got %v", ErrInvalidParameter, key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%w: %q must be an integer, got %q", ErrInvalidParameter, key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: %q must be an integer, got %T", ErrInvalidParameter, key, v)
	}
}

// Bool returns a boolean parameter, false when absent.
func (d Descriptor) Bool(key string) (bool, error) {
	v, ok := d.Params[key]
	if !ok || v == nil {
		return false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("%w: %q must be a boolean, got %q", ErrInvalidParameter, key, b)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("%w: %q must be a boolean, got %T", ErrInvalidParameter, key, v)
	}
}

// Strings returns a list-of-strings parameter. A single string is treated as
// a one-element list.
func (d Descriptor) Strings(key string) ([]string, error) {
	v, ok := d.Params[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %q is required", ErrInvalidParameter, key)
	}
	switch list := v.(type) {
	case string:
		return []string{list}, nil
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %q[%d] must be a string, got %T", ErrInvalidParameter, key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q must be a list of strings, got %T", ErrInvalidParameter, key, v)
	}
}
