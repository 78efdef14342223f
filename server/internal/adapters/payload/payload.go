// Package payload reads typed values out of the loosely typed payloads that
// query targets and variable lookups carry.
package payload

import (
	"fmt"
	"strconv"

	"github.com/visioncontrol/visioncontrol/server/internal/datasource"
)

// Reader reads fields from one payload and attributes errors to target.
type Reader struct {
	target string
	data   map[string]any
}

// New returns a Reader over data. target names the metric or variable in
// error messages.
func New(target string, data map[string]any) Reader {
	return Reader{target: target, data: data}
}

func (r Reader) invalid(key string, format string, args ...any) error {
	return &datasource.InvalidPayloadError{
		Target: r.target,
		Reason: fmt.Sprintf("%q %s", key, fmt.Sprintf(format, args...)),
	}
}

// Has reports whether key is present and not null.
func (r Reader) Has(key string) bool {
	v, ok := r.data[key]
	return ok && v != nil
}

// String returns the string at key, or def when key is absent.
func (r Reader) String(key, def string) (string, error) {
	if !r.Has(key) {
		return def, nil
	}
	s, ok := r.data[key].(string)
	if !ok {
		return "", r.invalid(key, "must be a string, got %T", r.data[key])
	}
	return s, nil
}

// RequiredString returns the non-empty string at key.
func (r Reader) RequiredString(key string) (string, error) {
	s, err := r.String(key, "")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", r.invalid(key, "is required")
	}
	return s, nil
}

// Bool returns the boolean at key, or def when key is absent.
func (r Reader) Bool(key string, def bool) (bool, error) {
	if !r.Has(key) {
		return def, nil
	}
	b, ok := r.data[key].(bool)
	if !ok {
		return false, r.invalid(key, "must be a boolean, got %T", r.data[key])
	}
	return b, nil
}

// Strings returns the list of strings at key, or nil when key is absent.
func (r Reader) Strings(key string) ([]string, error) {
	if !r.Has(key) {
		return nil, nil
	}
	raw, ok := r.data[key].([]any)
	if !ok {
		return nil, r.invalid(key, "must be a list of strings, got %T", r.data[key])
	}
	out := make([]string, 0, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, r.invalid(key, "element %d must be a string, got %T", i, v)
		}
		out = append(out, s)
	}
	return out, nil
}

// StringMap returns the object at key with string values, or nil when absent.
func (r Reader) StringMap(key string) (map[string]string, error) {
	if !r.Has(key) {
		return nil, nil
	}
	raw, ok := r.data[key].(map[string]any)
	if !ok {
		return nil, r.invalid(key, "must be an object, got %T", r.data[key])
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, r.invalid(key, "value of %q must be a string, got %T", k, v)
		}
		out[k] = s
	}
	return out, nil
}

// ID returns the identifier at key as a string. Numbers and numeric strings
// are both accepted; dashboards send either depending on how the variable
// was interpolated. def is used when key is absent.
func (r Reader) ID(key string, def string) (string, error) {
	if !r.Has(key) {
		return def, nil
	}
	switch v := r.data[key].(type) {
	case string:
		if v == "" {
			return def, nil
		}
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return "", r.invalid(key, "must be an integer, got %v", v)
		}
		return strconv.FormatInt(int64(v), 10), nil
	case int:
		return strconv.Itoa(v), nil
	default:
		return "", r.invalid(key, "must be a number or a string, got %T", v)
	}
}
