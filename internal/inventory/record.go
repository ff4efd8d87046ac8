package inventory

import (
	"fmt"
	"sort"
	"strconv"
)

// Record is one flat inventory entry. Nested mappings are flattened to
// dotted keys, so app_source.url addresses {app_source: {url: ...}}.
type Record map[string]any

// String returns the value at key rendered as a string. Missing and null
// values report false.
func (r Record) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	return scalarString(v), true
}

// Strings returns a list value as strings. A scalar is a one-element list.
func (r Record) Strings(key string) []string {
	v, ok := r[key]
	if !ok || v == nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return []string{scalarString(v)}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != nil {
			out = append(out, scalarString(item))
		}
	}
	return out
}

// Keys returns the record's keys sorted.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// flatten copies src into dst, joining nested mapping keys with dots.
func flatten(dst Record, prefix string, src map[string]any) error {
	for key, value := range src {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch nested := value.(type) {
		case map[string]any:
			if err := flatten(dst, full, nested); err != nil {
				return err
			}
		case map[any]any:
			converted, err := stringKeys(nested)
			if err != nil {
				return fmt.Errorf("%s: %w", full, err)
			}
			if err := flatten(dst, full, converted); err != nil {
				return err
			}
		default:
			if _, dup := dst[full]; dup {
				return fmt.Errorf("key %s defined twice", full)
			}
			dst[full] = value
		}
	}
	return nil
}

func stringKeys(m map[any]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		key, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("non-string key %v", k)
		}
		out[key] = v
	}
	return out, nil
}
