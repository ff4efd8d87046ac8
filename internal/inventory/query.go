package inventory

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// Query is a parsed field:value expression. Value may contain glob
// wildcards; '*' does not cross '/', '**' does.
type Query struct {
	Field string
	Value string
}

// ParseQuery parses "field:value". The first colon separates the two, so
// values may themselves contain colons.
func ParseQuery(expr string) (Query, error) {
	field, value, ok := strings.Cut(strings.TrimSpace(expr), ":")
	field = strings.TrimSpace(field)
	if !ok || field == "" {
		return Query{}, fmt.Errorf("query %q is not of the form field:value", expr)
	}
	q := Query{Field: field, Value: strings.TrimSpace(value)}
	if err := checkPattern(q.Value); err != nil {
		return Query{}, fmt.Errorf("query %q: %w", expr, err)
	}
	return q, nil
}

// checkPattern rejects unterminated classes and alternations up front;
// doublestar only reports them once a candidate reaches the bad part.
func checkPattern(pattern string) error {
	var class, alt int
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			i++
		case '[':
			if class == 0 {
				class++
			}
		case ']':
			if class > 0 {
				class--
			}
		case '{':
			if class == 0 {
				alt++
			}
		case '}':
			if class == 0 && alt > 0 {
				alt--
			}
		}
	}
	if class > 0 || alt > 0 {
		return doublestar.ErrBadPattern
	}
	return nil
}

func (q Query) String() string { return q.Field + ":" + q.Value }

// Matches reports whether the record's field matches. List fields match
// when any element does.
func (q Query) Matches(r Record) (bool, error) {
	v, ok := r[q.Field]
	if !ok || v == nil {
		return false, nil
	}
	for _, candidate := range r.Strings(q.Field) {
		ok, err := doublestar.Match(q.Value, candidate)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
