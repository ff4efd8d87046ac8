// Package inventory answers queries about the current instance, its layers
// and deployed apps, and condenses the answers into an immutable Snapshot.
package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	convergeerrors "github.com/datashades/converge/pkg/errors"
)

// Index names understood by every Resolver.
const (
	IndexInstance = "instance"
	IndexLayer    = "layer"
	IndexApp      = "app"
)

var knownIndexes = map[string]struct{}{IndexInstance: {}, IndexLayer: {}, IndexApp: {}}

// Resolver queries the inventory. Zero matches are never an error.
type Resolver interface {
	FindFirst(ctx context.Context, index, query string) (Record, bool, error)
	FindAll(ctx context.Context, index, query string) ([]Record, error)
}

// FileResolver serves queries from a YAML or JSON inventory document of the
// form {instance: [...], layer: [...], app: [...]}.
type FileResolver struct {
	source  string
	indexes map[string][]Record
}

// LoadFile reads and decodes the inventory at path.
func LoadFile(path string) (*FileResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, convergeerrors.NewResolverError("", "", fmt.Errorf("read %s: %w", path, err))
	}
	return NewFileResolver(path, data)
}

// NewFileResolver decodes an inventory document. source names it in errors.
func NewFileResolver(source string, data []byte) (*FileResolver, error) {
	var doc map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, convergeerrors.NewResolverError("", "", fmt.Errorf("decode %s: %w", source, err))
	}

	r := &FileResolver{source: source, indexes: make(map[string][]Record, len(doc))}
	for index, raw := range doc {
		if _, ok := knownIndexes[index]; !ok {
			return nil, convergeerrors.NewResolverError(index, "", fmt.Errorf("%s: %w", source, errUnknownIndex()))
		}
		records, err := decodeRecords(raw)
		if err != nil {
			return nil, convergeerrors.NewResolverError(index, "", fmt.Errorf("%s: %w", source, err))
		}
		r.indexes[index] = records
	}
	return r, nil
}

func decodeRecords(raw any) ([]Record, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of records, got %T", raw)
	}
	out := make([]Record, 0, len(list))
	for i, item := range list {
		var fields map[string]any
		switch m := item.(type) {
		case map[string]any:
			fields = m
		case map[any]any:
			converted, err := stringKeys(m)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			fields = converted
		default:
			return nil, fmt.Errorf("record %d: expected a mapping, got %T", i, item)
		}
		rec := make(Record, len(fields))
		if err := flatten(rec, "", fields); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// FindFirst returns the first record in document order that matches query.
func (r *FileResolver) FindFirst(ctx context.Context, index, query string) (Record, bool, error) {
	matches, err := r.find(ctx, index, query, 1)
	if err != nil || len(matches) == 0 {
		return nil, false, err
	}
	return matches[0], true, nil
}

// FindAll returns every matching record in document order.
func (r *FileResolver) FindAll(ctx context.Context, index, query string) ([]Record, error) {
	return r.find(ctx, index, query, 0)
}

func (r *FileResolver) find(ctx context.Context, index, query string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, convergeerrors.NewResolverError(index, query, err)
	}
	if _, ok := knownIndexes[index]; !ok {
		return nil, convergeerrors.NewResolverError(index, query, errUnknownIndex())
	}
	q, err := ParseQuery(query)
	if err != nil {
		return nil, convergeerrors.NewResolverError(index, query, err)
	}

	var out []Record
	for _, rec := range r.indexes[index] {
		ok, err := q.Matches(rec)
		if err != nil {
			return nil, convergeerrors.NewResolverError(index, query, err)
		}
		if !ok {
			continue
		}
		out = append(out, cloneRecord(rec))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Indexes lists the populated indexes and their sizes.
func (r *FileResolver) Indexes() map[string]int {
	out := make(map[string]int, len(r.indexes))
	for name, recs := range r.indexes {
		out[name] = len(recs)
	}
	return out
}

// Source names the document the resolver was loaded from.
func (r *FileResolver) Source() string { return r.source }

// cloneRecord returns a copy so callers cannot mutate the loaded document.
func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		if list, ok := v.([]any); ok {
			v = append([]any(nil), list...)
		}
		out[k] = v
	}
	return out
}

func errUnknownIndex() error {
	names := make([]string, 0, len(knownIndexes))
	for name := range knownIndexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("unknown index, want one of %s", strings.Join(names, ", "))
}
