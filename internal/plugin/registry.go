package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/datashades/converge/internal/resource"
	convergeerrors "github.com/datashades/converge/pkg/errors"
)

// Registry maps resource kinds to back ends.
type Registry struct {
	mu      sync.RWMutex
	plugins map[resource.Kind]Plugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[resource.Kind]Plugin)}
}

// Register adds a back end for the kind it declares.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return convergeerrors.NewPluginError("", fmt.Errorf("plugin is nil"))
	}
	meta := p.Metadata()
	if meta.Kind == "" {
		return convergeerrors.NewPluginError(meta.Name, fmt.Errorf("plugin declares no resource kind"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.plugins[meta.Kind]; exists {
		return convergeerrors.NewPluginError(meta.Name,
			fmt.Errorf("kind %s already handled by %s", meta.Kind, existing.Metadata().Name))
	}
	r.plugins[meta.Kind] = p
	return nil
}

// MustRegister panics when Register fails. Intended for wiring at startup.
func (r *Registry) MustRegister(plugins ...Plugin) *Registry {
	for _, p := range plugins {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Get returns the back end for kind.
func (r *Registry) Get(kind resource.Kind) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[kind]
	if !ok {
		return nil, ErrPluginNotFound{Kind: kind}
	}
	return p, nil
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []resource.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]resource.Kind, 0, len(r.plugins))
	for kind := range r.plugins {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
