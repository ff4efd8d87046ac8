package inventory

import (
	"context"
	"errors"

	"github.com/datashades/converge/internal/config"
	convergeerrors "github.com/datashades/converge/pkg/errors"
)

// SelfQuery finds the instance record for the host converge runs on.
const SelfQuery = "self:true"

// Snapshot holds every fact a plan builder may consume. It is built once per
// invocation; accessors return copies.
type Snapshot struct {
	attrs      config.Attributes
	instance   Record
	batchNode  bool
	extensions []ExtensionRecord
}

// NewSnapshot assembles a snapshot from already resolved facts.
func NewSnapshot(attrs config.Attributes, instance Record, batchNode bool, extensions []ExtensionRecord) Snapshot {
	return Snapshot{
		attrs:      attrs,
		instance:   cloneRecord(instance),
		batchNode:  batchNode,
		extensions: append([]ExtensionRecord(nil), extensions...),
	}
}

// Build resolves the instance, batch membership and extension apps.
func Build(ctx context.Context, r Resolver, attrs config.Attributes) (Snapshot, error) {
	instance, found, err := r.FindFirst(ctx, IndexInstance, SelfQuery)
	if err != nil {
		return Snapshot{}, err
	}
	if !found {
		return Snapshot{}, convergeerrors.NewResolverError(IndexInstance, SelfQuery, errors.New("no instance record for this host"))
	}

	batch, err := IsBatchNode(ctx, r, instance, attrs.AppID, attrs.Version)
	if err != nil {
		return Snapshot{}, err
	}

	exts, err := FindExtensions(ctx, r, attrs.CKANExt.SourceDir)
	if err != nil {
		return Snapshot{}, err
	}

	return NewSnapshot(attrs, instance, batch, exts), nil
}

// Attributes returns the node attributes. Slices inside are shared and
// must be treated as read-only; use the With* helpers on Attributes to
// derive changed copies.
func (s Snapshot) Attributes() config.Attributes { return s.attrs }

func (s Snapshot) Instance() Record { return cloneRecord(s.instance) }

// BatchNode reports whether this host is in the batch layer.
func (s Snapshot) BatchNode() bool { return s.batchNode }

func (s Snapshot) Extensions() []ExtensionRecord {
	return append([]ExtensionRecord(nil), s.extensions...)
}

// Hostname is the instance's hostname, or empty.
func (s Snapshot) Hostname() string {
	host, _ := s.instance.String("hostname")
	return host
}

// WithAttributes returns a copy of s using attrs.
func (s Snapshot) WithAttributes(attrs config.Attributes) Snapshot {
	s.attrs = attrs
	return s
}
