package filesync

import (
	"context"
	"fmt"
	"sync"
)

// SyncAdapter binds one Target to its on-disk layout and metadata store.
type SyncAdapter interface {
	// Target returns the domain this adapter serves.
	Target() Target

	// BaseScanPath is the domain root, relative to the storage root.
	BaseScanPath() string

	// AllowedExtensions lists lowercase suffixes (".sql", ".tar.gz").
	// An empty list accepts every file.
	AllowedExtensions() []string

	// ExcludedDirectories lists directory names skipped during scanning.
	ExcludedDirectories() []string

	// IsValidSyncPath reports whether a slash-separated path relative to the
	// domain root fits the domain's directory layout.
	IsValidSyncPath(relativePath string) bool

	// ListRegistered returns metadata whose relative path lies under subPath.
	// An empty subPath lists everything.
	ListRegistered(ctx context.Context, subPath string) ([]*RegisteredMetadata, error)

	// Register creates metadata for fp and returns the new id. createdBy is
	// carried in extra under AttrCreatedBy.
	Register(ctx context.Context, fp *Fingerprint, extra map[string]string) (int64, error)

	// UpdateMetadata overwrites size and checksum of an existing row.
	UpdateMetadata(ctx context.Context, id int64, fp *Fingerprint) error

	// DeleteMetadata removes a row. Absent ids return an error wrapping ErrNotFound.
	DeleteMetadata(ctx context.Context, id int64) error
}

// AttrCreatedBy is the extra attribute holding the registering actor.
const AttrCreatedBy = "createdBy"

// Registry maps targets to adapters. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Target]SyncAdapter
	order    []Target
}

func NewRegistry(adapters ...SyncAdapter) (*Registry, error) {
	r := &Registry{adapters: make(map[Target]SyncAdapter)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter. Registering a target twice is an error.
func (r *Registry) Register(a SyncAdapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := a.Target()
	if _, ok := r.adapters[t]; ok {
		return fmt.Errorf("adapter already registered for target %s", t)
	}
	r.adapters[t] = a
	r.order = append(r.order, t)
	return nil
}

// Get returns the adapter for t, or nil if none is registered.
func (r *Registry) Get(t Target) SyncAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[t]
}

// Targets returns the registered targets in registration order.
func (r *Registry) Targets() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Target, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve validates requested targets and returns them deduplicated in
// request order. An empty request resolves to every registered target in
// registration order.
func (r *Registry) Resolve(requested []Target) ([]Target, error) {
	if len(requested) == 0 {
		return r.Targets(), nil
	}

	seen := make(map[Target]bool, len(requested))
	var out []Target
	for _, t := range requested {
		if r.Get(t) == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, t)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}
