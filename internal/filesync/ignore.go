package filesync

import "context"

// IgnoreStore persists acknowledged discrepancies keyed by (target, path).
type IgnoreStore interface {
	// ListIgnoreEntries returns entries for target, or all entries when target is "".
	ListIgnoreEntries(ctx context.Context, target Target) ([]*IgnoreEntry, error)

	// PutIgnoreEntry inserts or replaces the entry for its (target, path).
	PutIgnoreEntry(ctx context.Context, entry *IgnoreEntry) error

	// DeleteIgnoreEntry removes the entry and reports whether one existed.
	DeleteIgnoreEntry(ctx context.Context, target Target, relativePath string) (bool, error)
}
