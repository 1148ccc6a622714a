package testutil

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"filesync/internal/filesync"
)

// FakeAdapter is an in-memory SyncAdapter whose failures can be scripted.
// Safe for concurrent use.
type FakeAdapter struct {
	mu sync.Mutex

	target     filesync.Target
	base       string
	extensions []string
	excluded   []string
	validPath  func(string) bool

	rows   map[int64]*filesync.RegisteredMetadata
	nextID int64

	// ListErr makes ListRegistered fail.
	ListErr error
	// FailPaths makes Register, UpdateMetadata and DeleteMetadata fail for
	// the given relative paths.
	FailPaths map[string]error
	// Extras records the extra attributes passed to Register, by path.
	Extras map[string]map[string]string
}

// NewFakeAdapter creates an adapter for target rooted at base that accepts
// every path and extension.
func NewFakeAdapter(target filesync.Target, base string) *FakeAdapter {
	return &FakeAdapter{
		target:    target,
		base:      base,
		rows:      make(map[int64]*filesync.RegisteredMetadata),
		FailPaths: make(map[string]error),
		Extras:    make(map[string]map[string]string),
	}
}

// WithExtensions sets AllowedExtensions.
func (a *FakeAdapter) WithExtensions(exts ...string) *FakeAdapter {
	a.extensions = exts
	return a
}

// WithExcluded sets ExcludedDirectories.
func (a *FakeAdapter) WithExcluded(dirs ...string) *FakeAdapter {
	a.excluded = dirs
	return a
}

// WithValidPath sets the IsValidSyncPath predicate.
func (a *FakeAdapter) WithValidPath(fn func(string) bool) *FakeAdapter {
	a.validPath = fn
	return a
}

// Seed stores a metadata row directly and returns its id.
func (a *FakeAdapter) Seed(relativePath string, size int64, checksum string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	a.rows[a.nextID] = &filesync.RegisteredMetadata{
		ID:           a.nextID,
		Target:       a.target,
		RelativePath: relativePath,
		FileName:     path.Base(relativePath),
		Size:         size,
		Checksum:     checksum,
	}
	return a.nextID
}

// Rows returns a snapshot of stored metadata ordered by path.
func (a *FakeAdapter) Rows() []filesync.RegisteredMetadata {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]filesync.RegisteredMetadata, 0, len(a.rows))
	for _, r := range a.rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out
}

func (a *FakeAdapter) Target() filesync.Target       { return a.target }
func (a *FakeAdapter) BaseScanPath() string          { return a.base }
func (a *FakeAdapter) AllowedExtensions() []string   { return a.extensions }
func (a *FakeAdapter) ExcludedDirectories() []string { return a.excluded }

func (a *FakeAdapter) IsValidSyncPath(relativePath string) bool {
	if a.validPath == nil {
		return true
	}
	return a.validPath(relativePath)
}

func (a *FakeAdapter) ListRegistered(_ context.Context, subPath string) ([]*filesync.RegisteredMetadata, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ListErr != nil {
		return nil, a.ListErr
	}
	var out []*filesync.RegisteredMetadata
	for _, r := range a.rows {
		if subPath == "" || r.RelativePath == subPath || strings.HasPrefix(r.RelativePath, subPath+"/") {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out, nil
}

func (a *FakeAdapter) Register(_ context.Context, fp *filesync.Fingerprint, extra map[string]string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.FailPaths[fp.RelativePath]; err != nil {
		return 0, err
	}
	for _, r := range a.rows {
		if r.RelativePath == fp.RelativePath {
			return 0, fmt.Errorf("path %s already registered", fp.RelativePath)
		}
	}
	a.nextID++
	a.rows[a.nextID] = &filesync.RegisteredMetadata{
		ID:           a.nextID,
		Target:       a.target,
		RelativePath: fp.RelativePath,
		FileName:     fp.FileName,
		Size:         fp.Size,
		Checksum:     fp.Checksum,
		Attributes:   extra,
	}
	a.Extras[fp.RelativePath] = extra
	return a.nextID, nil
}

func (a *FakeAdapter) UpdateMetadata(_ context.Context, id int64, fp *filesync.Fingerprint) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.rows[id]
	if !ok {
		return fmt.Errorf("metadata %d: %w", id, filesync.ErrNotFound)
	}
	if err := a.FailPaths[r.RelativePath]; err != nil {
		return err
	}
	r.Size = fp.Size
	r.Checksum = fp.Checksum
	return nil
}

func (a *FakeAdapter) DeleteMetadata(_ context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.rows[id]
	if !ok {
		return fmt.Errorf("metadata %d: %w", id, filesync.ErrNotFound)
	}
	if err := a.FailPaths[r.RelativePath]; err != nil {
		return err
	}
	delete(a.rows, id)
	return nil
}

var _ filesync.SyncAdapter = (*FakeAdapter)(nil)

// MemoryIgnoreStore is an in-memory IgnoreStore. Setting Err makes every call fail.
type MemoryIgnoreStore struct {
	mu      sync.Mutex
	entries map[string]*filesync.IgnoreEntry
	Err     error
}

func NewMemoryIgnoreStore() *MemoryIgnoreStore {
	return &MemoryIgnoreStore{entries: make(map[string]*filesync.IgnoreEntry)}
}

func ignoreKey(t filesync.Target, p string) string { return string(t) + "\x00" + p }

func (s *MemoryIgnoreStore) ListIgnoreEntries(_ context.Context, target filesync.Target) ([]*filesync.IgnoreEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []*filesync.IgnoreEntry
	for _, e := range s.entries {
		if target == "" || e.Target == target {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].RelativePath < out[j].RelativePath
	})
	return out, nil
}

func (s *MemoryIgnoreStore) PutIgnoreEntry(_ context.Context, entry *filesync.IgnoreEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	cp := *entry
	s.entries[ignoreKey(entry.Target, entry.RelativePath)] = &cp
	return nil
}

func (s *MemoryIgnoreStore) DeleteIgnoreEntry(_ context.Context, target filesync.Target, relativePath string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	k := ignoreKey(target, relativePath)
	_, ok := s.entries[k]
	delete(s.entries, k)
	return ok, nil
}

// Len returns the number of stored entries.
func (s *MemoryIgnoreStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ filesync.IgnoreStore = (*MemoryIgnoreStore)(nil)
