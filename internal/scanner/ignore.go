package scanner

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// IgnoreFileName is the per-domain ignore file read from each domain root.
const IgnoreFileName = ".syncignore"

// defaultIgnorePatterns are always applied regardless of config or ignore files.
var defaultIgnorePatterns = []string{IgnoreFileName}

type ignorePattern struct {
	pattern   string
	matchPath bool // match against the relative path instead of the basename
}

// IgnoreMatcher checks paths against glob patterns.
// Patterns without '/' match the basename only; patterns with '/' match
// the slash-separated path relative to the domain root.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher parses raw patterns. Blank lines and '#' comments are skipped.
// Invalid globs are dropped here so Match never sees them.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if _, err := path.Match(raw, ""); err != nil {
			continue
		}
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// With returns a matcher holding m's patterns followed by extra.
func (m *IgnoreMatcher) With(extra []string) *IgnoreMatcher {
	merged := NewIgnoreMatcher(extra)
	merged.patterns = append(append([]ignorePattern{}, m.patterns...), merged.patterns...)
	return merged
}

// Match reports whether relativePath should be skipped.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if len(m.patterns) == 0 {
		return false
	}

	normalized := filepath.ToSlash(relativePath)
	basename := path.Base(normalized)

	for _, p := range m.patterns {
		target := basename
		if p.matchPath {
			target = normalized
		}
		if matched, _ := path.Match(p.pattern, target); matched {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads ignore patterns from name on fsys.
// A missing file yields no patterns and no error.
func ParseIgnoreFile(fsys afero.Fs, name string) ([]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		patterns = append(patterns, s.Text())
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
