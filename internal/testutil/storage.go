package testutil

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

// WriteFile creates name (and its parents) on fsys with content.
func WriteFile(t *testing.T, fsys afero.Fs, name, content string) {
	t.Helper()
	if err := fsys.MkdirAll(filepath.Dir(name), 0755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(name), err)
	}
	if err := afero.WriteFile(fsys, name, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}
