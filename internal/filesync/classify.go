package filesync

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// targetState is everything known about one target before classification.
type targetState struct {
	target     Target
	scanned    map[string]*Fingerprint
	registered map[string]*RegisteredMetadata
	ignored    map[string]*IgnoreEntry
	// validPath filters paths that exist only on disk. nil accepts all.
	validPath func(string) bool
}

type classification struct {
	rows    []*Discrepancy
	synced  int
	ignored int
}

// classify joins disk and metadata state by relative path. Rows come back
// sorted by path and without ids.
func classify(s targetState) classification {
	paths := make(map[string]struct{}, len(s.scanned)+len(s.registered))
	for p := range s.scanned {
		paths[p] = struct{}{}
	}
	for p := range s.registered {
		paths[p] = struct{}{}
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var out classification
	for _, p := range sorted {
		fp := s.scanned[p]
		md := s.registered[p]

		status, message := compare(fp, md)
		if status == StatusUnregistered && s.validPath != nil && !s.validPath(p) {
			continue
		}
		if entry, ok := s.ignored[p]; ok {
			out.ignored++
			row := newRow(s.target, p, fp, md, StatusIgnored,
				fmt.Sprintf("ignored by %s (was %s)", entry.IgnoredBy, entry.Status),
				ActionUnignore, ActionIgnore)
			row.IgnoredStatus = entry.Status
			out.rows = append(out.rows, row)
			continue
		}

		switch status {
		case StatusSynced:
			out.synced++
		case StatusUnregistered:
			out.rows = append(out.rows, newRow(s.target, p, fp, md, status, message, ActionRegister, ActionIgnore))
		case StatusMissing:
			out.rows = append(out.rows, newRow(s.target, p, fp, md, status, message, ActionDelete, ActionIgnore))
		case StatusModified:
			out.rows = append(out.rows, newRow(s.target, p, fp, md, status, message, ActionUpdate, ActionIgnore))
		}
	}
	return out
}

// compare returns the underlying status of a path, ignoring ignore entries.
func compare(fp *Fingerprint, md *RegisteredMetadata) (Status, string) {
	switch {
	case fp != nil && md == nil:
		return StatusUnregistered, "file exists on disk but has no metadata"
	case fp == nil && md != nil:
		return StatusMissing, "metadata exists but file is missing on disk"
	}

	sizeDiffers := fp.Size != md.Size
	checksumDiffers := !strings.EqualFold(fp.Checksum, md.Checksum)
	switch {
	case sizeDiffers && checksumDiffers:
		return StatusModified, fmt.Sprintf("size and checksum differ (registered %d bytes, on disk %d bytes)", md.Size, fp.Size)
	case sizeDiffers:
		return StatusModified, fmt.Sprintf("size differs (registered %d bytes, on disk %d bytes)", md.Size, fp.Size)
	case checksumDiffers:
		return StatusModified, "checksum differs"
	}
	return StatusSynced, ""
}

func newRow(t Target, relPath string, fp *Fingerprint, md *RegisteredMetadata, status Status, message string, actions ...Action) *Discrepancy {
	name := path.Base(relPath)
	switch {
	case fp != nil && fp.FileName != "":
		name = fp.FileName
	case md != nil && md.FileName != "":
		name = md.FileName
	}
	return &Discrepancy{
		Target:           t,
		RelativePath:     relPath,
		FileName:         name,
		Status:           status,
		Message:          message,
		Fingerprint:      fp,
		Metadata:         md,
		AvailableActions: actions,
	}
}

// normalizePath converts a stored or scanned path to the join key form.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}
