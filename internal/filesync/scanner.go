package filesync

import "context"

// ScanRequest describes one domain tree to fingerprint.
type ScanRequest struct {
	// Root is the absolute domain root. Its ignore file applies to every scan
	// and emitted paths are relative to it.
	Root string
	// Prefix narrows the walk to a slash-separated sub-path of Root.
	Prefix              string
	AllowedExtensions   []string
	ExcludedDirectories []string
}

// ScanItem carries either a fingerprint or a warning, never both.
type ScanItem struct {
	Fingerprint *Fingerprint
	Warning     *ScanWarning
}

// Scanner enumerates and hashes files below a root.
// The returned channel is closed once the walk and all hashing finish.
type Scanner interface {
	Scan(ctx context.Context, req ScanRequest) <-chan ScanItem
}
