package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"filesync/internal/filesync"
)

// ChecksumScanner walks a directory tree on an afero.Fs and fingerprints
// every accepted regular file with SHA-256.
type ChecksumScanner struct {
	fs      afero.Fs
	ignore  *IgnoreMatcher
	workers int
	logger  filesync.Logger
}

// NewChecksumScanner creates a scanner. ignorePatterns apply to every scan
// in addition to each root's ignore file. workers <= 0 means runtime.NumCPU().
func NewChecksumScanner(fsys afero.Fs, ignorePatterns []string, workers int, logger filesync.Logger) *ChecksumScanner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &ChecksumScanner{
		fs:      fsys,
		ignore:  NewIgnoreMatcher(append(append([]string{}, defaultIgnorePatterns...), ignorePatterns...)),
		workers: workers,
		logger:  logger,
	}
}

// Scan streams fingerprints and warnings for req.Root. The channel is closed
// once the walk and all hashing have finished or ctx is cancelled.
func (s *ChecksumScanner) Scan(ctx context.Context, req filesync.ScanRequest) <-chan filesync.ScanItem {
	out := make(chan filesync.ScanItem, s.workers)
	go func() {
		defer close(out)
		s.scan(ctx, req, out)
	}()
	return out
}

func (s *ChecksumScanner) scan(ctx context.Context, req filesync.ScanRequest, out chan<- filesync.ScanItem) {
	emit := func(item filesync.ScanItem) {
		select {
		case out <- item:
		case <-ctx.Done():
		}
	}
	warn := func(p, msg string) {
		emit(filesync.ScanItem{Warning: &filesync.ScanWarning{Path: p, Message: msg}})
	}

	domainRoot := filepath.Clean(req.Root)
	root := filepath.Join(domainRoot, filepath.FromSlash(req.Prefix))
	info, err := s.fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			warn(req.Prefix, "scan root does not exist")
		} else {
			warn(req.Prefix, fmt.Sprintf("stat scan root: %v", err))
		}
		return
	}
	if !info.IsDir() {
		warn(req.Prefix, "scan root is not a directory")
		return
	}

	matcher := s.ignore
	extra, err := ParseIgnoreFile(s.fs, filepath.Join(domainRoot, IgnoreFileName))
	if err != nil {
		warn(IgnoreFileName, err.Error())
	} else if len(extra) > 0 {
		matcher = s.ignore.With(extra)
	}

	excluded := make(map[string]bool, len(req.ExcludedDirectories))
	for _, d := range req.ExcludedDirectories {
		excluded[strings.ToLower(d)] = true
	}

	// A prefix below an excluded or ignored directory yields nothing, the
	// same as a walk from the domain root would.
	if req.Prefix != "" {
		segs := strings.Split(req.Prefix, "/")
		for i, seg := range segs {
			if excluded[strings.ToLower(seg)] || matcher.Match(strings.Join(segs[:i+1], "/")) {
				s.logger.Debug("scan prefix is excluded", "prefix", req.Prefix)
				return
			}
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(s.workers)

	walkErr := afero.Walk(s.fs, root, func(p string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return fmt.Errorf("relative path of %s: %w", p, relErr)
		}
		rel = filepath.ToSlash(rel)
		display := path.Join(req.Prefix, rel)

		if err != nil {
			warn(display, err.Error())
			return nil
		}
		if rel == "." {
			return nil
		}

		if info.IsDir() {
			if excluded[strings.ToLower(info.Name())] || matcher.Match(display) {
				s.logger.Debug("skipping directory", "path", display)
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || matcher.Match(display) || !hasAllowedExtension(info.Name(), req.AllowedExtensions) {
			return nil
		}

		g.Go(func() error {
			fp, err := s.fingerprint(p, display, info)
			if err != nil {
				warn(display, err.Error())
				return nil
			}
			emit(filesync.ScanItem{Fingerprint: fp})
			return nil
		})
		return nil
	})
	_ = g.Wait()

	if walkErr != nil && !errors.Is(walkErr, context.Canceled) && !errors.Is(walkErr, context.DeadlineExceeded) {
		warn(req.Prefix, fmt.Sprintf("walking directory: %v", walkErr))
	}
}

func (s *ChecksumScanner) fingerprint(fullPath, relPath string, info os.FileInfo) (*filesync.Fingerprint, error) {
	f, err := s.fs.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hashing file: %w", err)
	}

	return &filesync.Fingerprint{
		RelativePath: relPath,
		FileName:     info.Name(),
		Size:         info.Size(),
		Checksum:     hex.EncodeToString(h.Sum(nil)),
		ModifiedAt:   info.ModTime().UTC(),
	}, nil
}

// hasAllowedExtension does a case-insensitive suffix match so that
// multi-part extensions such as ".tar.gz" work. An empty list allows all.
func hasAllowedExtension(name string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range allowed {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

var _ filesync.Scanner = (*ChecksumScanner)(nil)
