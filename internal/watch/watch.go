// Package watch re-runs analyze when files under the storage root change
// and on a fixed interval.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"filesync/internal/filesync"
	"filesync/internal/scanner"
)

// Trigger reasons passed to AnalyzeFunc.
const (
	ReasonStartup  = "startup"
	ReasonChange   = "change"
	ReasonInterval = "interval"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// AnalyzeFunc runs one analyze pass. Errors are logged and watching continues.
type AnalyzeFunc func(ctx context.Context, reason string) error

// Options configures a Watcher.
type Options struct {
	// Interval re-runs analyze periodically. Zero disables the timer.
	Interval time.Duration
	// Debounce is the quiet period after the last filesystem event.
	Debounce time.Duration
	// Ignore holds glob patterns whose events never trigger a run.
	Ignore []string
	// SkipStartup suppresses the initial run when Run starts.
	SkipStartup bool
}

// Watcher watches a directory tree with fsnotify.
type Watcher struct {
	root    string
	opts    Options
	analyze AnalyzeFunc
	matcher *scanner.IgnoreMatcher
	logger  filesync.Logger
}

func New(root string, opts Options, analyze AnalyzeFunc, logger filesync.Logger) (*Watcher, error) {
	if analyze == nil {
		return nil, errors.New("watch requires an analyze function")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Watcher{
		root:    abs,
		opts:    opts,
		analyze: analyze,
		matcher: scanner.NewIgnoreMatcher(opts.Ignore),
		logger:  logger,
	}, nil
}

// Run blocks until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", w.root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.root); err != nil {
		return err
	}

	deb := newDebouncer(w.opts.Debounce)
	defer deb.Stop()

	var tick <-chan time.Time
	if w.opts.Interval > 0 {
		ticker := time.NewTicker(w.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.logger.Info("watch started", "root", w.root, "interval", w.opts.Interval, "debounce", w.opts.Debounce)
	if !w.opts.SkipStartup {
		w.run(ctx, ReasonStartup)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped", "root", w.root)
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(fsw, ev) {
				deb.Trigger()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case n := <-deb.C():
			w.logger.Debug("filesystem changes settled", "events", n)
			w.run(ctx, ReasonChange)
		case <-tick:
			w.run(ctx, ReasonInterval)
		}
	}
}

func (w *Watcher) run(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := w.analyze(ctx, reason); err != nil {
		w.logger.Error("analyze failed", "reason", reason, "error", err)
		return
	}
	w.logger.Debug("analyze finished", "reason", reason, "elapsed", time.Since(start))
}

// handleEvent reports whether ev should trigger a run. New directories are
// added to the watch list.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	if w.matcher.Match(filepath.ToSlash(rel)) {
		return false
	}
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fsw, ev.Name); err != nil {
				w.logger.Warn("watching new directory", "path", ev.Name, "error", err)
			}
		}
	}
	return true
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping unreadable directory", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root {
			rel, _ := filepath.Rel(w.root, p)
			if w.matcher.Match(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
		}
		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}
