package filesync

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Engine runs the analyze phase: scan, join against registered metadata and
// classify each path.
type Engine struct {
	registry    *Registry
	scanner     Scanner
	ignores     IgnoreStore
	storageRoot string
	logger      Logger
	clock       Clock
	idgen       IDGenerator
}

func NewEngine(registry *Registry, scanner Scanner, ignores IgnoreStore, storageRoot string, logger Logger, clock Clock, idgen IDGenerator) *Engine {
	return &Engine{
		registry:    registry,
		scanner:     scanner,
		ignores:     ignores,
		storageRoot: storageRoot,
		logger:      logger,
		clock:       clock,
		idgen:       idgen,
	}
}

// targetOutcome is written by exactly one goroutine, into its own slot.
type targetOutcome struct {
	result   classification
	scanned  int
	warnings []ScanWarning
	err      error
}

// Analyze reconciles the requested targets below basePath. An empty targets
// slice analyzes every registered target. Failures of one target's
// collaborators are reported in TargetErrors; only invalid input or
// cancellation fails the whole call.
func (e *Engine) Analyze(ctx context.Context, targets []Target, basePath string) (*AnalyzeReport, error) {
	resolved, err := e.registry.Resolve(targets)
	if err != nil {
		return nil, err
	}
	base, err := CleanBasePath(basePath)
	if err != nil {
		return nil, err
	}

	e.logger.Info("analyze started", "targets", len(resolved), "base_path", base)

	outcomes := make([]targetOutcome, len(resolved))
	g := new(errgroup.Group)
	for i, t := range resolved {
		i := i
		adapter := e.registry.Get(t)
		g.Go(func() error {
			outcomes[i] = e.analyzeTarget(ctx, adapter, base)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analyze cancelled: %w", err)
	}

	report := &AnalyzeReport{
		ID:                    e.idgen.New(),
		AnalyzedAt:            e.clock.Now(),
		BasePath:              base,
		Targets:               resolved,
		DiscrepanciesByTarget: make(map[Target]int, len(resolved)),
		Discrepancies:         []*Discrepancy{},
	}
	for i, t := range resolved {
		o := outcomes[i]
		if o.err != nil {
			e.logger.Error("target unavailable", "target", t, "error", o.err)
			report.TargetErrors = append(report.TargetErrors, TargetError{Target: t, Message: o.err.Error()})
			continue
		}

		report.Summary.TotalScanned += o.scanned
		report.Summary.Synced += o.result.synced
		report.Summary.Ignored += o.result.ignored
		report.Summary.Warnings += len(o.warnings)
		report.Warnings = append(report.Warnings, o.warnings...)

		open := 0
		for _, row := range o.result.rows {
			row.ID = e.idgen.New()
			if row.Status != StatusIgnored {
				open++
			}
			report.Discrepancies = append(report.Discrepancies, row)
		}
		report.DiscrepanciesByTarget[t] = open
		report.Summary.Discrepancies += open
	}

	e.logger.Info("analyze complete",
		"report", report.ID,
		"scanned", report.Summary.TotalScanned,
		"synced", report.Summary.Synced,
		"discrepancies", report.Summary.Discrepancies,
		"ignored", report.Summary.Ignored,
		"warnings", report.Summary.Warnings,
		"target_errors", len(report.TargetErrors))
	return report, nil
}

func (e *Engine) analyzeTarget(ctx context.Context, adapter SyncAdapter, base string) targetOutcome {
	t := adapter.Target()
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := e.scanner.Scan(scanCtx, ScanRequest{
		Root:                filepath.Join(e.storageRoot, adapter.BaseScanPath()),
		Prefix:              base,
		AllowedExtensions:   adapter.AllowedExtensions(),
		ExcludedDirectories: adapter.ExcludedDirectories(),
	})

	state, err := e.loadStoredState(ctx, adapter, base)
	if err != nil {
		cancel()
		for range items {
		}
		return targetOutcome{err: fmt.Errorf("%w: %s: %w", ErrTargetUnavailable, t, err)}
	}

	var out targetOutcome
	for item := range items {
		switch {
		case item.Warning != nil:
			w := *item.Warning
			w.Target = t
			e.logger.Warn("scan warning", "target", t, "path", w.Path, "message", w.Message)
			out.warnings = append(out.warnings, w)
		case item.Fingerprint != nil:
			out.scanned++
			fp := item.Fingerprint
			fp.RelativePath = normalizePath(fp.RelativePath)
			state.scanned[fp.RelativePath] = fp
		}
	}

	out.result = classify(state)
	e.logger.Debug("target analyzed", "target", t, "scanned", out.scanned, "rows", len(out.result.rows))
	return out
}

func (e *Engine) loadStoredState(ctx context.Context, adapter SyncAdapter, base string) (targetState, error) {
	t := adapter.Target()
	state := targetState{
		target:     t,
		scanned:    make(map[string]*Fingerprint),
		registered: make(map[string]*RegisteredMetadata),
		ignored:    make(map[string]*IgnoreEntry),
		validPath:  adapter.IsValidSyncPath,
	}

	registered, err := adapter.ListRegistered(ctx, base)
	if err != nil {
		return state, fmt.Errorf("listing registered metadata: %w", err)
	}
	for _, md := range registered {
		key := normalizePath(md.RelativePath)
		if !underBase(key, base) {
			continue
		}
		if md.Target == "" {
			md.Target = t
		}
		if _, dup := state.registered[key]; dup {
			e.logger.Warn("duplicate metadata for path", "target", t, "path", key, "id", md.ID)
			continue
		}
		state.registered[key] = md
	}

	entries, err := e.ignores.ListIgnoreEntries(ctx, t)
	if err != nil {
		return state, fmt.Errorf("listing ignore entries: %w", err)
	}
	for _, entry := range entries {
		state.ignored[normalizePath(entry.RelativePath)] = entry
	}
	return state, nil
}

// CleanBasePath normalizes an analyze sub-path. The result is "" for the
// whole domain, or a clean slash-separated relative path.
func CleanBasePath(basePath string) (string, error) {
	p := strings.ReplaceAll(strings.TrimSpace(basePath), "\\", "/")
	if p == "" || p == "." {
		return "", nil
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(basePath) {
		return "", fmt.Errorf("%w: %q must be relative", ErrInvalidBasePath, basePath)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q must not contain ..", ErrInvalidBasePath, basePath)
		}
	}
	p = path.Clean(p)
	if p == "." {
		return "", nil
	}
	return p, nil
}

func underBase(p, base string) bool {
	return base == "" || p == base || strings.HasPrefix(p, base+"/")
}
