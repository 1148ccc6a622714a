package filesync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// ExecutorOptions tunes an Executor.
type ExecutorOptions struct {
	// AllowFileDeletion enables DELETE_FILE.
	AllowFileDeletion bool
	// Workers bounds concurrently applied items. Zero means runtime.NumCPU().
	Workers int
}

// Executor applies caller-chosen actions to the discrepancies of one report.
type Executor struct {
	registry    *Registry
	ignores     IgnoreStore
	fs          afero.Fs
	storageRoot string
	opts        ExecutorOptions
	logger      Logger
	clock       Clock
}

func NewExecutor(registry *Registry, ignores IgnoreStore, fsys afero.Fs, storageRoot string, opts ExecutorOptions, logger Logger, clock Clock) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Executor{
		registry:    registry,
		ignores:     ignores,
		fs:          fsys,
		storageRoot: storageRoot,
		opts:        opts,
		logger:      logger,
		clock:       clock,
	}
}

// Apply runs items against report. Structural problems with the batch are
// returned as an error before anything is touched; everything else becomes a
// failed ActionResult and the rest of the batch still runs. Nothing is
// rolled back.
func (x *Executor) Apply(ctx context.Context, report *AnalyzeReport, items []ActionItem, actor string) (*ApplyReport, error) {
	if report == nil {
		return nil, errors.New("apply requires an analyze report")
	}
	if actor == "" {
		actor = SystemActor
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.DiscrepancyID] {
			return nil, fmt.Errorf("%w: discrepancy %s appears more than once", ErrDuplicateInstruction, item.DiscrepancyID)
		}
		seen[item.DiscrepancyID] = true

		if d := report.Find(item.DiscrepancyID); d != nil && x.registry.Get(d.Target) == nil {
			return nil, fmt.Errorf("%w: %s (discrepancy %s)", ErrUnknownTarget, d.Target, d.ID)
		}
	}

	x.logger.Info("apply started", "report", report.ID, "items", len(items), "actor", actor)

	results := make([]ActionResult, len(items))
	g := new(errgroup.Group)
	g.SetLimit(x.opts.Workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i] = x.applyOne(ctx, report.Find(item.DiscrepancyID), item, actor)
			return nil
		})
	}
	_ = g.Wait()

	out := &ApplyReport{Results: results}
	out.Summary.Total = len(results)
	for _, r := range results {
		if r.Success {
			out.Summary.Success++
		} else {
			out.Summary.Failed++
		}
	}

	x.logger.Info("apply complete", "report", report.ID, "success", out.Summary.Success, "failed", out.Summary.Failed)
	return out, nil
}

func (x *Executor) applyOne(ctx context.Context, d *Discrepancy, item ActionItem, actor string) ActionResult {
	result := ActionResult{DiscrepancyID: item.DiscrepancyID, Action: item.Action}
	fail := func(err error) ActionResult {
		result.Err = err
		result.Message = err.Error()
		x.logger.Warn("action failed", "discrepancy", item.DiscrepancyID, "action", item.Action, "error", err)
		return result
	}

	if d == nil {
		return fail(fmt.Errorf("%w: discrepancy %s is not in the report", ErrPreconditionFailed, item.DiscrepancyID))
	}
	result.Target = d.Target
	result.RelativePath = d.RelativePath

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("apply cancelled: %w", err))
	}
	if item.Action != ActionDeleteFile && !d.Allows(item.Action) {
		return fail(fmt.Errorf("%w: action %s is not available for a %s discrepancy", ErrPreconditionFailed, item.Action, d.Status))
	}

	adapter := x.registry.Get(d.Target)
	var (
		message string
		err     error
	)
	switch item.Action {
	case ActionRegister:
		message, err = x.register(ctx, adapter, d, item.Metadata, actor)
	case ActionDelete:
		message, err = x.deleteMetadata(ctx, adapter, d)
	case ActionUpdate:
		message, err = x.update(ctx, adapter, d)
	case ActionIgnore:
		message, err = x.ignore(ctx, d, actor)
	case ActionUnignore:
		message, err = x.unignore(ctx, d)
	case ActionDeleteFile:
		message, err = x.deleteFile(adapter, d, actor)
	default:
		err = fmt.Errorf("%w: unsupported action %q", ErrPreconditionFailed, item.Action)
	}
	if err != nil {
		return fail(err)
	}

	result.Success = true
	result.Message = message
	x.logger.Info("action applied", "target", d.Target, "path", d.RelativePath, "action", item.Action, "actor", actor)
	return result
}

func (x *Executor) register(ctx context.Context, adapter SyncAdapter, d *Discrepancy, metadata map[string]string, actor string) (string, error) {
	if d.Fingerprint == nil {
		return "", fmt.Errorf("%w: %s has no fingerprint to register", ErrPreconditionFailed, d.RelativePath)
	}
	if err := x.requireOnDisk(adapter, d); err != nil {
		return "", err
	}
	extra := make(map[string]string, len(metadata)+1)
	maps.Copy(extra, metadata)
	extra[AttrCreatedBy] = actor

	id, err := adapter.Register(ctx, d.Fingerprint, extra)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAdapterOperation, err)
	}
	return fmt.Sprintf("registered with id %d", id), nil
}

func (x *Executor) deleteMetadata(ctx context.Context, adapter SyncAdapter, d *Discrepancy) (string, error) {
	if d.Metadata == nil {
		return "", fmt.Errorf("%w: %s has no metadata to delete", ErrPreconditionFailed, d.RelativePath)
	}
	if err := adapter.DeleteMetadata(ctx, d.Metadata.ID); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAdapterOperation, err)
	}
	return fmt.Sprintf("deleted metadata %d", d.Metadata.ID), nil
}

func (x *Executor) update(ctx context.Context, adapter SyncAdapter, d *Discrepancy) (string, error) {
	if d.Metadata == nil || d.Fingerprint == nil {
		return "", fmt.Errorf("%w: %s needs both metadata and a fingerprint to update", ErrPreconditionFailed, d.RelativePath)
	}
	if err := x.requireOnDisk(adapter, d); err != nil {
		return "", err
	}
	if err := adapter.UpdateMetadata(ctx, d.Metadata.ID, d.Fingerprint); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAdapterOperation, err)
	}
	return fmt.Sprintf("updated metadata %d", d.Metadata.ID), nil
}

func (x *Executor) ignore(ctx context.Context, d *Discrepancy, actor string) (string, error) {
	status := d.Status
	if status == StatusIgnored {
		// Re-ignoring refreshes the entry but keeps what was acknowledged.
		status = d.IgnoredStatus
		if status == "" && (d.Fingerprint != nil || d.Metadata != nil) {
			status, _ = compare(d.Fingerprint, d.Metadata)
		}
	}
	entry := &IgnoreEntry{
		Target:       d.Target,
		RelativePath: d.RelativePath,
		Status:       status,
		IgnoredBy:    actor,
		CreatedAt:    x.clock.Now(),
	}
	if err := x.ignores.PutIgnoreEntry(ctx, entry); err != nil {
		return "", fmt.Errorf("%w: saving ignore entry: %w", ErrAdapterOperation, err)
	}
	return "ignored", nil
}

func (x *Executor) unignore(ctx context.Context, d *Discrepancy) (string, error) {
	existed, err := x.ignores.DeleteIgnoreEntry(ctx, d.Target, d.RelativePath)
	if err != nil {
		return "", fmt.Errorf("%w: removing ignore entry: %w", ErrAdapterOperation, err)
	}
	if !existed {
		return "no ignore entry to remove", nil
	}
	return "unignored", nil
}

func (x *Executor) deleteFile(adapter SyncAdapter, d *Discrepancy, actor string) (string, error) {
	if !x.opts.AllowFileDeletion {
		return "", ErrFileDeletionDisabled
	}
	if d.Fingerprint == nil {
		return "", fmt.Errorf("%w: %s has no file on disk", ErrPreconditionFailed, d.RelativePath)
	}

	full := x.fullPath(adapter, d)
	if err := x.fs.Remove(full); err != nil {
		return "", fmt.Errorf("%w: removing %s: %w", ErrAdapterOperation, full, err)
	}
	x.logger.Warn("file deleted", "actor", actor, "target", d.Target, "path", d.RelativePath)
	return "file deleted", nil
}

func (x *Executor) fullPath(adapter SyncAdapter, d *Discrepancy) string {
	return filepath.Join(x.storageRoot, adapter.BaseScanPath(), filepath.FromSlash(d.RelativePath))
}

// requireOnDisk fails when the file a report fingerprinted has since gone.
func (x *Executor) requireOnDisk(adapter SyncAdapter, d *Discrepancy) error {
	if _, err := x.fs.Stat(x.fullPath(adapter, d)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s no longer exists on disk", ErrPreconditionFailed, d.RelativePath)
		}
		return fmt.Errorf("%w: checking %s: %w", ErrPreconditionFailed, d.RelativePath, err)
	}
	return nil
}
