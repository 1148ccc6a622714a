package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"

	"filesync/internal/adapters"
	"filesync/internal/catalog"
	"filesync/internal/config"
	"filesync/internal/database"
	"filesync/internal/filesync"
	"filesync/internal/model"
	"filesync/internal/scanner"
	"filesync/internal/watch"
)

// Options adjusts how the app is wired. The zero value is what the CLI uses.
type Options struct {
	// StderrLevel is the minimum level echoed to stderr. Defaults to INFO.
	StderrLevel slog.Level
}

// FileSyncApp is the application layer between the CLI and the sync engine.
// It constructs all dependencies from config, exposes high-level operations,
// and manages the store lifecycles on Close.
type FileSyncApp struct {
	cfg      *config.Config
	db       *database.SQLiteDatabase
	catalog  *catalog.GormCatalog
	registry *filesync.Registry
	engine   *filesync.Engine
	executor *filesync.Executor
	lock     *applyLock
	logger   filesync.Logger
	clock    filesync.Clock
	op       *SyncOperation
	logFile  *os.File
}

// NewFileSyncApp creates a fully wired FileSyncApp from the given config.
// operation identifies the CLI command being run (e.g. "Analyze", "Apply").
// The caller must call Close when done.
func NewFileSyncApp(cfg *config.Config, operation string, opts Options) (*FileSyncApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	clock := filesync.RealClock{}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID, clock)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run 'filesync db migrate'): %w", err)
	}

	cat, err := catalog.NewCatalogFromConfig(cfg.Catalog, clock)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog: %w", err)
	}

	registry, err := filesync.NewRegistry(
		adapters.NewReleaseAdapter(db),
		adapters.NewBackupAdapter(db),
		adapters.NewResourceAdapter(cat),
	)
	if err != nil {
		cat.Close()
		db.Close()
		return nil, fmt.Errorf("registering adapters: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	sl, logFile, err := newLogger(cfg.LogDir, opID, opts.StderrLevel)
	if err != nil {
		cat.Close()
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	osfs := afero.NewOsFs()
	sc := scanner.NewChecksumScanner(osfs, cfg.Filesystem.Ignore, cfg.Sync.ScanWorkers, logger)
	engine := filesync.NewEngine(registry, sc, db, cfg.StorageRoot, logger, clock, filesync.UUIDGenerator{})
	executor := filesync.NewExecutor(registry, db, osfs, cfg.StorageRoot, filesync.ExecutorOptions{
		AllowFileDeletion: cfg.Sync.AllowFileDeletion,
		Workers:           cfg.Sync.Workers,
	}, logger, clock)

	return &FileSyncApp{
		cfg:      cfg,
		db:       db,
		catalog:  cat,
		registry: registry,
		engine:   engine,
		executor: executor,
		lock:     newApplyLock(cfg.BaseDir),
		logger:   logger,
		clock:    clock,
		op:       NewSyncOperation(operation, ""),
		logFile:  logFile,
	}, nil
}

// MigrateDatabase opens the configured database and applies pending migrations.
func MigrateDatabase(cfg *config.Config) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID, filesync.RealClock{})
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// persistOperation saves the sync operation to the database, giving it an auto-increment ID.
// This should only be called for mutating commands.
func (a *FileSyncApp) persistOperation(ctx context.Context, parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	dbOp, err := a.db.CreateSyncOperation(ctx, a.op.Operation, parameters)
	if err != nil {
		return fmt.Errorf("persisting sync operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// Targets returns the registered targets.
func (a *FileSyncApp) Targets() []filesync.Target {
	return a.registry.Targets()
}

// ParseTargets converts raw CLI names to targets. With no names, the
// targets from the sync config are used; an empty result means all targets.
func (a *FileSyncApp) ParseTargets(raw []string) ([]filesync.Target, error) {
	if len(raw) == 0 {
		raw = a.cfg.Sync.Targets
	}
	var out []filesync.Target
	for _, r := range raw {
		t, err := filesync.ParseTarget(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Analyze reconciles targets below basePath and returns the report.
func (a *FileSyncApp) Analyze(ctx context.Context, targets []string, basePath string) (*filesync.AnalyzeReport, error) {
	resolved, err := a.ParseTargets(targets)
	if err != nil {
		return nil, err
	}
	return a.engine.Analyze(ctx, resolved, basePath)
}

// Apply runs items against report under the apply lock and records the
// operation and every item outcome in history.
func (a *FileSyncApp) Apply(ctx context.Context, report *filesync.AnalyzeReport, items []filesync.ActionItem, actor string) (*filesync.ApplyReport, error) {
	if err := a.lock.TryLock(); err != nil {
		return nil, err
	}
	defer a.lock.Unlock()

	if report == nil {
		return nil, fmt.Errorf("apply requires an analyze report")
	}
	if err := a.persistOperation(ctx, fmt.Sprintf("report=%s items=%d", report.ID, len(items))); err != nil {
		return nil, err
	}

	out, err := a.executor.Apply(ctx, report, items, actor)
	if err != nil {
		a.op.Record(0, err)
		return nil, err
	}
	a.op.Record(out.Summary.Failed, nil)

	if actor == "" {
		actor = filesync.SystemActor
	}
	now := a.clock.Now()
	entries := make([]*model.ActionLogEntry, 0, len(out.Results))
	for _, r := range out.Results {
		entries = append(entries, &model.ActionLogEntry{
			OperationID:   a.op.ID,
			DiscrepancyID: r.DiscrepancyID,
			Target:        string(r.Target),
			RelativePath:  r.RelativePath,
			Action:        string(r.Action),
			Success:       r.Success,
			Message:       r.Message,
			Actor:         actor,
			CreatedAt:     now,
		})
	}
	if err := a.db.RecordActions(ctx, entries); err != nil {
		// The actions already ran; only the audit trail is lost.
		a.logger.Error("recording action log", "operation", a.op.ID, "error", err)
	}
	return out, nil
}

// ListIgnores returns ignore entries for target, or all when target is empty.
func (a *FileSyncApp) ListIgnores(ctx context.Context, target string) ([]*filesync.IgnoreEntry, error) {
	var t filesync.Target
	if strings.TrimSpace(target) != "" {
		parsed, err := filesync.ParseTarget(target)
		if err != nil {
			return nil, err
		}
		if a.registry.Get(parsed) == nil {
			return nil, fmt.Errorf("%w: %s", filesync.ErrUnknownTarget, parsed)
		}
		t = parsed
	}
	return a.db.ListIgnoreEntries(ctx, t)
}

// RemoveIgnore deletes the ignore entry for target and path. It reports
// whether an entry existed.
func (a *FileSyncApp) RemoveIgnore(ctx context.Context, target, relativePath string) (bool, error) {
	t, err := filesync.ParseTarget(target)
	if err != nil {
		return false, err
	}
	if a.registry.Get(t) == nil {
		return false, fmt.Errorf("%w: %s", filesync.ErrUnknownTarget, t)
	}
	if err := a.persistOperation(ctx, fmt.Sprintf("target=%s path=%s", t, relativePath)); err != nil {
		return false, err
	}
	removed, err := a.db.DeleteIgnoreEntry(ctx, t, relativePath)
	a.op.Record(0, err)
	if err != nil {
		return false, err
	}
	a.logger.Info("ignore entry removed", "target", t, "path", relativePath, "existed", removed)
	return removed, nil
}

// History returns the most recent sync operations.
func (a *FileSyncApp) History(ctx context.Context, limit int) ([]*model.SyncOperation, error) {
	return a.db.ListSyncOperations(ctx, limit)
}

// ActionLog returns the recorded item outcomes of one operation.
func (a *FileSyncApp) ActionLog(ctx context.Context, operationID int64) ([]*model.ActionLogEntry, error) {
	return a.db.ListActionLog(ctx, operationID)
}

// BackupDatabase writes a consistent snapshot of the metadata database to dest.
func (a *FileSyncApp) BackupDatabase(dest string) error {
	return a.db.BackupTo(dest)
}

// WatchOptions configures Watch.
type WatchOptions struct {
	Targets    []string
	BasePath   string
	Interval   time.Duration
	Debounce   time.Duration
	ReportPath string // when set, each report is saved here
}

// Watch re-runs analyze on changes under the storage root and on a timer
// until ctx is cancelled.
func (a *FileSyncApp) Watch(ctx context.Context, opts WatchOptions) error {
	run := func(ctx context.Context, reason string) error {
		report, err := a.Analyze(ctx, opts.Targets, opts.BasePath)
		if err != nil {
			return err
		}
		a.logger.Info("watch analyze",
			"reason", reason,
			"report", report.ID,
			"discrepancies", report.Summary.Discrepancies,
			"ignored", report.Summary.Ignored,
			"warnings", report.Summary.Warnings,
			"target_errors", len(report.TargetErrors))
		if opts.ReportPath != "" {
			return SaveReport(opts.ReportPath, report)
		}
		return nil
	}

	w, err := watch.New(a.cfg.StorageRoot, watch.Options{
		Interval: opts.Interval,
		Debounce: opts.Debounce,
		Ignore:   a.cfg.Filesystem.Ignore,
	}, run, a.logger)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// Close finalizes the operation and closes all resources.
func (a *FileSyncApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishSyncOperation(context.Background(), a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing sync operation: %w", err)
		}
	}

	if err := a.catalog.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing catalog: %w", err)
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
