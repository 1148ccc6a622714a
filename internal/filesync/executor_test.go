package filesync_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"filesync/internal/filesync"
	"filesync/internal/testutil"
)

func apply(t *testing.T, f *fixture, report *filesync.AnalyzeReport, items ...filesync.ActionItem) *filesync.ApplyReport {
	t.Helper()
	out, err := f.executor.Apply(context.Background(), report, items, "tester")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	return out
}

func TestExecutor_Register(t *testing.T) {
	release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
	f := newFixture(t, filesync.ExecutorOptions{}, release)
	f.write(t, "release/p/new.sql", "new")

	report := f.analyze(t)
	d := findPath(report, "p/new.sql")
	out := apply(t, f, report, filesync.ActionItem{
		DiscrepancyID: d.ID,
		Action:        filesync.ActionRegister,
		Metadata:      map[string]string{"description": "fresh"},
	})

	r := out.Results[0]
	if !r.Success {
		t.Fatalf("result = %+v, want success", r)
	}
	if !strings.Contains(r.Message, "registered with id") {
		t.Errorf("Message = %q", r.Message)
	}
	extra := release.Extras["p/new.sql"]
	if extra[filesync.AttrCreatedBy] != "tester" || extra["description"] != "fresh" {
		t.Errorf("extras = %v", extra)
	}

	again := f.analyze(t)
	if len(again.Discrepancies) != 0 || again.Summary.Synced != 1 {
		t.Errorf("after register: %+v", again.Summary)
	}
}

func TestExecutor_RegisterDefaultsToSystemActor(t *testing.T) {
	release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
	f := newFixture(t, filesync.ExecutorOptions{}, release)
	f.write(t, "release/p/new.sql", "new")

	report := f.analyze(t)
	d := findPath(report, "p/new.sql")
	if _, err := f.executor.Apply(context.Background(), report, []filesync.ActionItem{{DiscrepancyID: d.ID, Action: filesync.ActionRegister}}, ""); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := release.Extras["p/new.sql"][filesync.AttrCreatedBy]; got != filesync.SystemActor {
		t.Errorf("createdBy = %q, want %q", got, filesync.SystemActor)
	}
}

func TestExecutor_DeleteAndUpdate(t *testing.T) {
	release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
	f := newFixture(t, filesync.ExecutorOptions{}, release)
	f.write(t, "release/p/changed.sql", "after")
	release.Seed("p/changed.sql", 6, testutil.SHA256Hex([]byte("before")))
	release.Seed("p/gone.sql", 1, "00")

	report := f.analyze(t)
	out := apply(t, f, report,
		filesync.ActionItem{DiscrepancyID: findPath(report, "p/changed.sql").ID, Action: filesync.ActionUpdate},
		filesync.ActionItem{DiscrepancyID: findPath(report, "p/gone.sql").ID, Action: filesync.ActionDelete},
	)
	if out.Summary != (filesync.ApplySummary{Total: 2, Success: 2}) {
		t.Fatalf("Summary = %+v, results = %+v", out.Summary, out.Results)
	}

	rows := release.Rows()
	if len(rows) != 1 || rows[0].Checksum != testutil.SHA256Hex([]byte("after")) || rows[0].Size != 5 {
		t.Errorf("rows = %+v", rows)
	}
	if again := f.analyze(t); len(again.Discrepancies) != 0 {
		t.Errorf("after apply: %d discrepancies", len(again.Discrepancies))
	}
}

func TestExecutor_IgnoreRoundTrip(t *testing.T) {
	release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
	f := newFixture(t, filesync.ExecutorOptions{}, release)
	f.write(t, "release/p/new.sql", "new")

	report := f.analyze(t)
	out := apply(t, f, report, filesync.ActionItem{DiscrepancyID: findPath(report, "p/new.sql").ID, Action: filesync.ActionIgnore})
	if !out.Results[0].Success {
		t.Fatalf("IGNORE result = %+v", out.Results[0])
	}

	ignored := f.analyze(t)
	d := findPath(ignored, "p/new.sql")
	if d == nil || d.Status != filesync.StatusIgnored {
		t.Fatalf("after IGNORE: %+v, want IGNORED", d)
	}
	if !sameActions(d.AvailableActions, filesync.ActionUnignore, filesync.ActionIgnore) {
		t.Errorf("IGNORED actions = %v", d.AvailableActions)
	}
	if ignored.Summary.Ignored != 1 || ignored.Summary.Discrepancies != 0 {
		t.Errorf("Summary = %+v", ignored.Summary)
	}

	entries, _ := f.ignores.ListIgnoreEntries(context.Background(), filesync.TargetReleaseFile)
	if len(entries) != 1 || entries[0].IgnoredBy != "tester" || entries[0].Status != filesync.StatusUnregistered {
		t.Errorf("entries = %+v", entries)
	}

	out = apply(t, f, ignored, filesync.ActionItem{DiscrepancyID: d.ID, Action: filesync.ActionUnignore})
	if !out.Results[0].Success {
		t.Fatalf("UNIGNORE result = %+v", out.Results[0])
	}

	reverted := f.analyze(t)
	if d := findPath(reverted, "p/new.sql"); d == nil || d.Status != filesync.StatusUnregistered {
		t.Errorf("after UNIGNORE: %+v, want UNREGISTERED", d)
	}
}

func TestExecutor_IgnoreIsIdempotent(t *testing.T) {
	release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
	f := newFixture(t, filesync.ExecutorOptions{}, release)
	release.Seed("p/gone.sql", 1, "00")

	report := f.analyze(t)
	id := findPath(report, "p/gone.sql").ID
	apply(t, f, report, filesync.ActionItem{DiscrepancyID: id, Action: filesync.ActionIgnore})
	f.clock.Advance(time.Hour)
	apply(t, f, report, filesync.ActionItem{DiscrepancyID: id, Action: filesync.ActionIgnore})

	if f.ignores.Len() != 1 {
		t.Fatalf("ignore entries = %d, want 1", f.ignores.Len())
	}
	entries, _ := f.ignores.ListIgnoreEntries(context.Background(), "")
	if !entries[0].CreatedAt.Equal(f.clock.Now()) {
		t.Errorf("CreatedAt = %v, want refreshed %v", entries[0].CreatedAt, f.clock.Now())
	}
}

func TestExecutor_ReignoreKeepsRecordedStatus(t *testing.T) {
	release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
	f := newFixture(t, filesync.ExecutorOptions{}, release)
	f.write(t, "release/p/a.sql", "a")

	first := f.analyze(t)
	apply(t, f, first, filesync.ActionItem{DiscrepancyID: findPath(first, "p/a.sql").ID, Action: filesync.ActionIgnore})
	f.clock.Advance(time.Hour)

	fresh := f.analyze(t)
	d := findPath(fresh, "p/a.sql")
	if d == nil || d.Status != filesync.StatusIgnored || d.IgnoredStatus != filesync.StatusUnregistered {
		t.Fatalf("row = %+v, want IGNORED over UNREGISTERED", d)
	}
	out, err := f.executor.Apply(context.Background(), fresh, []filesync.ActionItem{{DiscrepancyID: d.ID, Action: filesync.ActionIgnore}}, "second")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !out.Results[0].Success {
		t.Fatalf("re-IGNORE result = %+v", out.Results[0])
	}

	entries, _ := f.ignores.ListIgnoreEntries(context.Background(), filesync.TargetReleaseFile)
	if len(entries) != 1 {
		t.Fatalf("entries = %+v, want 1", entries)
	}
	e := entries[0]
	if e.Status != filesync.StatusUnregistered {
		t.Errorf("Status = %s, want UNREGISTERED", e.Status)
	}
	if e.IgnoredBy != "second" || !e.CreatedAt.Equal(f.clock.Now()) {
		t.Errorf("entry = %+v, want refreshed by second at %v", e, f.clock.Now())
	}
}

func TestExecutor_RequiresFileStillOnDisk(t *testing.T) {
	tests := []struct {
		name   string
		seed   bool
		action filesync.Action
	}{
		{"register", false, filesync.ActionRegister},
		{"update", true, filesync.ActionUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
			f := newFixture(t, filesync.ExecutorOptions{}, release)
			f.write(t, "release/p/a.sql", "a")
			if tt.seed {
				release.Seed("p/a.sql", 9, "00")
			}

			report := f.analyze(t)
			d := findPath(report, "p/a.sql")
			if err := f.fs.Remove(storageRoot + "/release/p/a.sql"); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}

			out := apply(t, f, report, filesync.ActionItem{DiscrepancyID: d.ID, Action: tt.action})
			r := out.Results[0]
			if r.Success || !errors.Is(r.Err, filesync.ErrPreconditionFailed) {
				t.Fatalf("result = %+v, want ErrPreconditionFailed", r)
			}
			rows := release.Rows()
			if tt.seed && (len(rows) != 1 || rows[0].Checksum != "00") {
				t.Errorf("rows = %+v, want seeded row untouched", rows)
			}
			if !tt.seed && len(rows) != 0 {
				t.Errorf("rows = %+v, want none", rows)
			}
		})
	}
}

func TestExecutor_UnignoreAbsentEntry(t *testing.T) {
	release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
	f := newFixture(t, filesync.ExecutorOptions{}, release)
	f.write(t, "release/p/a.sql", "a")

	report := f.analyze(t)
	d := findPath(report, "p/a.sql")
	if err := f.ignores.PutIgnoreEntry(context.Background(), &filesync.IgnoreEntry{Target: d.Target, RelativePath: d.RelativePath}); err != nil {
		t.Fatalf("PutIgnoreEntry() error = %v", err)
	}
	ignored := f.analyze(t)
	row := findPath(ignored, "p/a.sql")

	// Someone else removed the entry in between.
	if _, err := f.ignores.DeleteIgnoreEntry(context.Background(), d.Target, d.RelativePath); err != nil {
		t.Fatalf("DeleteIgnoreEntry() error = %v", err)
	}
	out := apply(t, f, ignored, filesync.ActionItem{DiscrepancyID: row.ID, Action: filesync.ActionUnignore})
	if !out.Results[0].Success {
		t.Errorf("result = %+v, want success", out.Results[0])
	}
}

func TestExecutor_PartialFailureIsolation(t *testing.T) {
	release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
	f := newFixture(t, filesync.ExecutorOptions{Workers: 3}, release)
	f.write(t, "release/p/a.sql", "a")
	f.write(t, "release/p/c.sql", "c")
	release.Seed("p/b.sql", 1, "00")

	report := f.analyze(t)
	out := apply(t, f, report,
		filesync.ActionItem{DiscrepancyID: findPath(report, "p/a.sql").ID, Action: filesync.ActionRegister},
		// MISSING rows have no fingerprint to register.
		filesync.ActionItem{DiscrepancyID: findPath(report, "p/b.sql").ID, Action: filesync.ActionRegister},
		filesync.ActionItem{DiscrepancyID: findPath(report, "p/c.sql").ID, Action: filesync.ActionRegister},
	)

	want := []bool{true, false, true}
	for i, r := range out.Results {
		if r.Success != want[i] {
			t.Errorf("Results[%d].Success = %v, want %v (%s)", i, r.Success, want[i], r.Message)
		}
	}
	if !errors.Is(out.Results[1].Err, filesync.ErrPreconditionFailed) {
		t.Errorf("Results[1].Err = %v, want ErrPreconditionFailed", out.Results[1].Err)
	}
	if out.Summary != (filesync.ApplySummary{Total: 3, Success: 2, Failed: 1}) {
		t.Errorf("Summary = %+v", out.Summary)
	}
}

func TestExecutor_AdapterFailurePreservesMessage(t *testing.T) {
	release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
	release.FailPaths["p/a.sql"] = errors.New("UNIQUE constraint failed: release_files.relative_path")
	f := newFixture(t, filesync.ExecutorOptions{}, release)
	f.write(t, "release/p/a.sql", "a")

	report := f.analyze(t)
	out := apply(t, f, report, filesync.ActionItem{DiscrepancyID: findPath(report, "p/a.sql").ID, Action: filesync.ActionRegister})

	r := out.Results[0]
	if r.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(r.Err, filesync.ErrAdapterOperation) {
		t.Errorf("Err = %v, want ErrAdapterOperation", r.Err)
	}
	if !strings.Contains(r.Message, "UNIQUE constraint failed") {
		t.Errorf("Message = %q, want collaborator message", r.Message)
	}
}

func TestExecutor_Preconditions(t *testing.T) {
	release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
	f := newFixture(t, filesync.ExecutorOptions{}, release)
	f.write(t, "release/p/a.sql", "a")

	report := f.analyze(t)
	id := findPath(report, "p/a.sql").ID

	tests := []struct {
		name string
		item filesync.ActionItem
	}{
		{"unknown discrepancy", filesync.ActionItem{DiscrepancyID: "stale-id", Action: filesync.ActionRegister}},
		{"action not available", filesync.ActionItem{DiscrepancyID: id, Action: filesync.ActionDelete}},
		{"unignore a non-ignored row", filesync.ActionItem{DiscrepancyID: id, Action: filesync.ActionUnignore}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := apply(t, f, report, tt.item)
			if out.Results[0].Success {
				t.Fatal("expected failure")
			}
			if !errors.Is(out.Results[0].Err, filesync.ErrPreconditionFailed) {
				t.Errorf("Err = %v, want ErrPreconditionFailed", out.Results[0].Err)
			}
		})
	}
	if len(release.Rows()) != 0 {
		t.Errorf("failed preconditions must not touch metadata, rows = %+v", release.Rows())
	}
}

func TestExecutor_DuplicateInstructionRejectsBatch(t *testing.T) {
	release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
	f := newFixture(t, filesync.ExecutorOptions{}, release)
	f.write(t, "release/p/a.sql", "a")
	f.write(t, "release/p/b.sql", "b")

	report := f.analyze(t)
	a, b := findPath(report, "p/a.sql").ID, findPath(report, "p/b.sql").ID
	_, err := f.executor.Apply(context.Background(), report, []filesync.ActionItem{
		{DiscrepancyID: a, Action: filesync.ActionRegister},
		{DiscrepancyID: b, Action: filesync.ActionRegister},
		{DiscrepancyID: a, Action: filesync.ActionIgnore},
	}, "tester")
	if !errors.Is(err, filesync.ErrDuplicateInstruction) {
		t.Fatalf("Apply() error = %v, want ErrDuplicateInstruction", err)
	}
	if len(release.Rows()) != 0 || f.ignores.Len() != 0 {
		t.Error("rejected batch must have no side effects")
	}
}

func TestExecutor_UnknownTargetRejectsBatch(t *testing.T) {
	release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
	f := newFixture(t, filesync.ExecutorOptions{}, release)

	report := &filesync.AnalyzeReport{
		ID: "r1",
		Discrepancies: []*filesync.Discrepancy{{
			ID:               "d1",
			Target:           filesync.TargetBackupFile,
			RelativePath:     "db/2024-01-01/x.sql",
			Status:           filesync.StatusMissing,
			AvailableActions: []filesync.Action{filesync.ActionDelete, filesync.ActionIgnore},
		}},
	}
	_, err := f.executor.Apply(context.Background(), report, []filesync.ActionItem{{DiscrepancyID: "d1", Action: filesync.ActionIgnore}}, "")
	if !errors.Is(err, filesync.ErrUnknownTarget) {
		t.Fatalf("Apply() error = %v, want ErrUnknownTarget", err)
	}
	if f.ignores.Len() != 0 {
		t.Error("rejected batch must have no side effects")
	}
}

func TestExecutor_NilReport(t *testing.T) {
	f := newFixture(t, filesync.ExecutorOptions{}, testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release"))
	if _, err := f.executor.Apply(context.Background(), nil, nil, ""); err == nil {
		t.Fatal("Apply(nil report) expected error")
	}
}

func TestExecutor_DeleteFile(t *testing.T) {
	tests := []struct {
		name      string
		allow     bool
		wantOK    bool
		wantOnFs  bool
		wantCause error
	}{
		{"disabled by default", false, false, true, filesync.ErrFileDeletionDisabled},
		{"enabled", true, true, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
			f := newFixture(t, filesync.ExecutorOptions{AllowFileDeletion: tt.allow}, release)
			f.write(t, "release/p/junk.sql", "junk")

			report := f.analyze(t)
			d := findPath(report, "p/junk.sql")
			for _, a := range d.AvailableActions {
				if a == filesync.ActionDeleteFile {
					t.Error("DELETE_FILE must never be offered")
				}
			}

			out := apply(t, f, report, filesync.ActionItem{DiscrepancyID: d.ID, Action: filesync.ActionDeleteFile})
			r := out.Results[0]
			if r.Success != tt.wantOK {
				t.Fatalf("result = %+v, want success=%v", r, tt.wantOK)
			}
			if tt.wantCause != nil && !errors.Is(r.Err, tt.wantCause) {
				t.Errorf("Err = %v, want %v", r.Err, tt.wantCause)
			}
			exists, err := afero.Exists(f.fs, storageRoot+"/release/p/junk.sql")
			if err != nil {
				t.Fatalf("Exists() error = %v", err)
			}
			if exists != tt.wantOnFs {
				t.Errorf("file exists = %v, want %v", exists, tt.wantOnFs)
			}
		})
	}
}

func TestExecutor_DeleteFileRequiresFingerprint(t *testing.T) {
	release := testutil.NewFakeAdapter(filesync.TargetReleaseFile, "release")
	f := newFixture(t, filesync.ExecutorOptions{AllowFileDeletion: true}, release)
	release.Seed("p/gone.sql", 1, "00")

	report := f.analyze(t)
	out := apply(t, f, report, filesync.ActionItem{DiscrepancyID: findPath(report, "p/gone.sql").ID, Action: filesync.ActionDeleteFile})
	if !errors.Is(out.Results[0].Err, filesync.ErrPreconditionFailed) {
		t.Errorf("Err = %v, want ErrPreconditionFailed", out.Results[0].Err)
	}
}
