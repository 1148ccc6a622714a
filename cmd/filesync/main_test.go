package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"filesync/internal/filesync"
	"filesync/internal/model"
)

func TestRootCommands(t *testing.T) {
	want := []string{"config", "db", "analyze", "apply", "ignore", "history", "watch"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Find(%q) = %v, %v", name, cmd, err)
		}
	}

	for _, path := range [][]string{{"config", "init"}, {"config", "list"}, {"db", "migrate"}, {"db", "backup"}, {"ignore", "list"}, {"ignore", "rm"}} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd.Name() != path[1] {
			t.Errorf("Find(%v) = %v, %v", path, cmd, err)
		}
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &filesync.AnalyzeReport{
		ID:         "r-1",
		AnalyzedAt: time.Now(),
		Summary:    filesync.AnalyzeSummary{TotalScanned: 1200, Synced: 1198, Discrepancies: 2},
		Discrepancies: []*filesync.Discrepancy{
			{
				ID:               "d-1",
				Target:           filesync.TargetReleaseFile,
				RelativePath:     "crm/1.0/sql/a.sql",
				Status:           filesync.StatusUnregistered,
				Fingerprint:      &filesync.Fingerprint{Size: 2048},
				AvailableActions: []filesync.Action{filesync.ActionRegister, filesync.ActionIgnore},
			},
			{
				ID:               "d-2",
				Target:           filesync.TargetBackupFile,
				RelativePath:     "orders/2024-03-01/full.dump",
				Status:           filesync.StatusMissing,
				Metadata:         &filesync.RegisteredMetadata{Size: 10},
				AvailableActions: []filesync.Action{filesync.ActionDelete, filesync.ActionIgnore},
			},
		},
		TargetErrors: []filesync.TargetError{{Target: filesync.TargetResourceFile, Message: "catalog locked"}},
	})

	out := buf.String()
	for _, want := range []string{"1,200", "2.0 KiB", "REGISTER,IGNORE", "orders/2024-03-01/full.dump", "10 B", "RESOURCE_FILE: catalog locked"} {
		if !strings.Contains(out, want) {
			t.Errorf("printReport() output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintApplyReport(t *testing.T) {
	var buf bytes.Buffer
	printApplyReport(&buf, &filesync.ApplyReport{
		Results: []filesync.ActionResult{
			{DiscrepancyID: "d-1", Action: filesync.ActionRegister, Success: true, Message: "registered with id 7"},
			{DiscrepancyID: "d-2", Action: filesync.ActionDelete, Message: "precondition failed"},
		},
		Summary: filesync.ApplySummary{Total: 2, Success: 1, Failed: 1},
	})

	out := buf.String()
	if !strings.Contains(out, "FAILED") || !strings.Contains(out, "2 total, 1 succeeded, 1 failed") {
		t.Errorf("printApplyReport() output:\n%s", out)
	}
}

func TestPrintHistory(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)

	var buf bytes.Buffer
	printHistory(&buf, []*model.SyncOperation{
		{ID: 2, Operation: "Apply", StartedAt: start, FinishedAt: &end, Status: "partial", Parameters: "report=r-1 items=3"},
		{ID: 1, Operation: "RemoveIgnore", StartedAt: start, Status: "running"},
	})

	out := buf.String()
	if !strings.Contains(out, "#2") || !strings.Contains(out, "1.5s") || !strings.Contains(out, "report=r-1") {
		t.Errorf("printHistory() output:\n%s", out)
	}
}
