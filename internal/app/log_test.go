package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSyncHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "analyze complete",
			want:    "2024-06-15T14:30:45Z\tINFO\top-123\tanalyze complete\n",
		},
		{
			name:    "debug level",
			opID:    "op-456",
			level:   slog.LevelDebug,
			message: "target analyzed",
			want:    "2024-06-15T14:30:45Z\tDEBUG\top-456\ttarget analyzed\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "action applied",
			attrs:   []slog.Attr{slog.String("path", "crm/1.0/sql/a.sql"), slog.Int("id", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\top-789\taction applied\tpath=crm/1.0/sql/a.sql\tid=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &syncHandler{w: &buf, opID: tt.opID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestSyncHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &syncHandler{w: &buf, opID: "op-1"}

	// Add pre-set attrs
	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "executor")}).(*syncHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "apply started", 0)
	r.AddAttrs(slog.String("key", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=executor") {
		t.Errorf("expected pre-set attr component=executor, got: %q", got)
	}
	if !strings.Contains(got, "key=abc") {
		t.Errorf("expected record attr key=abc, got: %q", got)
	}
}

func TestSyncHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &syncHandler{w: &buf, opID: "op-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*syncHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestSyncHandler_Enabled(t *testing.T) {
	h := &syncHandler{}
	// Without a level every record is written.
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}

	warn := &syncHandler{level: slog.LevelWarn}
	if warn.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Enabled(INFO) = true for a WARN handler")
	}
	if !warn.Enabled(context.Background(), slog.LevelError) {
		t.Error("Enabled(ERROR) = false for a WARN handler")
	}
}

func TestFanoutHandler_RespectsLevels(t *testing.T) {
	var all, warnOnly bytes.Buffer
	h := &fanoutHandler{handlers: []slog.Handler{
		&syncHandler{w: &all, opID: "op"},
		&syncHandler{w: &warnOnly, opID: "op", level: slog.LevelWarn},
	}}
	logger := slog.New(h).With("target", "RELEASE_FILE")

	logger.Info("analyze started")
	logger.Warn("scan warning", "path", "a.sql")

	if got := strings.Count(all.String(), "\n"); got != 2 {
		t.Errorf("file handler lines = %d, want 2:\n%s", got, all.String())
	}
	if strings.Contains(warnOnly.String(), "analyze started") {
		t.Errorf("stderr handler got INFO record: %q", warnOnly.String())
	}
	if !strings.Contains(warnOnly.String(), "target=RELEASE_FILE") || !strings.Contains(warnOnly.String(), "path=a.sql") {
		t.Errorf("stderr handler output = %q", warnOnly.String())
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-op", slog.LevelError)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	logger.Info("hello", "n", 1)

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "\ttest-op\thello\tn=1") {
		t.Errorf("log file = %q", data)
	}
}
