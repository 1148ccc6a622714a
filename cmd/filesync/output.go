package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"filesync/internal/filesync"
	"filesync/internal/model"
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func actionList(actions []filesync.Action) string {
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ",")
}

// sizeOf prefers the on-disk size and falls back to the registered one.
func sizeOf(d *filesync.Discrepancy) string {
	switch {
	case d.Fingerprint != nil:
		return humanize.IBytes(uint64(d.Fingerprint.Size))
	case d.Metadata != nil:
		return humanize.IBytes(uint64(d.Metadata.Size))
	}
	return "-"
}

func printReport(w io.Writer, r *filesync.AnalyzeReport) {
	fmt.Fprintf(w, "Report %s (%s)\n", r.ID, humanize.Time(r.AnalyzedAt))
	fmt.Fprintf(w, "Scanned %s files: %d synced, %d discrepancies, %d ignored, %d warnings\n\n",
		humanize.Comma(int64(r.Summary.TotalScanned)), r.Summary.Synced, r.Summary.Discrepancies,
		r.Summary.Ignored, r.Summary.Warnings)

	if len(r.Discrepancies) > 0 {
		tw := newTable(w)
		fmt.Fprintln(tw, "ID\tTARGET\tSTATUS\tPATH\tSIZE\tACTIONS\tMESSAGE")
		for _, d := range r.Discrepancies {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				d.ID, d.Target, d.Status, d.RelativePath, sizeOf(d), actionList(d.AvailableActions), d.Message)
		}
		tw.Flush()
	}

	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning: %s %s: %s\n", warn.Target, warn.Path, warn.Message)
	}
	for _, te := range r.TargetErrors {
		fmt.Fprintf(w, "error: %s\n", te.Error())
	}
}

func printApplyReport(w io.Writer, r *filesync.ApplyReport) {
	tw := newTable(w)
	fmt.Fprintln(tw, "DISCREPANCY\tACTION\tTARGET\tPATH\tRESULT\tMESSAGE")
	for _, res := range r.Results {
		result := "ok"
		if !res.Success {
			result = "FAILED"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			res.DiscrepancyID, res.Action, res.Target, res.RelativePath, result, res.Message)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d total, %d succeeded, %d failed\n", r.Summary.Total, r.Summary.Success, r.Summary.Failed)
}

func printIgnores(w io.Writer, entries []*filesync.IgnoreEntry) {
	tw := newTable(w)
	fmt.Fprintln(tw, "TARGET\tPATH\tWAS\tBY\tSINCE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Target, e.RelativePath, e.Status, e.IgnoredBy, humanize.Time(e.CreatedAt))
	}
	tw.Flush()
}

func printHistory(w io.Writer, ops []*model.SyncOperation) {
	for _, op := range ops {
		duration := ""
		if op.FinishedAt != nil {
			duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
		}
		fmt.Fprintf(w, "#%d  %-15s  %s  %-8s  %-10s  %s\n",
			op.ID,
			op.Operation,
			op.StartedAt.Format("2006-01-02 15:04:05"),
			op.Status,
			duration,
			op.Parameters,
		)
	}
}

func printActionLog(w io.Writer, entries []*model.ActionLogEntry) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ACTION\tTARGET\tPATH\tRESULT\tACTOR\tMESSAGE")
	for _, e := range entries {
		result := "ok"
		if !e.Success {
			result = "FAILED"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.Action, e.Target, e.RelativePath, result, e.Actor, e.Message)
	}
	tw.Flush()
}
