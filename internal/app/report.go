package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"filesync/internal/filesync"
)

// WriteJSON encodes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SaveReport writes an analyze report so a later apply can resolve its ids.
func SaveReport(path string, report *filesync.AnalyzeReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	if err := WriteJSON(f, report); err != nil {
		f.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	return f.Close()
}

// LoadReport reads a report written by SaveReport.
func LoadReport(path string) (*filesync.AnalyzeReport, error) {
	var report filesync.AnalyzeReport
	if err := readJSONFile(path, &report); err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	if report.ID == "" {
		return nil, fmt.Errorf("reading report: %s has no report id", path)
	}
	return &report, nil
}

// LoadActions reads a JSON array of action items.
func LoadActions(path string) ([]filesync.ActionItem, error) {
	var items []filesync.ActionItem
	if err := readJSONFile(path, &items); err != nil {
		return nil, fmt.Errorf("reading actions: %w", err)
	}
	return items, nil
}

func readJSONFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
