package filesync

import "time"

// SystemActor is the identity recorded when a caller does not supply one.
const SystemActor = "SYSTEM_SYNC"

// Status is the classification of one path after joining scan and metadata state.
type Status string

const (
	StatusSynced       Status = "SYNCED"
	StatusUnregistered Status = "UNREGISTERED"
	StatusMissing      Status = "MISSING"
	StatusModified     Status = "MODIFIED"
	StatusIgnored      Status = "IGNORED"
)

// Action is a corrective operation a caller may request for a discrepancy.
type Action string

const (
	ActionRegister Action = "REGISTER"
	ActionDelete   Action = "DELETE"
	ActionUpdate   Action = "UPDATE"
	ActionIgnore   Action = "IGNORE"
	ActionUnignore Action = "UNIGNORE"
	// ActionDeleteFile removes the file from disk. It is never offered in
	// AvailableActions and must be enabled on the Executor explicitly.
	ActionDeleteFile Action = "DELETE_FILE"
)

// Fingerprint describes the on-disk state of one file at scan time.
type Fingerprint struct {
	RelativePath string    `json:"relative_path"`
	FileName     string    `json:"file_name"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"` // SHA-256, lowercase hex
	ModifiedAt   time.Time `json:"modified_at"`
}

// RegisteredMetadata is a metadata row owned by a domain's store.
type RegisteredMetadata struct {
	ID           int64             `json:"id"`
	Target       Target            `json:"target"`
	RelativePath string            `json:"relative_path"`
	FileName     string            `json:"file_name"`
	Size         int64             `json:"size"`
	Checksum     string            `json:"checksum"`
	RegisteredAt time.Time         `json:"registered_at"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// Discrepancy is one classified, non-synced row of an AnalyzeReport.
// ID is only meaningful within the report that produced it.
type Discrepancy struct {
	ID               string              `json:"id"`
	Target           Target              `json:"target"`
	RelativePath     string              `json:"relative_path"`
	FileName         string              `json:"file_name"`
	Status           Status              `json:"status"`
	IgnoredStatus    Status              `json:"ignored_status,omitempty"` // status recorded by the ignore entry
	Message          string              `json:"message"`
	Fingerprint      *Fingerprint        `json:"fingerprint,omitempty"`
	Metadata         *RegisteredMetadata `json:"metadata,omitempty"`
	AvailableActions []Action            `json:"available_actions"`
}

// Allows reports whether action is one of the row's available actions.
func (d *Discrepancy) Allows(action Action) bool {
	for _, a := range d.AvailableActions {
		if a == action {
			return true
		}
	}
	return false
}

// IgnoreEntry is a persisted acknowledgment of a discrepancy.
type IgnoreEntry struct {
	Target       Target    `json:"target"`
	RelativePath string    `json:"relative_path"`
	Status       Status    `json:"status"`
	IgnoredBy    string    `json:"ignored_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// AnalyzeSummary aggregates counts across all analyzed targets.
type AnalyzeSummary struct {
	TotalScanned  int `json:"total_scanned"`
	Synced        int `json:"synced"`
	Discrepancies int `json:"discrepancies"`
	Ignored       int `json:"ignored"`
	Warnings      int `json:"warnings"`
}

// AnalyzeReport is the result of one analyze call.
type AnalyzeReport struct {
	ID                    string         `json:"id"`
	AnalyzedAt            time.Time      `json:"analyzed_at"`
	BasePath              string         `json:"base_path,omitempty"`
	Targets               []Target       `json:"targets"`
	Summary               AnalyzeSummary `json:"summary"`
	DiscrepanciesByTarget map[Target]int `json:"discrepancies_by_target"`
	Discrepancies         []*Discrepancy `json:"discrepancies"`
	Warnings              []ScanWarning  `json:"warnings,omitempty"`
	TargetErrors          []TargetError  `json:"target_errors,omitempty"`
}

// Find returns the discrepancy with the given id, or nil.
func (r *AnalyzeReport) Find(id string) *Discrepancy {
	for _, d := range r.Discrepancies {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// ActionItem is one caller instruction for Executor.Apply.
// Metadata carries domain-specific extra attributes for REGISTER.
type ActionItem struct {
	DiscrepancyID string            `json:"discrepancy_id"`
	Action        Action            `json:"action"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ActionResult is the outcome of one ActionItem.
type ActionResult struct {
	DiscrepancyID string `json:"discrepancy_id"`
	Target        Target `json:"target,omitempty"`
	RelativePath  string `json:"relative_path,omitempty"`
	Action        Action `json:"action"`
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	// Err is the failure cause, kept for errors.Is checks; not serialized.
	Err error `json:"-"`
}

// ApplySummary aggregates an apply batch.
type ApplySummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// ApplyReport is returned by Executor.Apply regardless of individual failures.
type ApplyReport struct {
	Results []ActionResult `json:"results"`
	Summary ApplySummary   `json:"summary"`
}
