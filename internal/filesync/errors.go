package filesync

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTarget means no adapter is registered for a requested target.
	ErrUnknownTarget = errors.New("unknown sync target")

	// ErrInvalidBasePath means the analyze base path escapes the domain root.
	ErrInvalidBasePath = errors.New("invalid base path")

	// ErrTargetUnavailable means a target's metadata or ignore store could not be read.
	ErrTargetUnavailable = errors.New("sync target unavailable")

	// ErrPreconditionFailed means an apply instruction cannot run against its discrepancy.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrAdapterOperation means a metadata collaborator rejected a mutation.
	ErrAdapterOperation = errors.New("adapter operation failed")

	// ErrDuplicateInstruction means two instructions in one batch share a discrepancy id.
	ErrDuplicateInstruction = errors.New("duplicate instruction")

	// ErrNotFound is returned by adapters when a metadata id does not exist.
	ErrNotFound = errors.New("metadata not found")

	// ErrMissingAttribute is returned by adapters when a required extra attribute is absent.
	ErrMissingAttribute = errors.New("missing required attribute")

	// ErrFileDeletionDisabled means DELETE_FILE was requested but not enabled.
	ErrFileDeletionDisabled = errors.New("file deletion is disabled")
)

// ScanWarning records a file or directory that could not be read during a scan.
type ScanWarning struct {
	Target  Target `json:"target,omitempty"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (w ScanWarning) Error() string {
	return fmt.Sprintf("scan warning: %s: %s", w.Path, w.Message)
}

// TargetError records a target whose contribution was omitted from a report.
type TargetError struct {
	Target  Target `json:"target"`
	Message string `json:"message"`
}

func (e TargetError) Error() string {
	return fmt.Sprintf("%s: %s", e.Target, e.Message)
}

// MissingAttributeError is returned when REGISTER lacks a domain-required attribute.
type MissingAttributeError struct {
	Target    Target
	Attribute string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("%s: missing required attribute %q", e.Target, e.Attribute)
}

func (e *MissingAttributeError) Unwrap() error { return ErrMissingAttribute }
