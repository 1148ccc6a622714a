package filesync

import (
	"fmt"
	"strings"
)

// Target identifies one pluggable domain of files being reconciled.
type Target string

const (
	TargetReleaseFile  Target = "RELEASE_FILE"
	TargetBackupFile   Target = "BACKUP_FILE"
	TargetResourceFile Target = "RESOURCE_FILE"
)

// ParseTarget accepts the canonical name or a lowercase/hyphenated alias
// such as "release-file".
func ParseTarget(raw string) (Target, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_"))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty target", ErrUnknownTarget)
	}
	return Target(normalized), nil
}

func (t Target) String() string { return string(t) }
