// Package adapters implements filesync.SyncAdapter for each metadata domain.
package adapters

import (
	"fmt"
	"strings"

	"filesync/internal/filesync"
)

// Attribute keys read from REGISTER extras and reported in RegisteredMetadata.Attributes.
const (
	AttrDescription = "description"
	AttrCategory    = "category"
	AttrProjectCode = "projectCode"
	AttrVersion     = "version"
	AttrDatabase    = "database"
	AttrBackupDate  = "backupDate"
	AttrBackupType  = "backupType"
)

// segments splits a slash-separated relative path, rejecting empty,
// absolute and dot segments.
func segments(relativePath string) ([]string, bool) {
	if relativePath == "" || strings.HasPrefix(relativePath, "/") {
		return nil, false
	}
	parts := strings.Split(relativePath, "/")
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return nil, false
		}
	}
	return parts, true
}

func createdBy(extra map[string]string) string {
	if v := extra[filesync.AttrCreatedBy]; v != "" {
		return v
	}
	return filesync.SystemActor
}

func invalidPath(t filesync.Target, relativePath string) error {
	return fmt.Errorf("%s: %q is not a valid sync path", t, relativePath)
}

// dropEmpty removes empty attribute values so reports stay compact.
func dropEmpty(attrs map[string]string) map[string]string {
	for k, v := range attrs {
		if v == "" {
			delete(attrs, k)
		}
	}
	return attrs
}
