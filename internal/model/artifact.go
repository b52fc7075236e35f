package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Artifact maps a caller-chosen logical path to a blob reference within a
// run. Keyed by (run_id, path); re-upload to the same path replaces the
// reference (the previous blob may be orphaned — garbage collection is the
// operator's concern).
type Artifact struct {
	RunID       uuid.UUID `json:"run_id"`
	Path        string    `json:"path"`
	URI         string    `json:"uri"`
	ContentType string    `json:"content_type,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ValidateArtifactPath checks a logical artifact path: relative,
// slash-separated, no empty or dot-dot segments. The path is used to
// address blobs in the sink, so traversal sequences are rejected before
// they reach any filesystem.
func ValidateArtifactPath(path string) error {
	if path == "" {
		return fmt.Errorf("path must not be empty")
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must be relative")
	}
	if strings.Contains(path, "\\") {
		return fmt.Errorf("path must use forward slashes")
	}
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "":
			return fmt.Errorf("path must not contain empty segments")
		case ".", "..":
			return fmt.Errorf("path must not contain %q segments", seg)
		}
	}
	return nil
}
