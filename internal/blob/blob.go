// Package blob stores artifact bytes outside the row store. The row store
// keeps only the URI a backend returns from Put, so backends are free to
// choose their own layout.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Store writes and reads artifact payloads.
//
// Put streams r to storage under the run-scoped logical path and returns
// the URI to persist. Writing the same (runID, path) twice replaces the
// payload. Get resolves a URI previously returned by Put.
type Store interface {
	Put(ctx context.Context, runID uuid.UUID, path string, r io.Reader) (string, error)
	Get(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Open selects a backend from the store URI scheme.
//
//	file://artifacts          relative directory
//	file:///var/lib/apparatus absolute directory
//	gs://bucket/prefix        Google Cloud Storage
func Open(ctx context.Context, storeURI string) (Store, error) {
	switch {
	case strings.HasPrefix(storeURI, "file://"):
		return NewFS(strings.TrimPrefix(storeURI, "file://"))
	case strings.HasPrefix(storeURI, "gs://"):
		return OpenGCS(ctx, storeURI)
	default:
		return nil, fmt.Errorf("blob: unsupported artifact store URI %q (expected file:// or gs://)", storeURI)
	}
}
