package apparatus

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// BlobStore stores artifact payloads outside the relational store.
// When provided via WithBlobStore, replaces the scheme-dispatched file://
// or gs:// sink from config.
//
// Put streams r under the run-scoped logical path and returns the URI to
// persist; writing the same (runID, path) twice must replace the payload.
// Get resolves a URI previously returned by Put.
type BlobStore interface {
	Put(ctx context.Context, runID uuid.UUID, path string, r io.Reader) (string, error)
	Get(ctx context.Context, uri string) (io.ReadCloser, error)
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// The function is called once during New() after all built-in routes are
// registered, so built-in routes win pattern conflicts.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the root HTTP handler. Applied inside the built-in
// chain (request ID, tracing, logging, auth run first) but outside routing,
// so it sees every matched request.
type Middleware func(http.Handler) http.Handler
