package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/apparatuslabs/apparatus/internal/auth"
	"github.com/apparatuslabs/apparatus/internal/blob"
	"github.com/apparatuslabs/apparatus/internal/model"
	"github.com/apparatuslabs/apparatus/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store            storage.Store
	blobs            blob.Store
	jwtMgr           *auth.JWTManager
	verifier         *auth.Verifier
	logger           *slog.Logger
	version          string
	maxBodyBytes     int64
	maxArtifactBytes int64
	openapiSpec      []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): JWTMgr, Verifier, OpenAPISpec.
type HandlersDeps struct {
	Store            storage.Store
	Blobs            blob.Store
	JWTMgr           *auth.JWTManager
	Verifier         *auth.Verifier
	Logger           *slog.Logger
	Version          string
	MaxBodyBytes     int64
	MaxArtifactBytes int64
	OpenAPISpec      []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		store:            d.Store,
		blobs:            d.Blobs,
		jwtMgr:           d.JWTMgr,
		verifier:         d.Verifier,
		logger:           d.Logger,
		version:          d.Version,
		maxBodyBytes:     d.MaxBodyBytes,
		maxArtifactBytes: d.MaxArtifactBytes,
		openapiSpec:      d.OpenAPISpec,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{Status: "ok", Version: h.version, Database: "ok"}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("health check failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

// HandleOpenAPISpec handles GET /openapi.yaml.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// writeStoreError translates storage failures into the wire error shape.
func (h *Handlers) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrDepthExceeded):
		writeError(w, http.StatusBadRequest, storage.ErrDepthExceeded.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("storage failure",
			"error", err,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
		)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	}
}

// pathUUID parses a UUID path segment; a false return means the response
// was already written.
func pathUUID(w http.ResponseWriter, r *http.Request, segment string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(segment))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+segment)
		return uuid.Nil, false
	}
	return id, true
}
