package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/apparatuslabs/apparatus/internal/auth"
	"github.com/apparatuslabs/apparatus/internal/blob"
	"github.com/apparatuslabs/apparatus/internal/ratelimit"
	"github.com/apparatuslabs/apparatus/internal/storage"
)

// Server is the Apparatus HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. Optional (nil-safe): JWTMgr, Verifier, Limiter, MCPServer,
// OpenAPISpec, ExtraRoutes, ExtraMiddleware.
type ServerConfig struct {
	// Required dependencies.
	Store  storage.Store
	Blobs  blob.Store
	Logger *slog.Logger

	// Optional dependencies (nil = disabled).
	JWTMgr    *auth.JWTManager
	Verifier  *auth.Verifier
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port             int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	Version          string
	MaxBodyBytes     int64
	MaxArtifactBytes int64

	// Optional embedded assets.
	OpenAPISpec []byte

	// Extension points for embedders.
	ExtraRoutes     []func(mux *http.ServeMux)
	ExtraMiddleware []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Store:            cfg.Store,
		Blobs:            cfg.Blobs,
		JWTMgr:           cfg.JWTMgr,
		Verifier:         cfg.Verifier,
		Logger:           cfg.Logger,
		Version:          cfg.Version,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		MaxArtifactBytes: cfg.MaxArtifactBytes,
		OpenAPISpec:      cfg.OpenAPISpec,
	})

	ingestRL := ratelimit.Middleware(cfg.Limiter, clientIP)

	mux := http.NewServeMux()

	// Ingestion (rate limited by client IP when a limiter is configured).
	mux.Handle("POST /api/experiments", ingestRL(http.HandlerFunc(h.HandleCreateExperiment)))
	mux.Handle("POST /api/runs", ingestRL(http.HandlerFunc(h.HandleCreateRun)))
	mux.Handle("POST /api/params", ingestRL(http.HandlerFunc(h.HandleLogParam)))
	mux.Handle("POST /api/metrics", ingestRL(http.HandlerFunc(h.HandleLogMetrics)))
	mux.Handle("POST /api/artifacts", ingestRL(http.HandlerFunc(h.HandleLogArtifact)))

	// Reads.
	mux.HandleFunc("GET /api/experiments", h.HandleListExperiments)
	mux.HandleFunc("GET /api/experiments/{experiment_id}/runs", h.HandleListExperimentRuns)
	mux.HandleFunc("GET /api/runs/{run_id}", h.HandleGetRun)
	mux.HandleFunc("GET /api/runs/{run_id}/children", h.HandleListChildren)
	mux.HandleFunc("GET /api/runs/{run_id}/ancestors", h.HandleAncestors)
	mux.HandleFunc("GET /api/runs/{run_id}/params", h.HandleListParams)
	mux.HandleFunc("GET /api/runs/{run_id}/metrics", h.HandleGetMetrics)
	mux.HandleFunc("GET /api/runs/{run_id}/artifacts", h.HandleListArtifacts)
	mux.HandleFunc("GET /api/artifacts/blob", h.HandleDownloadArtifact)

	// Token exchange exists only when API-key auth is configured.
	authEnabled := cfg.Verifier != nil && cfg.Verifier.Enabled() && cfg.JWTMgr != nil
	if authEnabled {
		mux.Handle("POST /auth/token", ingestRL(http.HandlerFunc(h.HandleAuthToken)))
	}

	// MCP StreamableHTTP transport (read-only tools).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// OpenAPI spec and health (no auth, no rate limit).
	if len(cfg.OpenAPISpec) > 0 {
		mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	}
	mux.HandleFunc("GET /health", h.HandleHealth)

	for _, register := range cfg.ExtraRoutes {
		register(mux)
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	for i := len(cfg.ExtraMiddleware) - 1; i >= 0; i-- {
		handler = cfg.ExtraMiddleware[i](handler)
	}
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, authEnabled, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
