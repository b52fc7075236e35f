// Package apparatus is the public API for embedding the Apparatus
// experiment-tracking server.
//
// Consumers import this package to construct and extend the server without
// forking it:
//
//	app, err := apparatus.New(
//	    apparatus.WithVersion(version),
//	    apparatus.WithLogger(logger),
//	    apparatus.WithBlobStore(myObjectStore),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: apparatus (root)
// imports internal/*, but internal/* never imports apparatus (root).
package apparatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/apparatuslabs/apparatus/api"
	"github.com/apparatuslabs/apparatus/internal/auth"
	"github.com/apparatuslabs/apparatus/internal/blob"
	"github.com/apparatuslabs/apparatus/internal/config"
	"github.com/apparatuslabs/apparatus/internal/mcp"
	"github.com/apparatuslabs/apparatus/internal/ratelimit"
	"github.com/apparatuslabs/apparatus/internal/server"
	"github.com/apparatuslabs/apparatus/internal/storage"
	"github.com/apparatuslabs/apparatus/internal/telemetry"
)

// App is the Apparatus server lifecycle. Construct with New(), run with
// Run(). App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	store        storage.Store
	blobs        blob.Store
	srv          *server.Server
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the Apparatus server. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.artifactStoreURI != "" {
		cfg.ArtifactStoreURI = o.artifactStoreURI
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("apparatus starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	store, err := storage.Open(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	var blobs blob.Store
	if o.blobStore != nil {
		blobs = o.blobStore
	} else {
		blobs, err = blob.Open(context.Background(), cfg.ArtifactStoreURI)
		if err != nil {
			_ = store.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("artifact store: %w", err)
		}
	}

	// Auth is active only when key hashes are configured.
	var (
		verifier *auth.Verifier
		jwtMgr   *auth.JWTManager
	)
	if cfg.AuthEnabled() {
		verifier = auth.NewVerifier(cfg.APIKeyHashes)
		jwtMgr, err = auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
		if err != nil {
			_ = store.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("auth: %w", err)
		}
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = ratelimit.NewMemoryLimiter(float64(cfg.RateLimitPerMinute)/60.0, cfg.RateLimitBurst)
		logger.Info("rate limiting enabled",
			"per_minute", cfg.RateLimitPerMinute,
			"burst", cfg.RateLimitBurst,
		)
	}

	mcpSrv := mcp.New(store, version, logger)

	extraRoutes := make([]func(mux *http.ServeMux), 0, len(o.routeRegistrars))
	for _, fn := range o.routeRegistrars {
		extraRoutes = append(extraRoutes, fn)
	}
	extraMW := make([]func(http.Handler) http.Handler, 0, len(o.middlewares))
	for _, mw := range o.middlewares {
		extraMW = append(extraMW, mw)
	}

	srv := server.New(server.ServerConfig{
		Store:            store,
		Blobs:            blobs,
		Logger:           logger,
		JWTMgr:           jwtMgr,
		Verifier:         verifier,
		Limiter:          limiter,
		MCPServer:        mcpSrv.MCPServer(),
		Port:             cfg.Port,
		ReadTimeout:      cfg.ReadTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		Version:          version,
		MaxBodyBytes:     cfg.MaxRequestBodyBytes,
		MaxArtifactBytes: cfg.MaxArtifactBytes,
		OpenAPISpec:      api.OpenAPISpec,
		ExtraRoutes:      extraRoutes,
		ExtraMiddleware:  extraMW,
	})

	return &App{
		cfg:          cfg,
		store:        store,
		blobs:        blobs,
		srv:          srv,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler, for mounting the App inside an
// existing server or for tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown stops the HTTP server and releases all resources. Safe to call
// after Run returns; Run calls it on context cancellation.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error

	if err := a.srv.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.limiter != nil {
		if err := a.limiter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.store.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.otelShutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	a.logger.Info("apparatus stopped")
	return firstErr
}
