package apparatus

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port             int
	databaseURL      string
	artifactStoreURI string
	logger           *slog.Logger
	version          string
	blobStore        BlobStore
	routeRegistrars  []RouteRegistrar
	middlewares      []Middleware
}

// WithPort overrides the TCP port from config (APPARATUS_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config
// (APPARATUS_DB_CONNECTION_STRING env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithArtifactStoreURI overrides the artifact store URI from config
// (APPARATUS_ARTIFACT_STORE_URI env var). Ignored when WithBlobStore is set.
func WithArtifactStoreURI(uri string) Option {
	return func(o *resolvedOptions) { o.artifactStoreURI = uri }
}

// WithBlobStore replaces the built-in file:// / gs:// artifact sinks with a
// caller-provided implementation.
func WithBlobStore(bs BlobStore) Option {
	return func(o *resolvedOptions) { o.blobStore = bs }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithExtraRoutes registers additional routes on the shared HTTP mux.
// Multiple registrars may be registered; all are called in registration order.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}

// WithMiddleware registers an HTTP middleware around the router.
// Multiple middlewares are applied in registration order: the
// first-registered middleware is outermost.
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
