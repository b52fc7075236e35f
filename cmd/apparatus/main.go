package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/apparatuslabs/apparatus"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	dbFlag := flag.String("db", "", "database connection string (overrides APPARATUS_DB_CONNECTION_STRING)")
	artifactFlag := flag.String("artifact-store-uri", "", "artifact store URI (overrides APPARATUS_ARTIFACT_STORE_URI)")
	portFlag := flag.Int("port", 0, "listen port (overrides APPARATUS_PORT)")
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("APPARATUS_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := []apparatus.Option{
		apparatus.WithVersion(version),
		apparatus.WithLogger(logger),
	}
	if *dbFlag != "" {
		opts = append(opts, apparatus.WithDatabaseURL(*dbFlag))
	}
	if *artifactFlag != "" {
		opts = append(opts, apparatus.WithArtifactStoreURI(*artifactFlag))
	}
	if *portFlag != 0 {
		opts = append(opts, apparatus.WithPort(*portFlag))
	}

	app, err := apparatus.New(opts...)
	if err != nil {
		slog.Error("startup failed", "error", err)
		return 1
	}

	if err := app.Run(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}
