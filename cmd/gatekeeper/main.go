// Command gatekeeper verifies provider-issued bearer tokens and serves the
// admin account API.
//
// Configuration comes from GATEKEEPER_* environment variables and an
// optional YAML or JSON file:
//
//	GATEKEEPER_AUTH_TRUSTED_ISSUER=https://project.example/auth/v1 \
//	GATEKEEPER_AUTH_JWKS_URL=https://project.example/auth/v1/.well-known/jwks.json \
//	GATEKEEPER_PROVIDER_BASE_URL=https://project.example \
//	GATEKEEPER_PROVIDER_SERVICE_KEY=... \
//	GATEKEEPER_STORAGE_DRIVER=memory \
//	go run ./cmd/gatekeeper -config gatekeeper.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/StricklySoft/stricklysoft-gatekeeper/internal/app"
)

func main() {
	configPath := flag.String("config", os.Getenv("GATEKEEPER_CONFIG_FILE"), "path to a YAML or JSON config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "gatekeeper:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := app.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := app.NewLogger(os.Stdout, cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		logger.Error("failed to assemble service", "error", err)
		return err
	}

	logger.Info("starting", "version", cfg.Version, "storage", cfg.Storage.Driver, "redis_mirror", cfg.Redis.Enabled)
	if err := a.Run(ctx); err != nil {
		logger.Error("service exited with error", "error", err)
		return err
	}
	logger.Info("stopped")
	return nil
}
