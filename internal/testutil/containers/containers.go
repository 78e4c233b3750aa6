//go:build integration

// Package containers starts the PostgreSQL and Redis containers used by
// integration tests. It is compiled only with the "integration" build tag.
//
// Each Start helper registers container termination with t.Cleanup and
// fails the test if the container cannot start:
//
//	pg := containers.StartPostgres(ctx, t)
//	client, err := postgres.NewClient(ctx, postgres.Config{URI: pg.ConnString})
package containers

import (
	"context"
	"testing"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// ===========================================================================
// PostgreSQL
// ===========================================================================

const (
	DefaultPostgresImage    = "docker.io/postgres:16-alpine"
	DefaultPostgresDatabase = "gatekeeper_test"
	DefaultPostgresUser     = "gatekeeper"

	// DefaultPostgresPassword is only for ephemeral local containers.
	DefaultPostgresPassword = "gatekeeper"
)

// PostgresResult is a running PostgreSQL container. ConnString carries
// sslmode=disable and can be used as postgres.Config.URI.
type PostgresResult struct {
	Container  *tcpostgres.PostgresContainer
	ConnString string
}

// StartPostgres starts a PostgreSQL 16 container for the duration of t.
func StartPostgres(ctx context.Context, t testing.TB) *PostgresResult {
	t.Helper()
	container, err := tcpostgres.Run(ctx,
		DefaultPostgresImage,
		tcpostgres.WithDatabase(DefaultPostgresDatabase),
		tcpostgres.WithUsername(DefaultPostgresUser),
		tcpostgres.WithPassword(DefaultPostgresPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("containers: failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("containers: failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("containers: failed to get postgres connection string: %v", err)
	}
	return &PostgresResult{Container: container, ConnString: connStr}
}

// ===========================================================================
// Redis
// ===========================================================================

const DefaultRedisImage = "docker.io/redis:7-alpine"

// RedisResult is a running Redis container. ConnString is a redis:// URL.
type RedisResult struct {
	Container  *tcredis.RedisContainer
	ConnString string
}

// StartRedis starts an unauthenticated Redis 7 container for the duration
// of t.
func StartRedis(ctx context.Context, t testing.TB) *RedisResult {
	t.Helper()
	container, err := tcredis.Run(ctx, DefaultRedisImage)
	if err != nil {
		t.Fatalf("containers: failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("containers: failed to terminate redis container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("containers: failed to get redis connection string: %v", err)
	}
	return &RedisResult{Container: container, ConnString: connStr}
}
