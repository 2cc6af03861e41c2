// Package testdb provides PostgreSQL-backed test fixtures shared across the
// controller's integration test suites: a CI_DATABASE_URL fallback for CI
// runners with an external PostgreSQL service, and a testcontainers-go
// PostgreSQL container for local development.
package testdb

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sdlcloop/controller/pkg/database"
)

// NewTestClient creates a database.Client for one test, running migrations
// against either CI's external PostgreSQL (CI_DATABASE_URL) or a throwaway
// testcontainers-go PostgreSQL container, which is terminated on test
// cleanup.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	cfg := database.Config{
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}

	if ciURL := os.Getenv("CI_DATABASE_URL"); ciURL != "" {
		t.Log("testdb: using external PostgreSQL from CI_DATABASE_URL")
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database = parseCIDatabaseURL(t, ciURL)
	} else {
		t.Log("testdb: starting PostgreSQL testcontainer")
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("sdlcloop_test"),
			postgres.WithUsername("sdlcloop_test"),
			postgres.WithPassword("sdlcloop_test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("testdb: failed to terminate container: %v", err)
			}
		})

		host, err := pgContainer.Host(ctx)
		require.NoError(t, err)
		port, err := pgContainer.MappedPort(ctx, "5432/tcp")
		require.NoError(t, err)

		cfg.Host = host
		cfg.Port = port.Int()
		cfg.User = "sdlcloop_test"
		cfg.Password = "sdlcloop_test"
		cfg.Database = "sdlcloop_test"
	}

	client, err := database.NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

// parseCIDatabaseURL extracts the fields database.Config needs from a
// postgres:// DSN, since CI wires the connection as a single URL env var.
func parseCIDatabaseURL(t *testing.T, raw string) (host string, port int, user, password, dbname string) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)

	host = u.Hostname()
	portStr := u.Port()
	if portStr == "" {
		portStr = "5432"
	}
	port, err = strconv.Atoi(portStr)
	require.NoError(t, err)

	if u.User != nil {
		user = u.User.Username()
		password, _ = u.User.Password()
	}
	dbname = strings.TrimPrefix(u.Path, "/")
	return host, port, user, password, dbname
}
