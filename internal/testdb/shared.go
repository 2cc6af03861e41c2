package testdb

import (
	"context"
	"crypto/rand"
	stdsql "database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sdlcloop/controller/pkg/database"
)

var (
	sharedBase     baseConnection
	sharedBaseOnce sync.Once
	sharedBaseErr  error
)

type baseConnection struct {
	host, user, password, dbname string
	port                         int
}

func (b baseConnection) dsn() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		b.host, b.port, b.user, b.password, b.dbname)
}

// SharedTestDB is a single PostgreSQL database shared by multiple test
// replicas, each replica isolated to its own schema via search_path. Unlike
// NewTestClient's throwaway-container-per-test approach, this lets several
// independent *database.Client connection pools observe the same rows and
// the same PostgreSQL NOTIFY/LISTEN channel — needed to exercise
// cross-replica realtime event delivery.
type SharedTestDB struct {
	base       baseConnection
	schemaName string
}

// NewSharedTestDB starts (once per test binary) a shared PostgreSQL instance,
// carves out a fresh schema for this test, and registers its cleanup. Call
// NewClient once per simulated replica.
func NewSharedTestDB(t *testing.T) *SharedTestDB {
	t.Helper()
	ctx := context.Background()

	base := getOrCreateSharedBase(t)
	schemaName := generateSchemaName(t)

	db, err := stdsql.Open("pgx", base.dsn())
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "CREATE SCHEMA "+schemaName)
	require.NoError(t, err)
	_ = db.Close()
	t.Logf("testdb: created shared schema %s", schemaName)

	t.Cleanup(func() {
		cleanDB, err := stdsql.Open("pgx", base.dsn())
		if err != nil {
			t.Logf("testdb: could not connect to drop schema %s: %v", schemaName, err)
			return
		}
		defer func() { _ = cleanDB.Close() }()
		if _, err := cleanDB.ExecContext(context.Background(), "DROP SCHEMA IF EXISTS "+schemaName+" CASCADE"); err != nil {
			t.Logf("testdb: failed to drop schema %s: %v", schemaName, err)
		}
	})

	return &SharedTestDB{base: base, schemaName: schemaName}
}

// NewClient creates an independent *database.Client backed by its own
// connection pool, scoped to the shared schema via search_path. Each
// replica's pool (and the migrations the first one applies) is isolated to
// that schema, so replicas never race each other's DDL.
func (s *SharedTestDB) NewClient(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	client, err := database.NewClient(ctx, database.Config{
		Host:            s.base.host,
		Port:            s.base.port,
		User:            s.base.user,
		Password:        s.base.password,
		Database:        s.base.dbname,
		SSLMode:         "disable",
		SearchPath:      s.schemaName,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })
	return client
}

// ConnString returns the shared schema's DSN, for components (like
// NotifyListener) that need a dedicated non-pooled connection.
func (s *SharedTestDB) ConnString() string {
	return s.base.dsn() + " search_path=" + s.schemaName
}

func getOrCreateSharedBase(t *testing.T) baseConnection {
	t.Helper()
	sharedBaseOnce.Do(func() {
		if ciURL := os.Getenv("CI_DATABASE_URL"); ciURL != "" {
			t.Log("testdb: using external PostgreSQL from CI_DATABASE_URL for shared schema tests")
			host, port, user, password, dbname := parseCIDatabaseURL(t, ciURL)
			sharedBase = baseConnection{host: host, port: port, user: user, password: password, dbname: dbname}
			return
		}

		t.Log("testdb: starting shared PostgreSQL testcontainer")
		ctx := context.Background()
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("sdlcloop_shared"),
			postgres.WithUsername("sdlcloop_shared"),
			postgres.WithPassword("sdlcloop_shared"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			sharedBaseErr = fmt.Errorf("start shared postgres container: %w", err)
			return
		}

		host, err := pgContainer.Host(ctx)
		if err != nil {
			sharedBaseErr = err
			return
		}
		port, err := pgContainer.MappedPort(ctx, "5432/tcp")
		if err != nil {
			sharedBaseErr = err
			return
		}

		sharedBase = baseConnection{
			host:     host,
			port:     port.Int(),
			user:     "sdlcloop_shared",
			password: "sdlcloop_shared",
			dbname:   "sdlcloop_shared",
		}
	})

	require.NoError(t, sharedBaseErr, "failed to set up shared test database")
	return sharedBase
}

func generateSchemaName(t *testing.T) string {
	t.Helper()
	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}

	random := make([]byte, 4)
	_, err := rand.Read(random)
	require.NoError(t, err)

	return fmt.Sprintf("test_%s_%s", name, hex.EncodeToString(random))
}
