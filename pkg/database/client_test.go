package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdlcloop/controller/internal/testdb"
	"github.com/sdlcloop/controller/pkg/database"
)

func TestDatabaseClient_ConnectionPool(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	err := client.DB().PingContext(ctx)
	require.NoError(t, err)

	health, err := database.Health(ctx, client.DB())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Greater(t, health.MaxOpenConns, 0)
}

func TestFullTextSearch_Findings(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	now := time.Now()

	loopID := "loop-fts-1"
	finding1, err := client.Finding.Create().
		SetID("finding-1").
		SetLoopID(loopID).
		SetHeadSha("deadbeef").
		SetGateKind("deep_review").
		SetStableFindingID("sf-1").
		SetSeverity("high").
		SetCategory("correctness").
		SetTitle("nil pointer dereference on empty input").
		SetDetail("Critical error in production cluster with pod failures").
		SetCreatedAt(now).
		Save(ctx)
	require.NoError(t, err)

	finding2, err := client.Finding.Create().
		SetID("finding-2").
		SetLoopID(loopID).
		SetHeadSha("deadbeef").
		SetGateKind("deep_review").
		SetStableFindingID("sf-2").
		SetSeverity("low").
		SetCategory("style").
		SetTitle("inconsistent naming").
		SetDetail("Warning: high memory usage detected").
		SetCreatedAt(now).
		Save(ctx)
	require.NoError(t, err)

	rows, err := client.DB().QueryContext(ctx,
		`SELECT finding_id FROM findings
		WHERE to_tsvector('english', detail) @@ to_tsquery('english', $1)`,
		"error & production",
	)
	require.NoError(t, err)
	defer rows.Close()

	var results []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		results = append(results, id)
	}
	assert.Len(t, results, 1)
	assert.Equal(t, finding1.ID, results[0])

	rows2, err := client.DB().QueryContext(ctx,
		`SELECT finding_id FROM findings
		WHERE to_tsvector('english', detail) @@ to_tsquery('english', $1)`,
		"memory",
	)
	require.NoError(t, err)
	defer rows2.Close()

	var results2 []string
	for rows2.Next() {
		var id string
		require.NoError(t, rows2.Scan(&id))
		results2 = append(results2, id)
	}
	assert.Len(t, results2, 1)
	assert.Equal(t, finding2.ID, results2[0])
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     database.Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: database.Config{
				Host:         "localhost",
				Port:         5432,
				User:         "test",
				Password:     "test",
				Database:     "test",
				SSLMode:      "disable",
				MaxOpenConns: 10,
				MaxIdleConns: 5,
			},
			wantErr: false,
		},
		{
			name: "missing password",
			cfg: database.Config{
				Host:         "localhost",
				Port:         5432,
				User:         "test",
				Password:     "",
				Database:     "test",
				MaxOpenConns: 10,
				MaxIdleConns: 5,
			},
			wantErr: true,
		},
		{
			name: "idle conns exceed max conns",
			cfg: database.Config{
				Host:         "localhost",
				Port:         5432,
				User:         "test",
				Password:     "test",
				Database:     "test",
				MaxOpenConns: 5,
				MaxIdleConns: 10,
			},
			wantErr: true,
		},
		{
			name: "zero max open conns",
			cfg: database.Config{
				Host:         "localhost",
				Port:         5432,
				User:         "test",
				Password:     "test",
				Database:     "test",
				MaxOpenConns: 0,
				MaxIdleConns: 0,
			},
			wantErr: true,
		},
		{
			name: "negative idle conns",
			cfg: database.Config{
				Host:         "localhost",
				Port:         5432,
				User:         "test",
				Password:     "test",
				Database:     "test",
				MaxOpenConns: 10,
				MaxIdleConns: -1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
