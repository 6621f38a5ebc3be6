package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{URL: connStr, MinConns: 1, MaxConns: 5})
	require.NoError(t, err)

	t.Cleanup(client.Close)

	return client
}

func TestDatabaseClient_ConnectionPool(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Pool().Ping(ctx))

	health, err := Health(ctx, client.Pool())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Greater(t, health.MaxConns, int32(0))
}

func TestDatabaseClient_MigrationsApplied(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	playerID := uuid.New()
	_, err := client.Pool().Exec(ctx, `INSERT INTO players (player_id) VALUES ($1)`, playerID)
	require.NoError(t, err)

	var score float64
	err = client.Pool().QueryRow(ctx,
		`SELECT surgeon_butcher_score FROM players WHERE player_id = $1`, playerID,
	).Scan(&score)
	require.NoError(t, err)
	assert.Equal(t, float64(0), score)

	segmentID := uuid.New()
	_, err = client.Pool().Exec(ctx,
		`INSERT INTO segments (segment_id, build_id, scene_id) VALUES ($1, $2, $3)`,
		segmentID, "build-1", "scene-1")
	require.NoError(t, err)

	queueID := uuid.New()
	_, err = client.Pool().Exec(ctx,
		`INSERT INTO analysis_queue (queue_id, segment_id, priority) VALUES ($1, $2, $3)`,
		queueID, segmentID, 5)
	require.NoError(t, err)

	// The partial unique index over (segment_id) WHERE status='pending' must
	// reject a second pending row for the same segment.
	_, err = client.Pool().Exec(ctx,
		`INSERT INTO analysis_queue (queue_id, segment_id, priority) VALUES ($1, $2, $3)`,
		uuid.New(), segmentID, 9)
	assert.Error(t, err)
}

func TestConfig_PgxPoolAcceptsConnString(t *testing.T) {
	// Exercises the URL-parsing path without a live database: a malformed
	// scheme must fail fast in ParseConfig, not at first query.
	_, err := NewClient(context.Background(), Config{URL: "not-a-url", MinConns: 1, MaxConns: 1})
	assert.Error(t, err)
}
