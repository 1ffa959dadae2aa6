//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/activitydedup/internal/domain"
	"example.com/activitydedup/internal/scanner"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("activities"),
		postgrescontainer.WithUsername("dedup"),
		postgrescontainer.WithPassword("dedup"),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrations must be re-runnable")
	return pool
}

func insertActivity(t *testing.T, pool *pgxpool.Pool, ownerID string, source domain.Source, start time.Time, distance float64) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO activities (owner_id, source, start_time, distance_meters) VALUES ($1,$2,$3,$4) RETURNING activity_id`,
		ownerID, string(source), start, distance).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestScanResolveRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t)
	store := NewStore(pool)

	day := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	match := insertActivity(t, pool, "owner-1", domain.SourceDeviceSync, day, 10000)
	dup := insertActivity(t, pool, "owner-1", domain.SourceAppSync, day.Add(7*time.Hour+12*time.Minute), 10120)
	insertActivity(t, pool, "owner-2", domain.SourceAppSync, day.Add(time.Hour), 10000)

	cfg := scanner.DefaultConfig()
	cfg.RatePerSecond = 0
	svc := scanner.NewService(scanner.New(store, cfg), store)
	window := scanner.Window{From: day, To: day.AddDate(0, 1, 0)}

	for i := 0; i < 2; i++ {
		summary, err := svc.ScanAndFlag(ctx, "owner-1", window)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Flagged)
	}

	var flags int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM workout_flags WHERE activity_id=$1`, dup).Scan(&flags))
	assert.Equal(t, 1, flags)

	resolver := domain.NewMergeResolver(store, store)
	pending, err := resolver.ListPending(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, match, pending[0].MatchActivity.ID)
	assert.Equal(t, domain.TierLow, pending[0].Confidence)

	_, err = resolver.Reject(ctx, "owner-2", dup)
	require.ErrorIs(t, err, domain.ErrNotFound)

	res, err := resolver.Reject(ctx, "owner-1", dup)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	again, err := resolver.Reject(ctx, "owner-1", dup)
	require.NoError(t, err)
	assert.False(t, again.Changed)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type='activity.merge_resolved'`).Scan(&outboxRows))
	assert.Equal(t, 1, outboxRows)
}

func TestDeleteManyCascadesFlags(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t)
	store := NewStore(pool)

	day := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	insertActivity(t, pool, "owner-1", domain.SourceDeviceSync, day, 5000)
	dup := insertActivity(t, pool, "owner-1", domain.SourceAppSync, day.Add(2*time.Hour), 5000)

	svc := scanner.NewService(scanner.New(store, scanner.DefaultConfig()), store)
	_, err := svc.ScanAndFlag(ctx, "owner-1", scanner.Window{From: day, To: day.AddDate(0, 0, 7)})
	require.NoError(t, err)

	deleted, err := domain.NewActivityService(store).DeleteActivities(ctx, "owner-2", []int64{dup})
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = domain.NewActivityService(store).DeleteActivities(ctx, "owner-1", []int64{dup})
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var flags int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM workout_flags`).Scan(&flags))
	assert.Zero(t, flags)
}
