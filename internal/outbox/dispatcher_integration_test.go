//go:build integration

package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/activitydedup/internal/events"
	"example.com/activitydedup/internal/persistence/postgres"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
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

	require.NoError(t, postgres.Migrate(ctx, pool))
	return pool
}

func seedOutbox(t *testing.T, pool *pgxpool.Pool, ownerID, eventType string) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO outbox (owner_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1, 'activity', '2', $2, 'activity_link_events', 'activity_link_events-value', $1, $3)
         RETURNING event_id`,
		ownerID, eventType, []byte(`{"activity_id":2,"owner_id":"`+ownerID+`","linked":true,"occurred_at":"2024-06-01T00:00:00Z"}`),
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestDispatcherMarksDeliveredRowsPublished(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	seedOutbox(t, pool, "owner-1", events.TypeWorkoutLinked)
	seedOutbox(t, pool, "owner-1", events.TypeWorkoutLinked)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 21}
	require.NoError(t, NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5).processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Len(t, producer.writes[0].messages, 2)
	require.Len(t, registry.calls, 1)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 2, published)
}

func TestFailedDeliveryIsReplayedFromDLQ(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	eventID := seedOutbox(t, pool, "owner-1", events.TypeWorkoutLinked)

	failing := NewDispatcher(pool, &stubProducer{err: errors.New("kafka write failed")}, &stubRegistry{id: 7}, 10*time.Millisecond, 5)
	require.NoError(t, failing.processBatch(ctx))

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&reason))
	require.Contains(t, reason, "kafka write failed")

	processed, err := NewDLQManager(pool, 5, time.Second).RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	var remaining int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&remaining))
	require.Zero(t, remaining)

	producer := &stubProducer{}
	require.NoError(t, NewDispatcher(pool, producer, &stubRegistry{id: 7}, 10*time.Millisecond, 5).processBatch(ctx))
	require.Len(t, producer.writes, 1)
	require.Equal(t, "owner-1", string(producer.writes[0].messages[0].Key))
}

func TestUnknownEventTypeIsQuarantinedAfterRetries(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	eventID := seedOutbox(t, pool, "owner-1", "activity.unknown")

	require.NoError(t, NewDispatcher(pool, &stubProducer{}, &stubRegistry{id: 1}, 10*time.Millisecond, 5).processBatch(ctx))

	manager := NewDLQManager(pool, 1, time.Millisecond)
	_, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `UPDATE outbox_dlq SET next_retry_at = NOW() - INTERVAL '1 second' WHERE event_id = $1`, eventID)
	require.NoError(t, err)
	_, err = manager.RunOnce(ctx, 10)
	require.NoError(t, err)

	var quarantined bool
	require.NoError(t, pool.QueryRow(ctx, `SELECT quarantined_at IS NOT NULL FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&quarantined))
	require.True(t, quarantined)
}
