package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dlqCols = []string{"dlq_id", "owner_id", "event_id", "event_type", "topic", "payload", "reason", "aggregate_type", "aggregate_id", "schema_subject", "partition_key", "retry_count"}

func dlqRow(id int64, eventType string, retries int) []any {
	return []any{
		id, "owner-1", id * 10, eventType, "activity_link_events", []byte(`{"activity_id":2}`), "kafka down",
		"activity", "2", "activity_link_events-value", "owner-1", retries,
	}
}

func TestDLQManagerRequeuesAndQuarantines(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM outbox_dlq").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(dlqCols).
			AddRow(dlqRow(1, "activity.workout_linked", 5)...).
			AddRow(dlqRow(2, "activity.workout_linked", 0)...))

	mock.ExpectBegin()
	mock.ExpectExec("SET quarantined_at").WithArgs("retry limit reached", int64(1)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs("owner-1", "activity", "2", "activity.workout_linked", "activity_link_events", "activity_link_events-value", "owner-1", []byte(`{"activity_id":2}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM outbox_dlq").WithArgs(int64(2)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	quarantined := dlqOutcomes.WithLabelValues("activity.workout_linked", dlqQuarantined)
	requeued := dlqOutcomes.WithLabelValues("activity.workout_linked", dlqRequeued)
	beforeQuarantined := testutil.ToFloat64(quarantined)
	beforeRequeued := testutil.ToFloat64(requeued)

	processed, err := NewDLQManager(mock, 5, time.Second).RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.InDelta(t, beforeQuarantined+1, testutil.ToFloat64(quarantined), 0.0001)
	assert.InDelta(t, beforeRequeued+1, testutil.ToFloat64(requeued), 0.0001)
	assert.Zero(t, testutil.ToFloat64(dlqBacklog))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDLQManagerReschedulesUnreplayableEntries(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM outbox_dlq").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(dlqCols).AddRow(dlqRow(3, "activity.unknown", 2)...))
	mock.ExpectBegin()
	mock.ExpectExec("SET retry_count = retry_count \\+ 1").
		WithArgs(4*time.Second, pgxmock.AnyArg(), int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	retries := dlqOutcomes.WithLabelValues("activity.unknown", dlqRescheduled)
	before := testutil.ToFloat64(retries)

	processed, err := NewDLQManager(mock, 5, time.Second).RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.InDelta(t, before+1, testutil.ToFloat64(retries), 0.0001)
	assert.Equal(t, float64(1), testutil.ToFloat64(dlqBacklog))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBackoffDelayIsCapped(t *testing.T) {
	m := NewDLQManager(nil, 0, time.Minute)
	assert.Equal(t, time.Minute, m.backoffDelay(1))
	assert.Equal(t, 4*time.Minute, m.backoffDelay(3))
	assert.Equal(t, time.Hour, m.backoffDelay(8))
	assert.Equal(t, time.Hour, m.backoffDelay(64))
}
