package outbox

import (
	"context"

	"github.com/rotisserie/eris"
)

// DLQWriter persists events that could not be delivered.
type DLQWriter struct {
	db DB
}

// NewDLQWriter constructs a DLQWriter.
func NewDLQWriter(db DB) *DLQWriter {
	return &DLQWriter{db: db}
}

// Write records msg in outbox_dlq with reason, due for an immediate retry.
func (w *DLQWriter) Write(ctx context.Context, msg Message, reason string) error {
	_, err := w.db.Exec(ctx,
		`INSERT INTO outbox_dlq (owner_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`,
		msg.OwnerID, msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason, msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
	)
	return eris.Wrapf(err, "outbox: write dlq entry for event %d", msg.EventID)
}
