package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"example.com/activitydedup/internal/events"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(ownerID string, event events.Event) string
}

func byOwner(ownerID string, _ events.Event) string { return ownerID }

var eventCatalog = map[string]EventMetadata{
	events.TypeMergeResolved: {
		Topic:          "activity_merge_events",
		SchemaSubject:  "activity_merge_events-value",
		PartitionKeyFn: byOwner,
	},
	events.TypeWorkoutLinked: {
		Topic:          "activity_link_events",
		SchemaSubject:  "activity_link_events-value",
		PartitionKeyFn: byOwner,
	},
}

func insertOutbox(ctx context.Context, tx pgx.Tx, ownerID string, event events.Event) error {
	meta, ok := eventCatalog[event.Type]
	if !ok {
		return eris.Errorf("postgres: unknown event type %q", event.Type)
	}
	body, err := json.Marshal(event.Payload)
	if err != nil {
		return eris.Wrapf(err, "postgres: encode %s payload", event.Type)
	}

	const stmt = `INSERT INTO outbox (owner_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		ownerID,
		"activity",
		strconv.FormatInt(event.ActivityID, 10),
		event.Type,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(ownerID, event),
		body,
		fmt.Sprintf("%s:%d:%s", event.Type, event.ActivityID, uuid.NewString()),
	)
	return upstream(err, "insert outbox event")
}
