package outbox

import "example.com/activitydedup/internal/events"

const mergeResolvedSchema = `{
  "type": "object",
  "title": "MergeResolved",
  "properties": {
    "activity_id": {"type": "integer"},
    "owner_id": {"type": "string"},
    "match_activity_id": {"type": "integer"},
    "resolution": {"type": "string", "enum": ["merged", "kept_separate"]},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "owner_id", "resolution", "occurred_at"],
  "additionalProperties": false
}`

const workoutLinkedSchema = `{
  "type": "object",
  "title": "WorkoutLinked",
  "properties": {
    "activity_id": {"type": "integer"},
    "owner_id": {"type": "string"},
    "workout_id": {"type": "integer"},
    "reason": {"type": "string", "maxLength": 500},
    "linked": {"type": "boolean"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "owner_id", "linked", "occurred_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps an event type to its JSON schema.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeMergeResolved: {Schema: mergeResolvedSchema},
	events.TypeWorkoutLinked: {Schema: workoutLinkedSchema},
}
