// Package events defines the payloads exchanged with the rest of the platform.
package events

import "time"

const (
	TypeActivityCreated = "activity.created"
	TypeMergeResolved   = "activity.merge_resolved"
	TypeWorkoutLinked   = "activity.workout_linked"
)

// Event is a domain event queued for delivery through the outbox.
type Event struct {
	Type       string
	OwnerID    string
	ActivityID int64
	Payload    any
}

// ActivityCreated is emitted by ingestion when a new record is stored.
type ActivityCreated struct {
	ActivityID int64     `json:"activity_id"`
	OwnerID    string    `json:"owner_id"`
	Source     string    `json:"source"`
	StartTime  time.Time `json:"start_time"`
}

// MergeResolved records the outcome of a duplicate review.
type MergeResolved struct {
	ActivityID      int64     `json:"activity_id"`
	OwnerID         string    `json:"owner_id"`
	MatchActivityID int64     `json:"match_activity_id,omitempty"`
	Resolution      string    `json:"resolution"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// WorkoutLinked records a link or unlink between an activity and a planned workout.
type WorkoutLinked struct {
	ActivityID int64     `json:"activity_id"`
	OwnerID    string    `json:"owner_id"`
	WorkoutID  int64     `json:"workout_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Linked     bool      `json:"linked"`
	OccurredAt time.Time `json:"occurred_at"`
}
