package domain

import "time"

// Source identifies the integration that produced an activity record.
type Source string

const (
	SourceDeviceSync Source = "device_sync"
	SourceAppSync    Source = "app_sync"
	SourceManual     Source = "manual"
)

// MergeStatus tracks an activity through duplicate review.
type MergeStatus string

const (
	MergeStatusUnlinked      MergeStatus = "unlinked"
	MergeStatusPendingReview MergeStatus = "pending_review"
	MergeStatusKeptSeparate  MergeStatus = "kept_separate"
	MergeStatusMerged        MergeStatus = "merged"
)

// Valid reports whether s is one of the known statuses.
func (s MergeStatus) Valid() bool {
	switch s {
	case MergeStatusUnlinked, MergeStatusPendingReview, MergeStatusKeptSeparate, MergeStatusMerged:
		return true
	}
	return false
}

// Terminal reports whether the status is the outcome of a human review.
// Terminal activities are never flagged again.
func (s MergeStatus) Terminal() bool {
	return s == MergeStatusKeptSeparate || s == MergeStatusMerged
}

// CanTransition reports whether moving from s to next is legal:
// unlinked -> pending_review -> {merged, kept_separate}.
func (s MergeStatus) CanTransition(next MergeStatus) bool {
	switch s {
	case MergeStatusUnlinked:
		return next == MergeStatusPendingReview
	case MergeStatusPendingReview:
		return next == MergeStatusMerged || next == MergeStatusKeptSeparate
	}
	return false
}

// Activity is one workout record ingested from exactly one source.
type Activity struct {
	ID               int64
	OwnerID          string
	Source           Source
	ActivityType     string
	StartTime        time.Time
	DistanceMeters   *float64
	DurationSeconds  *int
	MergeStatus      MergeStatus
	MergedIntoID     *int64
	PlannedWorkoutID *int64
	LinkReason       *string
	LinkedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PlannedWorkout is a scheduled training-plan entry an activity can be linked to.
type PlannedWorkout struct {
	ID            int64
	OwnerID       string
	ScheduledDate time.Time
	WorkoutType   string
	Description   string
	Completed     bool
}

// Cursor is a keyset position in (start_time, id) ascending order.
type Cursor struct {
	StartTime time.Time
	ID        int64
}
