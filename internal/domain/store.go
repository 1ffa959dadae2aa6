package domain

import (
	"context"
	"time"

	"example.com/activitydedup/internal/events"
)

// ActivityStore reads and bulk-deletes owner-scoped activities.
type ActivityStore interface {
	// ListWindow returns activities with from <= start_time < to ordered by
	// (start_time, id) ascending, resuming after cursor when non-nil.
	ListWindow(ctx context.Context, ownerID string, from, to time.Time, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	DeleteMany(ctx context.Context, ownerID string, ids []int64) (int64, error)
}

// FlagStore lists open merge candidates. Writes go through Tx so that flag
// and status changes commit together.
type FlagStore interface {
	// ListPendingMergeCandidates skips flags whose potential match no longer exists.
	ListPendingMergeCandidates(ctx context.Context, ownerID string) ([]PendingCandidate, error)
}

// Tx is an owner-scoped unit of work. Every lookup filters by the owner the
// transaction was opened for; rows of other owners behave as missing.
type Tx interface {
	// LockActivity returns nil, nil when the row is absent or not owned.
	LockActivity(ctx context.Context, activityID int64) (*Activity, error)
	SetMergeStatus(ctx context.Context, activityID int64, status MergeStatus, mergedInto *int64) error
	SetPlannedWorkout(ctx context.Context, activityID int64, workoutID *int64, reason *string, linkedAt *time.Time) error
	PlannedWorkout(ctx context.Context, workoutID int64) (*PlannedWorkout, error)
	MergeCandidate(ctx context.Context, activityID int64) (*WorkoutFlag, error)
	// UpsertMergeCandidate inserts or replaces the (activity, merge_candidate) flag.
	UpsertMergeCandidate(ctx context.Context, activityID int64, data MergeCandidateData) error
	DeleteMergeCandidate(ctx context.Context, activityID int64) error
	RecordEvent(ctx context.Context, event events.Event) error
}

// UnitOfWork runs fn inside a single transaction scoped to ownerID. fn's
// error rolls everything back.
type UnitOfWork interface {
	WithinTx(ctx context.Context, ownerID string, fn func(Tx) error) error
}
