package domain

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"example.com/activitydedup/internal/events"
	"example.com/activitydedup/internal/observability"
)

// MaxLinkReasonLength bounds the audit reason stored with a link.
const MaxLinkReasonLength = 500

// LinkResult reports the planned-workout reference after a linker call.
type LinkResult struct {
	ActivityID int64
	WorkoutID  *int64
	Changed    bool
}

// WorkoutLinker manually links activities to planned workouts.
type WorkoutLinker struct {
	uow UnitOfWork
}

// NewWorkoutLinker constructs a WorkoutLinker.
func NewWorkoutLinker(uow UnitOfWork) *WorkoutLinker {
	return &WorkoutLinker{uow: uow}
}

// Link points the activity at workoutID and stores reason for audit. Linking
// to the workout already referenced succeeds; a different workout replaces it.
func (l *WorkoutLinker) Link(ctx context.Context, ownerID string, activityID, workoutID int64, reason string) (LinkResult, error) {
	if err := validateActivityRef(ownerID, activityID); err != nil {
		return LinkResult{}, err
	}
	if workoutID <= 0 {
		return LinkResult{}, eris.Wrapf(ErrInvalidInput, "workout id %d must be positive", workoutID)
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > MaxLinkReasonLength {
		return LinkResult{}, eris.Wrapf(ErrInvalidInput, "reason exceeds %d characters", MaxLinkReasonLength)
	}

	var res LinkResult
	err := l.uow.WithinTx(ctx, ownerID, func(tx Tx) error {
		act, err := tx.LockActivity(ctx, activityID)
		if err != nil {
			return err
		}
		if act == nil {
			return ErrNotFound
		}
		workout, err := tx.PlannedWorkout(ctx, workoutID)
		if err != nil {
			return err
		}
		if workout == nil {
			return ErrNotFound
		}

		res = LinkResult{ActivityID: act.ID, WorkoutID: &workout.ID}
		if act.PlannedWorkoutID != nil && *act.PlannedWorkoutID == workout.ID && sameReason(act.LinkReason, reason) {
			return nil
		}

		var stored *string
		if reason != "" {
			stored = &reason
		}
		now := time.Now().UTC()
		if err := tx.SetPlannedWorkout(ctx, act.ID, &workout.ID, stored, &now); err != nil {
			return err
		}
		if err := tx.RecordEvent(ctx, events.Event{
			Type:       events.TypeWorkoutLinked,
			OwnerID:    ownerID,
			ActivityID: act.ID,
			Payload: events.WorkoutLinked{
				ActivityID: act.ID,
				OwnerID:    ownerID,
				WorkoutID:  workout.ID,
				Reason:     reason,
				Linked:     true,
				OccurredAt: now,
			},
		}); err != nil {
			return err
		}
		res.Changed = true
		return nil
	})
	observability.RecordResolution("link", outcome(err, res.Changed))
	if err != nil {
		return LinkResult{}, err
	}
	return res, nil
}

// Unlink clears the planned-workout reference. Unlinking an unlinked activity succeeds.
func (l *WorkoutLinker) Unlink(ctx context.Context, ownerID string, activityID int64) (LinkResult, error) {
	if err := validateActivityRef(ownerID, activityID); err != nil {
		return LinkResult{}, err
	}

	var res LinkResult
	err := l.uow.WithinTx(ctx, ownerID, func(tx Tx) error {
		act, err := tx.LockActivity(ctx, activityID)
		if err != nil {
			return err
		}
		if act == nil {
			return ErrNotFound
		}
		res = LinkResult{ActivityID: act.ID}
		if act.PlannedWorkoutID == nil {
			return nil
		}

		previous := *act.PlannedWorkoutID
		if err := tx.SetPlannedWorkout(ctx, act.ID, nil, nil, nil); err != nil {
			return err
		}
		if err := tx.RecordEvent(ctx, events.Event{
			Type:       events.TypeWorkoutLinked,
			OwnerID:    ownerID,
			ActivityID: act.ID,
			Payload: events.WorkoutLinked{
				ActivityID: act.ID,
				OwnerID:    ownerID,
				WorkoutID:  previous,
				Linked:     false,
				OccurredAt: time.Now().UTC(),
			},
		}); err != nil {
			return err
		}
		res.Changed = true
		return nil
	})
	observability.RecordResolution("unlink", outcome(err, res.Changed))
	if err != nil {
		return LinkResult{}, err
	}
	return res, nil
}

func sameReason(stored *string, reason string) bool {
	if stored == nil {
		return reason == ""
	}
	return *stored == reason
}
