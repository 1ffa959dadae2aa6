package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"example.com/activitydedup/internal/events"
	"example.com/activitydedup/internal/observability"
)

const (
	ResolutionMerged       = "merged"
	ResolutionKeptSeparate = "kept_separate"
)

// Resolution reports the state of an activity after a resolver call.
// Changed is false when the call was an idempotent replay.
type Resolution struct {
	ActivityID  int64
	MergeStatus MergeStatus
	Changed     bool
}

// MergeResolver drives the human side of duplicate review.
type MergeResolver struct {
	uow   UnitOfWork
	flags FlagStore
}

// NewMergeResolver constructs a MergeResolver.
func NewMergeResolver(uow UnitOfWork, flags FlagStore) *MergeResolver {
	return &MergeResolver{uow: uow, flags: flags}
}

// ListPending returns the owner's open merge candidates.
func (r *MergeResolver) ListPending(ctx context.Context, ownerID string) ([]PendingCandidate, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, eris.Wrap(ErrInvalidInput, "owner id is required")
	}
	return r.flags.ListPendingMergeCandidates(ctx, ownerID)
}

// Reject keeps the flagged activity separate from its potential match.
func (r *MergeResolver) Reject(ctx context.Context, ownerID string, activityID int64) (Resolution, error) {
	if err := validateActivityRef(ownerID, activityID); err != nil {
		return Resolution{}, err
	}

	var res Resolution
	err := r.uow.WithinTx(ctx, ownerID, func(tx Tx) error {
		act, err := tx.LockActivity(ctx, activityID)
		if err != nil {
			return err
		}
		if act == nil {
			return ErrNotFound
		}
		flag, err := tx.MergeCandidate(ctx, activityID)
		if err != nil {
			return err
		}

		res = Resolution{ActivityID: act.ID, MergeStatus: act.MergeStatus}
		switch act.MergeStatus {
		case MergeStatusKeptSeparate:
			return clearFlag(ctx, tx, flag)
		case MergeStatusMerged:
			return eris.Wrapf(ErrConflict, "activity %d is already merged", act.ID)
		case MergeStatusUnlinked:
			return ErrNotFound
		}

		if err := tx.SetMergeStatus(ctx, act.ID, MergeStatusKeptSeparate, nil); err != nil {
			return err
		}
		if err := clearFlag(ctx, tx, flag); err != nil {
			return err
		}

		event := events.MergeResolved{
			ActivityID: act.ID,
			OwnerID:    ownerID,
			Resolution: ResolutionKeptSeparate,
			OccurredAt: time.Now().UTC(),
		}
		if flag != nil {
			event.MatchActivityID = flag.Data.PotentialMatchID
		}
		if err := tx.RecordEvent(ctx, events.Event{Type: events.TypeMergeResolved, OwnerID: ownerID, ActivityID: act.ID, Payload: event}); err != nil {
			return err
		}

		res.MergeStatus = MergeStatusKeptSeparate
		res.Changed = true
		return nil
	})
	observability.RecordResolution("reject", outcome(err, res.Changed))
	if err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// Accept marks the flagged activity as a merged duplicate of its potential
// match. The status change, the flag removal and the outbox event commit
// together.
func (r *MergeResolver) Accept(ctx context.Context, ownerID string, activityID int64) (Resolution, error) {
	if err := validateActivityRef(ownerID, activityID); err != nil {
		return Resolution{}, err
	}

	var res Resolution
	err := r.uow.WithinTx(ctx, ownerID, func(tx Tx) error {
		act, err := tx.LockActivity(ctx, activityID)
		if err != nil {
			return err
		}
		if act == nil {
			return ErrNotFound
		}
		flag, err := tx.MergeCandidate(ctx, activityID)
		if err != nil {
			return err
		}

		res = Resolution{ActivityID: act.ID, MergeStatus: act.MergeStatus}
		switch act.MergeStatus {
		case MergeStatusMerged:
			return clearFlag(ctx, tx, flag)
		case MergeStatusKeptSeparate:
			return eris.Wrapf(ErrConflict, "activity %d was kept separate", act.ID)
		case MergeStatusUnlinked:
			return ErrNotFound
		}

		var mergedInto *int64
		if flag != nil {
			match, err := tx.LockActivity(ctx, flag.Data.PotentialMatchID)
			if err != nil {
				return err
			}
			if match == nil {
				// stale flag: the match was deleted after the scan
				return ErrNotFound
			}
			mergedInto = &match.ID
		}

		if err := tx.SetMergeStatus(ctx, act.ID, MergeStatusMerged, mergedInto); err != nil {
			return err
		}
		if err := clearFlag(ctx, tx, flag); err != nil {
			return err
		}

		event := events.MergeResolved{
			ActivityID: act.ID,
			OwnerID:    ownerID,
			Resolution: ResolutionMerged,
			OccurredAt: time.Now().UTC(),
		}
		if mergedInto != nil {
			event.MatchActivityID = *mergedInto
		}
		if err := tx.RecordEvent(ctx, events.Event{Type: events.TypeMergeResolved, OwnerID: ownerID, ActivityID: act.ID, Payload: event}); err != nil {
			return err
		}

		res.MergeStatus = MergeStatusMerged
		res.Changed = true
		return nil
	})
	observability.RecordResolution("accept", outcome(err, res.Changed))
	if err != nil {
		return Resolution{}, err
	}
	return res, nil
}

func clearFlag(ctx context.Context, tx Tx, flag *WorkoutFlag) error {
	if flag == nil {
		return nil
	}
	return tx.DeleteMergeCandidate(ctx, flag.ActivityID)
}

func validateActivityRef(ownerID string, activityID int64) error {
	if strings.TrimSpace(ownerID) == "" {
		return eris.Wrap(ErrInvalidInput, "owner id is required")
	}
	if activityID <= 0 {
		return eris.Wrapf(ErrInvalidInput, "activity id %d must be positive", activityID)
	}
	return nil
}

func outcome(err error, changed bool) string {
	switch {
	case err == nil && changed:
		return "changed"
	case err == nil:
		return "noop"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	}
	return "error"
}
