package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"example.com/activitydedup/internal/domain"
	"example.com/activitydedup/internal/events"
)

// pgTx implements domain.Tx on an owner-scoped pgx transaction.
type pgTx struct {
	tx      pgx.Tx
	ownerID string
}

func (t *pgTx) LockActivity(ctx context.Context, activityID int64) (*domain.Activity, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+activityColumns+`
        FROM activities WHERE owner_id=$1 AND activity_id=$2 FOR UPDATE`, t.ownerID, activityID)
	act, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, upstream(err, "lock activity")
	}
	return &act, nil
}

func (t *pgTx) SetMergeStatus(ctx context.Context, activityID int64, status domain.MergeStatus, mergedInto *int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE activities SET merge_status=$3, merged_into_id=$4, updated_at=NOW()
        WHERE owner_id=$1 AND activity_id=$2`, t.ownerID, activityID, string(status), mergedInto)
	if err != nil {
		return upstream(err, "update merge status")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(domain.ErrNotFound, "activity %d vanished during update", activityID)
	}
	return nil
}

func (t *pgTx) SetPlannedWorkout(ctx context.Context, activityID int64, workoutID *int64, reason *string, linkedAt *time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE activities SET planned_workout_id=$3, link_reason=$4, linked_at=$5, updated_at=NOW()
        WHERE owner_id=$1 AND activity_id=$2`, t.ownerID, activityID, workoutID, reason, linkedAt)
	if err != nil {
		return upstream(err, "update planned workout link")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(domain.ErrNotFound, "activity %d vanished during update", activityID)
	}
	return nil
}

func (t *pgTx) PlannedWorkout(ctx context.Context, workoutID int64) (*domain.PlannedWorkout, error) {
	var (
		w         domain.PlannedWorkout
		scheduled *time.Time
	)
	err := t.tx.QueryRow(ctx, `SELECT workout_id, owner_id, scheduled_date, workout_type, description, completed
        FROM planned_workouts WHERE owner_id=$1 AND workout_id=$2`, t.ownerID, workoutID).
		Scan(&w.ID, &w.OwnerID, &scheduled, &w.WorkoutType, &w.Description, &w.Completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, upstream(err, "load planned workout")
	}
	if scheduled != nil {
		w.ScheduledDate = *scheduled
	}
	return &w, nil
}

func (t *pgTx) MergeCandidate(ctx context.Context, activityID int64) (*domain.WorkoutFlag, error) {
	var (
		flag domain.WorkoutFlag
		raw  []byte
	)
	err := t.tx.QueryRow(ctx, `SELECT f.flag_id, f.activity_id, f.flag_type, f.flag_data, f.created_at, f.updated_at
        FROM workout_flags f JOIN activities a ON a.activity_id = f.activity_id
        WHERE a.owner_id=$1 AND f.activity_id=$2 AND f.flag_type=$3`,
		t.ownerID, activityID, string(domain.FlagTypeMergeCandidate)).
		Scan(&flag.ID, &flag.ActivityID, &flag.FlagType, &raw, &flag.CreatedAt, &flag.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, upstream(err, "load merge candidate")
	}
	if err := json.Unmarshal(raw, &flag.Data); err != nil {
		return nil, eris.Wrapf(err, "postgres: decode flag data for activity %d", activityID)
	}
	return &flag, nil
}

// UpsertMergeCandidate relies on UNIQUE(activity_id, flag_type) so concurrent
// scans over overlapping ranges converge on one row, last write wins.
func (t *pgTx) UpsertMergeCandidate(ctx context.Context, activityID int64, data domain.MergeCandidateData) error {
	body, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "postgres: encode flag data")
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO workout_flags (activity_id, flag_type, flag_data)
        SELECT a.activity_id, $3, $4 FROM activities a WHERE a.owner_id=$1 AND a.activity_id=$2
        ON CONFLICT (activity_id, flag_type)
        DO UPDATE SET flag_data = EXCLUDED.flag_data, updated_at = NOW()`,
		t.ownerID, activityID, string(domain.FlagTypeMergeCandidate), body)
	return upstream(err, "upsert merge candidate")
}

func (t *pgTx) DeleteMergeCandidate(ctx context.Context, activityID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM workout_flags f USING activities a
        WHERE a.activity_id = f.activity_id AND a.owner_id=$1 AND f.activity_id=$2 AND f.flag_type=$3`,
		t.ownerID, activityID, string(domain.FlagTypeMergeCandidate))
	return upstream(err, "delete merge candidate")
}

func (t *pgTx) RecordEvent(ctx context.Context, event events.Event) error {
	return insertOutbox(ctx, t.tx, t.ownerID, event)
}
