package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/activitydedup/internal/domain"
)

const activityColumns = `activity_id, owner_id, source, activity_type, start_time, distance_meters, duration_seconds,
        merge_status, merged_into_id, planned_workout_id, link_reason, linked_at, created_at, updated_at`

// activityDest lists scan targets in activityColumns order.
func activityDest(act *domain.Activity) []any {
	return []any{
		&act.ID, &act.OwnerID, &act.Source, &act.ActivityType, &act.StartTime,
		&act.DistanceMeters, &act.DurationSeconds, &act.MergeStatus, &act.MergedIntoID,
		&act.PlannedWorkoutID, &act.LinkReason, &act.LinkedAt, &act.CreatedAt, &act.UpdatedAt,
	}
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var act domain.Activity
	err := row.Scan(activityDest(&act)...)
	return act, err
}

// ListWindow implements domain.ActivityStore using keyset pagination on
// (start_time, activity_id).
func (s *Store) ListWindow(ctx context.Context, ownerID string, from, to time.Time, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []any{ownerID, from, to, limit + 1}
	query := `SELECT ` + activityColumns + `
        FROM activities WHERE owner_id=$1 AND start_time >= $2 AND start_time < $3`
	if cursor != nil {
		query += ` AND (start_time, activity_id) > ($5, $6)`
		args = append(args, cursor.StartTime, cursor.ID)
	}
	query += ` ORDER BY start_time, activity_id LIMIT $4`

	var results []domain.Activity
	err := s.withOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return upstream(err, "list activity window")
		}
		defer rows.Close()

		results = make([]domain.Activity, 0, limit)
		for rows.Next() {
			act, err := scanActivity(rows)
			if err != nil {
				return upstream(err, "scan activity")
			}
			results = append(results, act)
		}
		return upstream(rows.Err(), "iterate activity window")
	})
	if err != nil {
		return nil, nil, err
	}

	if len(results) <= limit {
		return results, nil, nil
	}
	results = results[:limit]
	last := results[len(results)-1]
	return results, &domain.Cursor{StartTime: last.StartTime, ID: last.ID}, nil
}

// DeleteMany implements domain.ActivityStore. Flags go with their activity via ON DELETE CASCADE.
func (s *Store) DeleteMany(ctx context.Context, ownerID string, ids []int64) (int64, error) {
	var deleted int64
	err := s.withOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM activities WHERE owner_id=$1 AND activity_id = ANY($2)`, ownerID, ids)
		if err != nil {
			return upstream(err, "delete activities")
		}
		deleted = tag.RowsAffected()
		return nil
	})
	return deleted, err
}
