package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"example.com/activitydedup/internal/domain"
	"example.com/activitydedup/internal/observability"
)

// ListPendingMergeCandidates implements domain.FlagStore. Flags whose
// potential match has been deleted are skipped and counted as stale.
func (s *Store) ListPendingMergeCandidates(ctx context.Context, ownerID string) ([]domain.PendingCandidate, error) {
	const flagged = `SELECT a.activity_id, a.owner_id, a.source, a.activity_type, a.start_time, a.distance_meters, a.duration_seconds,
        a.merge_status, a.merged_into_id, a.planned_workout_id, a.link_reason, a.linked_at, a.created_at, a.updated_at, f.flag_data
        FROM workout_flags f
        JOIN activities a ON a.activity_id = f.activity_id
        WHERE a.owner_id=$1 AND f.flag_type=$2
        ORDER BY a.start_time, a.activity_id`
	const matches = `SELECT ` + activityColumns + ` FROM activities WHERE owner_id=$1 AND activity_id = ANY($2)`

	type pending struct {
		act  domain.Activity
		data domain.MergeCandidateData
	}

	var out []domain.PendingCandidate
	err := s.withOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, flagged, ownerID, string(domain.FlagTypeMergeCandidate))
		if err != nil {
			return upstream(err, "list merge candidates")
		}
		var items []pending
		for rows.Next() {
			var (
				item pending
				raw  []byte
			)
			if err := rows.Scan(append(activityDest(&item.act), &raw)...); err != nil {
				rows.Close()
				return upstream(err, "scan merge candidate")
			}
			if err := json.Unmarshal(raw, &item.data); err != nil {
				zap.L().Warn("skipping malformed merge candidate flag",
					zap.String("component", "postgres"),
					zap.Int64("activity_id", item.act.ID),
					zap.Error(err))
				continue
			}
			items = append(items, item)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return upstream(err, "iterate merge candidates")
		}
		if len(items) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.data.PotentialMatchID)
		}
		mrows, err := tx.Query(ctx, matches, ownerID, ids)
		if err != nil {
			return upstream(err, "load potential matches")
		}
		defer mrows.Close()

		byID := make(map[int64]domain.Activity, len(ids))
		for mrows.Next() {
			act, err := scanActivity(mrows)
			if err != nil {
				return upstream(err, "scan potential match")
			}
			byID[act.ID] = act
		}
		if err := mrows.Err(); err != nil {
			return upstream(err, "iterate potential matches")
		}

		stale := 0
		out = make([]domain.PendingCandidate, 0, len(items))
		for _, item := range items {
			match, ok := byID[item.data.PotentialMatchID]
			if !ok {
				stale++
				continue
			}
			out = append(out, domain.PendingCandidate{
				Activity:        item.act,
				MatchActivity:   match,
				Confidence:      item.data.Confidence,
				ConfidenceScore: domain.DisplayScore(item.data.ConfidenceScore),
			})
		}
		observability.RecordStaleFlags(stale)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out == nil {
		out = []domain.PendingCandidate{}
	}
	return out, nil
}
