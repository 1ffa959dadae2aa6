package domain

import "time"

// FlagType enumerates automated findings attached to an activity.
type FlagType string

const FlagTypeMergeCandidate FlagType = "merge_candidate"

// MergeCandidateData is the flag_data payload of a merge_candidate flag.
type MergeCandidateData struct {
	PotentialMatchID int64   `json:"potential_match_id"`
	Confidence       Tier    `json:"confidence"`
	ConfidenceScore  float64 `json:"confidence_score"`
}

// WorkoutFlag annotates one activity. At most one flag per (activity, type) exists.
type WorkoutFlag struct {
	ID         int64
	ActivityID int64
	FlagType   FlagType
	Data       MergeCandidateData
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PendingCandidate is a flagged activity resolved against its potential match.
type PendingCandidate struct {
	Activity        Activity
	MatchActivity   Activity
	Confidence      Tier
	ConfidenceScore int
}
