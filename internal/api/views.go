package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/activitydedup/internal/domain"
	"example.com/activitydedup/internal/scanner"
)

// ActivityView is the wire shape of an activity.
type ActivityView struct {
	ID               int64      `json:"id"`
	Source           string     `json:"source"`
	ActivityType     string     `json:"activityType,omitempty"`
	StartTime        time.Time  `json:"startTime"`
	DistanceMeters   *float64   `json:"distanceMeters"`
	DurationSeconds  *int       `json:"durationSeconds"`
	MergeStatus      string     `json:"mergeStatus"`
	MergedIntoID     *int64     `json:"mergedIntoId,omitempty"`
	PlannedWorkoutID *int64     `json:"plannedWorkoutId,omitempty"`
	LinkReason       *string    `json:"linkReason,omitempty"`
	LinkedAt         *time.Time `json:"linkedAt,omitempty"`
}

// CandidateView is one entry of GET /v1/merge-candidates.
type CandidateView struct {
	Activity        ActivityView `json:"activity"`
	MatchActivity   ActivityView `json:"matchActivity"`
	Confidence      domain.Tier  `json:"confidence"`
	ConfidenceScore int          `json:"confidenceScore"`
}

// ResolveRequest is the body of reject and accept.
type ResolveRequest struct {
	ActivityID int64 `json:"activityId"`
}

// Validate ensures an activity id is present.
func (r ResolveRequest) Validate() error {
	if r.ActivityID <= 0 {
		return errors.New("activityId is required")
	}
	return nil
}

// ResolveResponse reports the activity's merge status after resolution.
type ResolveResponse struct {
	ActivityID  int64  `json:"activityId"`
	MergeStatus string `json:"mergeStatus"`
	Changed     bool   `json:"changed"`
}

// LinkRequest is the body of POST /v1/workout-links.
type LinkRequest struct {
	ActivityID int64  `json:"activityId"`
	WorkoutID  *int64 `json:"workoutId"`
	Reason     string `json:"reason,omitempty"`
}

// Validate ensures both ids are present.
func (r LinkRequest) Validate() error {
	if r.ActivityID <= 0 {
		return errors.New("activityId is required")
	}
	if r.WorkoutID == nil || *r.WorkoutID <= 0 {
		return errors.New("workoutId is required")
	}
	return nil
}

// UnlinkRequest is the body of DELETE /v1/workout-links. It shares the link
// body shape; workoutId and reason are accepted and ignored.
type UnlinkRequest struct {
	ActivityID int64  `json:"activityId"`
	WorkoutID  *int64 `json:"workoutId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Validate ensures an activity id is present.
func (r UnlinkRequest) Validate() error {
	if r.ActivityID <= 0 {
		return errors.New("activityId is required")
	}
	return nil
}

// LinkResponse reports the activity's planned workout after the call.
type LinkResponse struct {
	ActivityID int64  `json:"activityId"`
	WorkoutID  *int64 `json:"workoutId"`
	Changed    bool   `json:"changed"`
}

// DeleteActivitiesRequest is the body of DELETE /v1/activities.
type DeleteActivitiesRequest struct {
	ActivityIDs []int64 `json:"activityIds"`
}

// DeleteActivitiesResponse reports how many rows were removed.
type DeleteActivitiesResponse struct {
	Deleted int64 `json:"deleted"`
}

// maxScanMonths bounds a synchronous scan request.
const maxScanMonths = 12

// ScanRequest is the body of POST /v1/merge-candidates/scan. Dates are
// YYYY-MM-DD (UTC midnight) or RFC 3339 timestamps. Longer ranges go through
// the scanner CLI.
type ScanRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Window parses and validates the requested range.
func (r ScanRequest) Window() (scanner.Window, error) {
	from, err := parseInstant(r.From)
	if err != nil {
		return scanner.Window{}, errors.New("from must be a date or RFC 3339 timestamp")
	}
	to, err := parseInstant(r.To)
	if err != nil {
		return scanner.Window{}, errors.New("to must be a date or RFC 3339 timestamp")
	}
	w := scanner.Window{From: from, To: to}
	if !from.Before(to) {
		return scanner.Window{}, errors.New("from must be before to")
	}
	if to.After(from.AddDate(0, maxScanMonths, 0)) {
		return scanner.Window{}, fmt.Errorf("window must not span more than %d months", maxScanMonths)
	}
	return w, nil
}

func parseInstant(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ScanResponse summarises a scan run.
type ScanResponse struct {
	RunID        string `json:"runId"`
	Candidates   int    `json:"candidates"`
	Flagged      int    `json:"flagged"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
	Chunks       int    `json:"chunks"`
	FailedChunks int    `json:"failedChunks"`
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ID:               a.ID,
		Source:           string(a.Source),
		ActivityType:     a.ActivityType,
		StartTime:        a.StartTime,
		DistanceMeters:   a.DistanceMeters,
		DurationSeconds:  a.DurationSeconds,
		MergeStatus:      string(a.MergeStatus),
		MergedIntoID:     a.MergedIntoID,
		PlannedWorkoutID: a.PlannedWorkoutID,
		LinkReason:       a.LinkReason,
		LinkedAt:         a.LinkedAt,
	}
}

func toCandidateView(p domain.PendingCandidate) CandidateView {
	return CandidateView{
		Activity:        toActivityView(p.Activity),
		MatchActivity:   toActivityView(p.MatchActivity),
		Confidence:      p.Confidence,
		ConfidenceScore: p.ConfidenceScore,
	}
}

func toLinkResponse(res domain.LinkResult) LinkResponse {
	return LinkResponse{ActivityID: res.ActivityID, WorkoutID: res.WorkoutID, Changed: res.Changed}
}
