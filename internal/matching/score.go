// Package matching scores whether two activity records from different
// sources describe the same workout.
package matching

import (
	"math"
	"time"

	"example.com/activitydedup/internal/domain"
)

// Mode is the timestamp resolution a pair is compared at.
type Mode int

const (
	// ModePrecise compares full timestamps.
	ModePrecise Mode = iota
	// ModeDateOnly is used when either side lost its time of day.
	ModeDateOnly
)

func (m Mode) String() string {
	if m == ModeDateOnly {
		return "date_only"
	}
	return "precise"
}

const (
	DateOnlyWindow = 24 * time.Hour
	PreciseWindow  = 2 * time.Minute
)

// Reason explains why a pair did not match.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonSameSource      Reason = "same_source"
	ReasonOutsideWindow   Reason = "outside_window"
	ReasonMissingDistance Reason = "missing_distance"
	ReasonZeroDistance    Reason = "zero_distance"
	ReasonBelowThreshold  Reason = "below_threshold"
)

// Result is the outcome of Score. Tier is domain.TierNoMatch when the pair is rejected.
type Result struct {
	Mode             Mode
	Score            float64
	TimeDiffMinutes  float64
	DistanceDiffPct  float64
	DurationDiffPct  float64
	DurationCompared bool
	Tier             domain.Tier
	Reason           Reason
}

// Matched reports whether the pair reached any confidence tier.
func (r Result) Matched() bool {
	return r.Tier != domain.TierNoMatch
}

// Score compares a with b. Percent differences are relative to b. It is pure
// and never fails: pairs that miss a gate come back as TierNoMatch.
func Score(a, b domain.Activity) Result {
	mode := DetectMode(a.StartTime, b.StartTime)
	if a.Source == b.Source {
		return Result{Mode: mode, Reason: ReasonSameSource}
	}

	delta := a.StartTime.Sub(b.StartTime)
	if delta < 0 {
		delta = -delta
	}

	var timeDiff float64
	switch mode {
	case ModeDateOnly:
		if delta > DateOnlyWindow {
			return Result{Mode: mode, Reason: ReasonOutsideWindow}
		}
	default:
		if delta > PreciseWindow {
			return Result{Mode: mode, Reason: ReasonOutsideWindow}
		}
		timeDiff = delta.Minutes()
	}

	if a.DistanceMeters == nil || b.DistanceMeters == nil {
		return Result{Mode: mode, TimeDiffMinutes: timeDiff, Reason: ReasonMissingDistance}
	}
	if *b.DistanceMeters <= 0 {
		return Result{Mode: mode, TimeDiffMinutes: timeDiff, Reason: ReasonZeroDistance}
	}
	distancePct := math.Abs(*a.DistanceMeters-*b.DistanceMeters) / *b.DistanceMeters * 100

	res := Result{
		Mode:            mode,
		TimeDiffMinutes: timeDiff,
		DistanceDiffPct: distancePct,
	}
	if a.DurationSeconds != nil && b.DurationSeconds != nil && *b.DurationSeconds > 0 {
		res.DurationCompared = true
		res.DurationDiffPct = math.Abs(float64(*a.DurationSeconds-*b.DurationSeconds)) / float64(*b.DurationSeconds) * 100
	}

	res.Score = 100 - timeDiff*10 - distancePct*20
	if res.DurationCompared {
		res.Score -= res.DurationDiffPct * 10
	}

	res.Tier = Classify(mode, res.Score, res.DistanceDiffPct, res.DurationDiffPct)
	if res.Tier == domain.TierNoMatch {
		res.Reason = ReasonBelowThreshold
	}
	return res
}

// Classify maps a composite score to a tier. Date-only pairs compensate for
// the missing clock with tighter distance bounds; precise pairs only ever
// match at HIGH.
func Classify(mode Mode, score, distancePct, durationPct float64) domain.Tier {
	if mode == ModeDateOnly {
		switch {
		case score >= 90 && distancePct <= 5:
			return domain.TierHigh
		case score >= 70 && distancePct <= 1:
			return domain.TierMedium
		case score >= 50:
			return domain.TierLow
		}
		return domain.TierNoMatch
	}

	if score >= 90 && distancePct <= 0.5 && durationPct <= 1 {
		return domain.TierHigh
	}
	return domain.TierNoMatch
}

// DetectMode picks date-only mode when either timestamp sits exactly on UTC midnight.
func DetectMode(a, b time.Time) Mode {
	if dateOnly(a) || dateOnly(b) {
		return ModeDateOnly
	}
	return ModePrecise
}

func dateOnly(t time.Time) bool {
	u := t.UTC()
	return u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0
}
