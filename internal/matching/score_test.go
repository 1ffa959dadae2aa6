package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/activitydedup/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func activity(source domain.Source, start time.Time, distance *float64, duration *int) domain.Activity {
	return domain.Activity{
		OwnerID:         "owner-1",
		Source:          source,
		StartTime:       start,
		DistanceMeters:  distance,
		DurationSeconds: duration,
		MergeStatus:     domain.MergeStatusUnlinked,
	}
}

func TestScoreDateOnlyPairFallsToLow(t *testing.T) {
	a := activity(domain.SourceDeviceSync, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), floatPtr(10000), nil)
	b := activity(domain.SourceAppSync, time.Date(2024, time.June, 1, 7, 12, 0, 0, time.UTC), floatPtr(10120), intPtr(3600))

	res := Score(a, b)

	require.Equal(t, ModeDateOnly, res.Mode)
	assert.Zero(t, res.TimeDiffMinutes)
	assert.InDelta(t, 1.19, res.DistanceDiffPct, 0.01)
	assert.False(t, res.DurationCompared)
	assert.InDelta(t, 76.28, res.Score, 0.01)
	assert.Equal(t, domain.TierLow, res.Tier)
	assert.True(t, res.Matched())
}

func TestScoreSameSourceNeverMatches(t *testing.T) {
	start := time.Date(2024, time.June, 1, 7, 0, 0, 0, time.UTC)
	for _, source := range []domain.Source{domain.SourceDeviceSync, domain.SourceAppSync, domain.SourceManual} {
		t.Run(string(source), func(t *testing.T) {
			a := activity(source, start, floatPtr(5000), intPtr(1800))
			b := activity(source, start, floatPtr(5000), intPtr(1800))

			res := Score(a, b)
			assert.Equal(t, domain.TierNoMatch, res.Tier)
			assert.Equal(t, ReasonSameSource, res.Reason)
			assert.False(t, res.Matched())
		})
	}
}

func TestScorePreciseHigh(t *testing.T) {
	a := activity(domain.SourceDeviceSync, time.Date(2024, time.June, 1, 7, 0, 0, 0, time.UTC), floatPtr(10000), intPtr(3600))
	b := activity(domain.SourceAppSync, time.Date(2024, time.June, 1, 7, 0, 30, 0, time.UTC), floatPtr(10010), intPtr(3610))

	res := Score(a, b)

	require.Equal(t, ModePrecise, res.Mode)
	assert.InDelta(t, 0.5, res.TimeDiffMinutes, 0.0001)
	assert.True(t, res.DurationCompared)
	assert.InDelta(t, 90.23, res.Score, 0.01)
	assert.Equal(t, domain.TierHigh, res.Tier)
}

func TestScoreRejections(t *testing.T) {
	morning := time.Date(2024, time.June, 1, 7, 0, 0, 0, time.UTC)
	midnight := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		a, b   domain.Activity
		reason Reason
	}{
		{
			name:   "precise pair three minutes apart",
			a:      activity(domain.SourceDeviceSync, morning, floatPtr(10000), nil),
			b:      activity(domain.SourceAppSync, morning.Add(3*time.Minute), floatPtr(10000), nil),
			reason: ReasonOutsideWindow,
		},
		{
			name:   "date-only pair more than a day apart",
			a:      activity(domain.SourceDeviceSync, midnight, floatPtr(10000), nil),
			b:      activity(domain.SourceAppSync, midnight.Add(25*time.Hour), floatPtr(10000), nil),
			reason: ReasonOutsideWindow,
		},
		{
			name:   "comparison distance is zero",
			a:      activity(domain.SourceDeviceSync, morning, floatPtr(10000), nil),
			b:      activity(domain.SourceAppSync, morning, floatPtr(0), nil),
			reason: ReasonZeroDistance,
		},
		{
			name:   "distance missing",
			a:      activity(domain.SourceDeviceSync, morning, nil, intPtr(3600)),
			b:      activity(domain.SourceAppSync, morning, floatPtr(10000), intPtr(3600)),
			reason: ReasonMissingDistance,
		},
		{
			name:   "precise pair one percent apart",
			a:      activity(domain.SourceDeviceSync, morning, floatPtr(10100), nil),
			b:      activity(domain.SourceAppSync, morning, floatPtr(10000), nil),
			reason: ReasonBelowThreshold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Score(tt.a, tt.b)
			assert.Equal(t, domain.TierNoMatch, res.Tier)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestScoreMissingDurationDoesNotBlockMatch(t *testing.T) {
	a := activity(domain.SourceDeviceSync, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), floatPtr(10000), nil)
	b := activity(domain.SourceAppSync, time.Date(2024, time.June, 1, 6, 0, 0, 0, time.UTC), floatPtr(10000), intPtr(3600))

	res := Score(a, b)
	assert.False(t, res.DurationCompared)
	assert.Equal(t, float64(100), res.Score)
	assert.Equal(t, domain.TierHigh, res.Tier)
}

func TestScoreZeroComparisonDurationIsNotCompared(t *testing.T) {
	start := time.Date(2024, time.June, 1, 7, 0, 0, 0, time.UTC)
	a := activity(domain.SourceDeviceSync, start, floatPtr(10000), intPtr(3600))
	b := activity(domain.SourceAppSync, start, floatPtr(10000), intPtr(0))

	res := Score(a, b)
	assert.False(t, res.DurationCompared)
	assert.Equal(t, domain.TierHigh, res.Tier)
}

func TestScoreIsDeterministic(t *testing.T) {
	a := activity(domain.SourceDeviceSync, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), floatPtr(10000), nil)
	b := activity(domain.SourceAppSync, time.Date(2024, time.June, 1, 7, 12, 0, 0, time.UTC), floatPtr(10120), intPtr(3600))

	first := Score(a, b)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Score(a, b))
	}
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		name        string
		mode        Mode
		score       float64
		distancePct float64
		durationPct float64
		want        domain.Tier
	}{
		{"date-only high at bounds", ModeDateOnly, 90, 5.0, 0, domain.TierHigh},
		{"date-only distance just over high bound", ModeDateOnly, 90, 5.01, 0, domain.TierLow},
		{"date-only medium at bounds", ModeDateOnly, 70, 1.0, 0, domain.TierMedium},
		{"date-only high score but medium distance", ModeDateOnly, 89.99, 1.0, 0, domain.TierMedium},
		{"date-only low", ModeDateOnly, 69.99, 1.0, 0, domain.TierLow},
		{"date-only low floor", ModeDateOnly, 50, 40, 0, domain.TierLow},
		{"date-only below floor", ModeDateOnly, 49.99, 0, 0, domain.TierNoMatch},
		{"precise high at bounds", ModePrecise, 90, 0.5, 1.0, domain.TierHigh},
		{"precise score short", ModePrecise, 89.99, 0, 0, domain.TierNoMatch},
		{"precise distance over", ModePrecise, 95, 0.51, 0, domain.TierNoMatch},
		{"precise duration over", ModePrecise, 95, 0, 1.01, domain.TierNoMatch},
		{"precise never medium", ModePrecise, 75, 0.1, 0, domain.TierNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.mode, tt.score, tt.distancePct, tt.durationPct))
		})
	}
}

func TestDetectModeUsesUTCClock(t *testing.T) {
	precise := time.Date(2024, time.June, 1, 7, 0, 0, 0, time.UTC)
	midnightUTC := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	localMidnight := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.FixedZone("CEST", 2*60*60))

	assert.Equal(t, ModeDateOnly, DetectMode(midnightUTC, precise))
	assert.Equal(t, ModeDateOnly, DetectMode(precise, midnightUTC))
	assert.Equal(t, ModePrecise, DetectMode(localMidnight, precise))
}
