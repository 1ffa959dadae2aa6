package domain

import (
	"fmt"
	"math"
	"strings"
)

// Tier is the confidence classification assigned to a candidate pair.
type Tier int

const (
	TierNoMatch Tier = iota
	TierLow
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return "no_match"
	}
}

// ParseTier converts the stored representation back into a Tier.
func ParseTier(value string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return TierHigh, nil
	case "medium":
		return TierMedium, nil
	case "low":
		return TierLow, nil
	case "no_match":
		return TierNoMatch, nil
	}
	return TierNoMatch, fmt.Errorf("unknown confidence tier %q", value)
}

// MarshalText implements encoding.TextMarshaler. The wire form is upper case
// (HIGH, MEDIUM, LOW); ParseTier accepts either casing.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(strings.ToUpper(t.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Surfaced reports whether a pair at this tier becomes a review candidate.
func (t Tier) Surfaced(includeLow bool) bool {
	switch t {
	case TierHigh, TierMedium:
		return true
	case TierLow:
		return includeLow
	}
	return false
}

// DisplayScore rounds a stored confidence score for presentation.
func DisplayScore(score float64) int {
	return int(math.Round(score))
}
