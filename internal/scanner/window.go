package scanner

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"example.com/activitydedup/internal/domain"
)

// PairWindow is the coarse separation below which adjacent activities are scored.
const PairWindow = 24 * time.Hour

// Window is a half-open range [From, To) of activity start times.
type Window struct {
	From time.Time
	To   time.Time
}

// Validate rejects empty or inverted windows.
func (w Window) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return eris.Wrap(domain.ErrInvalidInput, "scan window requires from and to")
	}
	if !w.From.Before(w.To) {
		return eris.Wrapf(domain.ErrInvalidInput, "scan window from %s is not before to %s",
			w.From.Format(time.RFC3339), w.To.Format(time.RFC3339))
	}
	return nil
}

// Chunk is one calendar month of a Window. Activities are fetched from
// FetchFrom so that a pair straddling the month start is seen whole; only pairs
// whose later activity starts at or after Start belong to the chunk.
type Chunk struct {
	Index     int
	Start     time.Time
	End       time.Time
	FetchFrom time.Time
}

func (c Chunk) String() string {
	return fmt.Sprintf("%s..%s", c.Start.Format(time.RFC3339), c.End.Format(time.RFC3339))
}

// MonthChunks splits w into UTC calendar months clamped to the window.
func MonthChunks(w Window) []Chunk {
	from, to := w.From.UTC(), w.To.UTC()
	var chunks []Chunk
	for start := from; start.Before(to); {
		end := time.Date(start.Year(), start.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		if end.After(to) {
			end = to
		}
		fetchFrom := start.Add(-PairWindow)
		if fetchFrom.Before(from) {
			fetchFrom = from
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Start: start, End: end, FetchFrom: fetchFrom})
		start = end
	}
	return chunks
}
