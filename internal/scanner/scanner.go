// Package scanner walks an owner's activities in time order and turns
// adjacent cross-source pairs into merge candidates.
package scanner

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"example.com/activitydedup/internal/domain"
	"example.com/activitydedup/internal/matching"
	"example.com/activitydedup/internal/resilience"
)

// Config tunes retrieval.
type Config struct {
	// Concurrency bounds the number of chunks scanned at once.
	Concurrency int
	PageSize    int
	// RatePerSecond limits page reads across all workers. Zero disables the limit.
	RatePerSecond float64
	Retry         resilience.Policy
	// IncludeLow surfaces LOW tier pairs in addition to HIGH and MEDIUM.
	IncludeLow bool
}

// DefaultConfig mirrors the service defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		PageSize:      500,
		RatePerSecond: 5,
		Retry:         resilience.DefaultPolicy(),
		IncludeLow:    true,
	}
}

// Candidate is a surfaced pair. Activity is the later record and carries the
// flag; Match is its earlier neighbour.
type Candidate struct {
	Activity domain.Activity
	Match    domain.Activity
	Result   matching.Result
}

// Report is the outcome of one Scan. Candidates are ordered by the later
// activity's (start_time, id).
type Report struct {
	RunID        uuid.UUID
	Candidates   []Candidate
	Chunks       int
	FailedChunks int
}

// Scanner reads activity windows and scores adjacent pairs.
type Scanner struct {
	store   domain.ActivityStore
	cfg     Config
	limiter *rate.Limiter
}

// New constructs a Scanner over store.
func New(store domain.ActivityStore, cfg Config) *Scanner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 500
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Scanner{
		store:   store,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Concurrency),
	}
}

// Scan processes w month by month. A failing chunk does not stop the others:
// the report holds every completed chunk's candidates and the returned error
// aggregates the failures.
func (s *Scanner) Scan(ctx context.Context, ownerID string, w Window) (Report, error) {
	if ownerID == "" {
		return Report{}, eris.Wrap(domain.ErrInvalidInput, "owner id is required")
	}
	if err := w.Validate(); err != nil {
		return Report{}, err
	}

	chunks := MonthChunks(w)
	report := Report{RunID: uuid.New(), Chunks: len(chunks)}
	log := zap.L().With(
		zap.String("component", "scanner"),
		zap.String("run_id", report.RunID.String()),
		zap.String("owner_id", ownerID),
	)

	var (
		mu       sync.Mutex
		scanErr  error
		perChunk = make([][]Candidate, len(chunks))
	)

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, chunk := range chunks {
		g.Go(func() error {
			found, err := s.scanChunk(ctx, ownerID, chunk)
			if err != nil {
				chunkCounter.WithLabelValues("failed").Inc()
				log.Warn("chunk scan failed", zap.Stringer("chunk", chunk), zap.Error(err))
				mu.Lock()
				scanErr = multierr.Append(scanErr, eris.Wrapf(err, "scanner: chunk %s", chunk))
				report.FailedChunks++
				mu.Unlock()
				return nil
			}
			chunkCounter.WithLabelValues("completed").Inc()
			perChunk[chunk.Index] = found
			return nil
		})
	}
	_ = g.Wait()

	for _, found := range perChunk {
		report.Candidates = append(report.Candidates, found...)
	}
	log.Info("scan finished",
		zap.Int("chunks", report.Chunks),
		zap.Int("failed_chunks", report.FailedChunks),
		zap.Int("candidates", len(report.Candidates)),
	)
	return report, scanErr
}

func (s *Scanner) scanChunk(ctx context.Context, ownerID string, chunk Chunk) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acts, err := s.fetch(ctx, ownerID, chunk)
	if err != nil {
		return nil, err
	}

	var found []Candidate
	for i := 1; i < len(acts); i++ {
		earlier, later := acts[i-1], acts[i]
		if later.StartTime.Before(chunk.Start) {
			continue
		}
		if earlier.Source == later.Source || later.StartTime.Sub(earlier.StartTime) >= PairWindow {
			continue
		}
		res := matching.Score(earlier, later)
		if !res.Tier.Surfaced(s.cfg.IncludeLow) {
			zap.L().Debug("pair not surfaced",
				zap.Int64("activity_id", later.ID),
				zap.Int64("match_id", earlier.ID),
				zap.Stringer("tier", res.Tier),
				zap.String("reason", string(res.Reason)),
			)
			continue
		}
		candidateCounter.WithLabelValues(res.Tier.String()).Inc()
		found = append(found, Candidate{Activity: later, Match: earlier, Result: res})
	}
	return found, nil
}

type page struct {
	items []domain.Activity
	next  *domain.Cursor
}

// fetch reads the chunk's activities page by page, rate limited and retried.
func (s *Scanner) fetch(ctx context.Context, ownerID string, chunk Chunk) ([]domain.Activity, error) {
	var (
		acts   []domain.Activity
		cursor *domain.Cursor
	)
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		p, err := resilience.Run(ctx, s.cfg.Retry, func(ctx context.Context) (page, error) {
			items, next, err := s.store.ListWindow(ctx, ownerID, chunk.FetchFrom, chunk.End, cursor, s.cfg.PageSize)
			return page{items: items, next: next}, err
		})
		if err != nil {
			return nil, err
		}
		acts = append(acts, p.items...)
		if p.next == nil {
			break
		}
		cursor = p.next
	}

	sort.SliceStable(acts, func(i, j int) bool {
		if acts[i].StartTime.Equal(acts[j].StartTime) {
			return acts[i].ID < acts[j].ID
		}
		return acts[i].StartTime.Before(acts[j].StartTime)
	})
	return acts, nil
}
