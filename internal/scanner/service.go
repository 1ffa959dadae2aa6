package scanner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"example.com/activitydedup/internal/domain"
	"example.com/activitydedup/internal/observability"
)

// Summary counts what ScanAndFlag did.
type Summary struct {
	RunID        uuid.UUID
	Candidates   int
	Flagged      int
	Skipped      int
	Failed       int
	Chunks       int
	FailedChunks int
}

// Service persists scan results as merge candidate flags.
type Service struct {
	scanner *Scanner
	uow     domain.UnitOfWork
}

// NewService constructs a Service.
func NewService(scanner *Scanner, uow domain.UnitOfWork) *Service {
	return &Service{scanner: scanner, uow: uow}
}

// ScanAndFlag scans w and flags every surfaced candidate. Each flag commits in
// its own transaction together with the unlinked -> pending_review move, so a
// rerun over the same range only rewrites the same rows. Activities that were
// already reviewed, or deleted since the scan read them, are skipped.
func (s *Service) ScanAndFlag(ctx context.Context, ownerID string, w Window) (Summary, error) {
	report, scanErr := s.scanner.Scan(ctx, ownerID, w)
	if report.Chunks == 0 && scanErr != nil {
		return Summary{}, scanErr
	}

	summary := Summary{
		RunID:        report.RunID,
		Candidates:   len(report.Candidates),
		Chunks:       report.Chunks,
		FailedChunks: report.FailedChunks,
	}

	var flagErr error
	for _, cand := range report.Candidates {
		if err := ctx.Err(); err != nil {
			flagErr = multierr.Append(flagErr, err)
			break
		}
		flagged, err := s.flag(ctx, ownerID, cand)
		switch {
		case err != nil:
			flagCounter.WithLabelValues("failed").Inc()
			summary.Failed++
			flagErr = multierr.Append(flagErr, eris.Wrapf(err, "scanner: flag activity %d", cand.Activity.ID))
		case flagged:
			flagCounter.WithLabelValues("flagged").Inc()
			summary.Flagged++
		default:
			flagCounter.WithLabelValues("skipped").Inc()
			summary.Skipped++
		}
	}

	err := multierr.Combine(scanErr, flagErr)
	if err == nil {
		observability.RecordScanCompleted(time.Now())
	}
	zap.L().Info("scan flagged candidates",
		zap.String("component", "scanner"),
		zap.String("run_id", summary.RunID.String()),
		zap.String("owner_id", ownerID),
		zap.Int("candidates", summary.Candidates),
		zap.Int("flagged", summary.Flagged),
		zap.Int("skipped", summary.Skipped),
		zap.Error(err),
	)
	return summary, err
}

func (s *Service) flag(ctx context.Context, ownerID string, cand Candidate) (bool, error) {
	flagged := false
	err := s.uow.WithinTx(ctx, ownerID, func(tx domain.Tx) error {
		act, err := tx.LockActivity(ctx, cand.Activity.ID)
		if err != nil {
			return err
		}
		if act == nil || act.MergeStatus.Terminal() {
			return nil
		}
		if err := tx.UpsertMergeCandidate(ctx, act.ID, domain.MergeCandidateData{
			PotentialMatchID: cand.Match.ID,
			Confidence:       cand.Result.Tier,
			ConfidenceScore:  cand.Result.Score,
		}); err != nil {
			return err
		}
		if act.MergeStatus == domain.MergeStatusUnlinked {
			if err := tx.SetMergeStatus(ctx, act.ID, domain.MergeStatusPendingReview, nil); err != nil {
				return err
			}
		}
		flagged = true
		return nil
	})
	return flagged, err
}
