package consumer

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"example.com/activitydedup/internal/events"
	"example.com/activitydedup/internal/scanner"
)

// DefaultTriggerWindow is the span scanned around a newly created activity.
const DefaultTriggerWindow = 48 * time.Hour

// Flagger runs a scan and persists the flags it finds.
type Flagger interface {
	ScanAndFlag(ctx context.Context, ownerID string, w scanner.Window) (scanner.Summary, error)
}

// ScanTriggerHandler rescans the neighbourhood of every newly ingested
// activity so duplicates are flagged without waiting for a backfill.
type ScanTriggerHandler struct {
	flagger Flagger
	window  time.Duration
	log     *zap.Logger
}

// NewScanTriggerHandler constructs a handler scanning window around each
// created activity's start time.
func NewScanTriggerHandler(flagger Flagger, window time.Duration) *ScanTriggerHandler {
	if window <= 0 {
		window = DefaultTriggerWindow
	}
	return &ScanTriggerHandler{
		flagger: flagger,
		window:  window,
		log:     zap.L().With(zap.String("component", "consumer.scan_trigger")),
	}
}

// Handle ignores every event type except activity.created. Malformed
// payloads are logged and acknowledged; scan failures are returned so the
// record is not committed.
func (h *ScanTriggerHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeActivityCreated {
		triggerCounter.WithLabelValues("ignored").Inc()
		return nil
	}

	var created events.ActivityCreated
	if err := json.Unmarshal(msg.Payload, &created); err != nil {
		h.log.Warn("malformed activity.created payload", zap.Int64("offset", msg.Offset), zap.Error(err))
		triggerCounter.WithLabelValues("malformed").Inc()
		return nil
	}
	ownerID := created.OwnerID
	if ownerID == "" {
		ownerID = msg.OwnerID
	}
	if ownerID == "" || created.StartTime.IsZero() {
		h.log.Warn("activity.created without owner or start time", zap.Int64("activity_id", created.ActivityID))
		triggerCounter.WithLabelValues("malformed").Inc()
		return nil
	}

	half := h.window / 2
	window := scanner.Window{
		From: created.StartTime.Add(-half).UTC(),
		To:   created.StartTime.Add(half).UTC(),
	}
	summary, err := h.flagger.ScanAndFlag(ctx, ownerID, window)
	if err != nil {
		return err
	}

	triggerCounter.WithLabelValues("scanned").Inc()
	h.log.Debug("triggered scan complete",
		zap.String("owner_id", ownerID),
		zap.Int64("activity_id", created.ActivityID),
		zap.Stringer("run_id", summary.RunID),
		zap.Int("flagged", summary.Flagged))
	return nil
}
