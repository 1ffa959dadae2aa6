package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// maxBackoff caps the delay between DLQ retries.
const maxBackoff = time.Hour

// DLQManager requeues failed outbox messages and quarantines entries that
// keep failing.
type DLQManager struct {
	db         DB
	maxRetries int
	baseDelay  time.Duration
	log        *zap.Logger
}

// NewDLQManager constructs a DLQManager.
func NewDLQManager(db DB, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &DLQManager{
		db:         db,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		log:        zap.L().With(zap.String("component", "outbox.dlq")),
	}
}

// Run calls RunOnce every interval until ctx is done.
func (m *DLQManager) Run(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		processed, err := m.RunOnce(ctx, batchSize)
		if err != nil && ctx.Err() == nil {
			m.log.Error("dlq run failed", zap.Error(err))
		} else if processed > 0 {
			m.log.Info("dlq entries requeued", zap.Int("count", processed))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch of due entries and returns how many were
// requeued into the outbox.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	const query = `SELECT dlq_id, owner_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
        FROM outbox_dlq
        WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY created_at
        LIMIT $1`

	rows, err := m.db.Query(ctx, query, batchSize)
	if err != nil {
		return 0, eris.Wrap(err, "outbox: select dlq entries")
	}
	var entries []dlqEntry
	for rows.Next() {
		entry, scanErr := scanDLQEntry(rows)
		if scanErr != nil {
			err = multierr.Append(err, eris.Wrap(scanErr, "outbox: scan dlq entry"))
			continue
		}
		entries = append(entries, entry)
	}
	rows.Close()
	err = multierr.Append(err, rows.Err())

	processed := 0
	for _, entry := range entries {
		requeued, procErr := m.handleEntry(ctx, entry)
		if procErr != nil {
			err = multierr.Append(err, procErr)
			continue
		}
		if requeued {
			processed++
		}
	}

	m.refreshBacklog(ctx)
	return processed, err
}

// handleEntry quarantines, reschedules or requeues entry in one transaction.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (bool, error) {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "outbox: begin dlq entry")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if entry.RetryCount >= m.maxRetries {
		if _, err := tx.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`, "retry limit reached", entry.ID); err != nil {
			return false, eris.Wrapf(err, "outbox: quarantine dlq entry %d", entry.ID)
		}
		if err := tx.Commit(ctx); err != nil {
			return false, eris.Wrap(err, "outbox: commit quarantine")
		}
		dlqOutcomes.WithLabelValues(entry.EventType, dlqQuarantined).Inc()
		m.log.Warn("dlq entry quarantined", zap.Int64("dlq_id", entry.ID), zap.String("event_type", entry.EventType))
		return false, nil
	}

	if insertErr := requeueOutbox(ctx, tx, entry); insertErr != nil {
		delay := m.backoffDelay(entry.RetryCount + 1)
		if _, err := tx.Exec(ctx,
			`UPDATE outbox_dlq
               SET retry_count = retry_count + 1,
                   last_attempt_at = NOW(),
                   next_retry_at = NOW() + $1::interval,
                   reason = $2
             WHERE dlq_id = $3`,
			delay, insertErr.Error(), entry.ID,
		); err != nil {
			return false, eris.Wrapf(err, "outbox: reschedule dlq entry %d", entry.ID)
		}
		if err := tx.Commit(ctx); err != nil {
			return false, eris.Wrap(err, "outbox: commit reschedule")
		}
		dlqOutcomes.WithLabelValues(entry.EventType, dlqRescheduled).Inc()
		return false, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return false, eris.Wrapf(err, "outbox: delete dlq entry %d", entry.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "outbox: commit requeue")
	}
	dlqOutcomes.WithLabelValues(entry.EventType, dlqRequeued).Inc()
	return true, nil
}

// refreshBacklog is best effort; a failed count leaves the gauge as is.
func (m *DLQManager) refreshBacklog(ctx context.Context) {
	var count int
	if err := m.db.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		m.log.Debug("dlq backlog count failed", zap.Error(err))
		return
	}
	dlqBacklog.Set(float64(count))
}

// backoffDelay doubles baseDelay per attempt, capped at maxBackoff.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		return maxBackoff
	}
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// requeueOutbox reinserts the payload into the outbox for replay.
func requeueOutbox(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return eris.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}
	if _, ok := schemaCatalog[entry.EventType]; !ok {
		return eris.Errorf("no schema metadata for event_type=%s", entry.EventType)
	}

	const stmt = `INSERT INTO outbox (owner_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := tx.Exec(ctx, stmt,
		entry.OwnerID,
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		entry.Topic,
		entry.SchemaSubject,
		entry.PartitionKey,
		entry.Payload,
	)
	return err
}

// dlqEntry is an outbox_dlq row selected for processing.
type dlqEntry struct {
	ID            int64
	OwnerID       string
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

func scanDLQEntry(rows pgx.Rows) (dlqEntry, error) {
	var entry dlqEntry
	err := rows.Scan(&entry.ID, &entry.OwnerID, &entry.EventID, &entry.EventType, &entry.Topic, &entry.Payload, &entry.Reason,
		&entry.AggregateType, &entry.AggregateID, &entry.SchemaSubject, &entry.PartitionKey, &entry.RetryCount)
	return entry, err
}
