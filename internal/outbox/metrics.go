package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_dedup",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Outbox events published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_dedup",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Outbox events that failed to publish and were routed to the DLQ.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "activity_dedup",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching, delivering and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_dedup",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Outbox events routed to the dead-letter queue by topic.",
	}, []string{"topic"})

	// dlqOutcomes counts DLQ manager decisions per entry: requeued back into
	// the outbox, rescheduled after a failed requeue, or quarantined.
	dlqOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_dedup",
		Subsystem: "outbox",
		Name:      "dlq_entries_total",
		Help:      "DLQ entries handled by the replay loop, by outcome.",
	}, []string{"event_type", "outcome"})

	dlqBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_dedup",
		Subsystem: "outbox",
		Name:      "dlq_backlog",
		Help:      "Merge and link events waiting for replay, quarantined ones excluded.",
	})
)

const (
	dlqRequeued    = "requeued"
	dlqRescheduled = "rescheduled"
	dlqQuarantined = "quarantined"
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqCounter, dlqOutcomes, dlqBacklog)
}
