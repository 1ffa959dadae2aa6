package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	resolutionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_dedup",
		Subsystem: "resolver",
		Name:      "operations_total",
		Help:      "Resolver and linker operations grouped by operation and outcome.",
	}, []string{"operation", "outcome"})

	lastScanGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_dedup",
		Subsystem: "scanner",
		Name:      "last_scan_completed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed candidate scan.",
	})

	staleFlagCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_dedup",
		Subsystem: "flags",
		Name:      "stale_flags_skipped_total",
		Help:      "Merge candidate flags skipped because the referenced match no longer exists.",
	})
)

func init() {
	prometheus.MustRegister(resolutionCounter, lastScanGauge, staleFlagCounter)
}

// RecordResolution counts a resolver or linker call.
func RecordResolution(operation, outcome string) {
	resolutionCounter.WithLabelValues(operation, outcome).Inc()
}

// RecordScanCompleted updates the scan watermark gauge.
func RecordScanCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastScanGauge.Set(float64(ts.Unix()))
}

// RecordStaleFlags counts flags dropped while listing candidates.
func RecordStaleFlags(n int) {
	if n <= 0 {
		return
	}
	staleFlagCounter.Add(float64(n))
}
