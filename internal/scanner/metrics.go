package scanner

import "github.com/prometheus/client_golang/prometheus"

var (
	chunkCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_dedup",
		Subsystem: "scanner",
		Name:      "chunks_total",
		Help:      "Scan chunks processed grouped by outcome.",
	}, []string{"outcome"})

	candidateCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_dedup",
		Subsystem: "scanner",
		Name:      "candidates_total",
		Help:      "Candidate pairs emitted grouped by confidence tier.",
	}, []string{"tier"})

	flagCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_dedup",
		Subsystem: "scanner",
		Name:      "flag_writes_total",
		Help:      "Merge candidate flag writes grouped by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(chunkCounter, candidateCounter, flagCounter)
}
