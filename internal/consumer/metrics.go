package consumer

import "github.com/prometheus/client_golang/prometheus"

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_dedup",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Kafka records handled and committed.",
	}, []string{"topic", "event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_dedup",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Handler failures by topic and event type.",
	}, []string{"topic", "event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_dedup",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Records dropped because they could not be decoded.",
	}, []string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "activity_dedup",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix time of the latest committed record per topic.",
	}, []string{"topic"})

	triggerCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_dedup",
		Subsystem: "consumer",
		Name:      "scan_triggers_total",
		Help:      "activity.created events by outcome (scanned, ignored, malformed).",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, decodeErrorCounter, lastMessageGauge, triggerCounter)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
