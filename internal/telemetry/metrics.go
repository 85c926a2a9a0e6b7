package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the prometheus collectors exercised across the
// pipeline. Registered once at startup and passed by reference.
type Metrics struct {
	VisionCallDuration  *prometheus.HistogramVec
	VisionRetryTotal    *prometheus.CounterVec
	PersistenceDuration *prometheus.HistogramVec
	PartitionsCreated   prometheus.Counter
}

// NewMetrics constructs and registers the collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		VisionCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "invoice_pipeline",
			Subsystem: "vision",
			Name:      "call_duration_seconds",
			Help:      "Latency of one whole vision extraction (all prompts and retries), by prompt mode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"prompt"}),
		VisionRetryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invoice_pipeline",
			Subsystem: "vision",
			Name:      "retry_total",
			Help:      "Count of retried vision calls, by classified error code.",
		}, []string{"code"}),
		PersistenceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "invoice_pipeline",
			Subsystem: "persistence",
			Name:      "operation_duration_seconds",
			Help:      "Latency of save_parsed / save_approved transactions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		PartitionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "invoice_pipeline",
			Subsystem: "store",
			Name:      "partitions_created_total",
			Help:      "Count of on-demand yearly partitions created.",
		}),
	}

	reg.MustRegister(m.VisionCallDuration, m.VisionRetryTotal, m.PersistenceDuration, m.PartitionsCreated)
	return m
}
