package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// SubmissionsTotal counts submissions by outcome and mode.
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sosdesk",
		Subsystem: "intake",
		Name:      "submissions_total",
		Help:      "Total number of report submissions, labeled by result and mode.",
	}, []string{"result", "mode"})

	// AcknowledgmentsTotal counts acknowledgment attempts by outcome.
	AcknowledgmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sosdesk",
		Subsystem: "intake",
		Name:      "acknowledgments_total",
		Help:      "Total number of acknowledgment attempts, labeled by result.",
	}, []string{"result"})

	// ConnectedViewers is the number of live viewer channels registered with the hub.
	ConnectedViewers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sosdesk",
		Subsystem: "fanout",
		Name:      "connected_viewers",
		Help:      "Number of live viewer channels currently registered.",
	})

	// DeliveriesTotal counts per-channel invalidation deliveries.
	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sosdesk",
		Subsystem: "fanout",
		Name:      "deliveries_total",
		Help:      "Invalidation signals offered to viewer channels, labeled delivered or skipped.",
	}, []string{"result"})

	// UploadDurationSeconds is the time spent storing one attachment.
	UploadDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sosdesk",
		Subsystem: "storage",
		Name:      "upload_duration_seconds",
		Help:      "Time to store one uploaded attachment.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Register registers the service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SubmissionsTotal,
			AcknowledgmentsTotal,
			ConnectedViewers,
			DeliveriesTotal,
			UploadDurationSeconds,
		)
	})
}
