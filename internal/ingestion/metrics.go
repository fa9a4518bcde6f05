package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks ingestion progress.
type Metrics struct {
	processed      prometheus.Counter
	skipped        *prometheus.CounterVec
	rowsWritten    prometheus.Counter
	ballotsSkipped prometheus.Counter
	fetchDuration  prometheus.Histogram
}

// NewMetrics registers the collectors with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		processed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_roll_calls_processed_total",
			Help: "Total number of roll calls persisted",
		}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_roll_calls_skipped_total",
			Help: "Total number of roll calls skipped, by failing stage",
		}, []string{"stage"}),
		rowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_rows_written_total",
			Help: "Total number of ballot rows inserted",
		}),
		ballotsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_ballots_skipped_total",
			Help: "Total number of malformed recorded votes skipped",
		}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_fetch_duration_seconds",
			Help:    "Time taken to fetch one roll call document, including retries",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}
