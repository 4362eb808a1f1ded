package embedder

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for embedding calls. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// batchesTotal counts batches partitioned by result: "ok" or "failed".
	batchesTotal *prometheus.CounterVec
	// batchDurationSeconds records batch latency including retries.
	batchDurationSeconds prometheus.Histogram
	// retriesTotal counts backoff waits across all batches.
	retriesTotal prometheus.Counter
}

// NewMetrics registers the embedding metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		batchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sortir",
			Subsystem: "embedding",
			Name:      "batches_total",
			Help:      "Embedding batches completed, partitioned by result.",
		}, []string{"result"}),

		batchDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sortir",
			Subsystem: "embedding",
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock duration of an embedding batch including retries.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 15, 30, 60},
		}),

		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sortir",
			Subsystem: "embedding",
			Name:      "retries_total",
			Help:      "Embedding batch attempts that failed and were retried.",
		}),
	}
}

func (m *Metrics) observeBatch(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.batchesTotal.WithLabelValues(result).Inc()
	m.batchDurationSeconds.Observe(d.Seconds())
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}
