package ingestion

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/boyangli/telemetry-ingest/models"
)

// Metrics holds the per-file ingestion counters
type Metrics struct {
	files    *prometheus.CounterVec
	rows     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the ingestion metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Files processed, by kind and result",
		}, []string{"kind", "result"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "ingest",
			Name:      "rows_total",
			Help:      "Rows committed, by kind",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telemetry",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Time from read to commit for one file",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{m.files, m.rows, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// observe is a no-op on a nil receiver so the pipeline can run unmetered
func (m *Metrics) observe(kind models.FileKind, err error, summary *models.IngestSummary, elapsed time.Duration) {
	if m == nil {
		return
	}

	result := "ok"
	var ingestErr *IngestError
	if errors.As(err, &ingestErr) {
		result = ingestErr.Kind.String()
	} else if err != nil {
		result = "unknown_error"
	}

	m.files.WithLabelValues(kind.String(), result).Inc()
	m.duration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
	if summary != nil {
		m.rows.WithLabelValues(kind.String()).Add(float64(summary.Rows))
	}
}
