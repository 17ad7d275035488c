package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageInFlight *prometheus.GaugeVec
	queueLag      *prometheus.HistogramVec
	importRows    *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "worker",
			Name:      "stage_runs_total",
			Help:      "Total pipeline stage executions by status.",
		},
		[]string{"service", "stage", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hearth",
			Subsystem: "worker",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage execution duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage", "status"},
	)
	stageInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hearth",
			Subsystem: "worker",
			Name:      "stage_in_flight",
			Help:      "Number of in-flight stage executions.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"stage"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hearth",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between handoff dispatch and stage execution start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "stage"},
	)
	importRows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "worker",
			Name:      "import_rows_total",
			Help:      "Statement rows handled by the import stage, by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(stageTotal, stageDuration, stageInFlight, queueLag, importRows)

	return &WorkerMetrics{
		registry:      registry,
		stageTotal:    stageTotal,
		stageDuration: stageDuration,
		stageInFlight: stageInFlight,
		queueLag:      queueLag,
		importRows:    importRows,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartStage(stage string) {
	m.stageInFlight.WithLabelValues(stage).Inc()
}

func (m *WorkerMetrics) FinishStage(service, stage string, duration time.Duration, err error) {
	m.stageInFlight.WithLabelValues(stage).Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.stageTotal.WithLabelValues(service, stage, status).Inc()
	m.stageDuration.WithLabelValues(service, stage, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service, stage string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service, stage).Observe(lag.Seconds())
}

// ObserveImportRows records row outcomes reported by a finished import stage.
func (m *WorkerMetrics) ObserveImportRows(service string, imported, duplicates int) {
	m.importRows.WithLabelValues(service, "imported").Add(float64(imported))
	m.importRows.WithLabelValues(service, "duplicate").Add(float64(duplicates))
}
