package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taxprep"

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	runTotal      *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runInFlight   prometheus.Gauge
	runAttempts   *prometheus.CounterVec
	documentTotal *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	runTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "runs_total",
			Help:      "Total AI processing runs by status.",
		},
		[]string{"service", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "run_duration_seconds",
			Help:      "AI processing run duration in seconds by status.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 240, 480},
		},
		[]string{"service", "status"},
	)
	runInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "runs_in_flight",
			Help:      "Number of in-flight AI processing runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	runAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "run_attempts_total",
			Help:      "Total run attempts, including retries of infrastructure failures.",
		},
		[]string{"service"},
	)
	documentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "documents_total",
			Help:      "Total documents handled by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(runTotal, runDuration, runInFlight, runAttempts, documentTotal)

	return &WorkerMetrics{
		registry:      registry,
		service:       service,
		runTotal:      runTotal,
		runDuration:   runDuration,
		runInFlight:   runInFlight,
		runAttempts:   runAttempts,
		documentTotal: documentTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRun() {
	m.runInFlight.Inc()
}

func (m *WorkerMetrics) FinishRun(duration time.Duration, err error) {
	m.runInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.runTotal.WithLabelValues(m.service, status).Inc()
	m.runDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveAttempt() {
	m.runAttempts.WithLabelValues(m.service).Inc()
}

// ObserveDocument counts one document decision of the batch orchestrator.
func (m *WorkerMetrics) ObserveDocument(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.documentTotal.WithLabelValues(m.service, outcome).Inc()
}
