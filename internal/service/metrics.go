package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the publishing engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	runsTotal         *prometheus.CounterVec
	itemsTotal        *prometheus.CounterVec
	finalizerDuration *prometheus.HistogramVec
	tasksInFlight     prometheus.Gauge
	runDuration       prometheus.Histogram
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of orchestrator runs",
			},
			[]string{"trigger", "status"},
		),
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Processed work items by origin and outcome",
			},
			[]string{"origin", "outcome"},
		),
		finalizerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "finalizer_duration_seconds",
				Help:      "Duration of background finalizers",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 180, 300},
			},
			[]string{"status"},
		),
		tasksInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "background_tasks_in_flight",
				Help:      "Number of running background tasks",
			},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_duration_seconds",
				Help:      "Duration of the synchronous scan of one run",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(
		m.runsTotal,
		m.itemsTotal,
		m.finalizerDuration,
		m.tasksInFlight,
		m.runDuration,
	)

	return m
}

func (m *Metrics) RecordRun(trigger, status string, scan time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(trigger, status).Inc()
	m.runDuration.Observe(scan.Seconds())
}

func (m *Metrics) RecordItem(origin, outcome string) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(origin, outcome).Inc()
}

func (m *Metrics) ObserveFinalizer(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.finalizerDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksInFlight.Inc()
}

func (m *Metrics) TaskDone() {
	if m == nil {
		return
	}
	m.tasksInFlight.Dec()
}
