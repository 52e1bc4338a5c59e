// Package telemetry holds the Prometheus instruments and OpenTelemetry
// tracing setup for the launcher.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// WorkersStarted counts workers started, by runtime kind.
	WorkersStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spindle_workers_started_total",
			Help: "Total number of workers started.",
		},
		[]string{"kind"},
	)

	// WorkersFinished counts workers that reached a terminal status.
	WorkersFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spindle_workers_finished_total",
			Help: "Total number of workers finished, by terminal status.",
		},
		[]string{"kind", "status"},
	)

	// WorkersActive tracks currently running workers.
	WorkersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spindle_workers_active",
			Help: "Number of currently running workers.",
		},
		[]string{"kind"},
	)

	// WorkerRunDuration observes worker wall-clock run time.
	WorkerRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spindle_worker_run_duration_seconds",
			Help:    "Worker run duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(WorkersStarted)
	prometheus.MustRegister(WorkersFinished)
	prometheus.MustRegister(WorkersActive)
	prometheus.MustRegister(WorkerRunDuration)
}
