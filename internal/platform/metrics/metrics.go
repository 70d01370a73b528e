package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RunsStarted   prometheus.Counter
	RunsByStatus  *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	EventsPublished *prometheus.CounterVec
	PublishFailures prometheus.Counter
	DeadLettered    prometheus.Counter

	AuditEntries *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payerhub_runs_started_total",
			Help: "Total number of document runs entering the pipeline",
		}),
		RunsByStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payerhub_runs_terminal_total",
			Help: "Document runs by terminal status",
		}, []string{"status"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payerhub_stage_duration_seconds",
			Help:    "Wall-clock duration of pipeline stages",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payerhub_events_published_total",
			Help: "Events published to the bus by type",
		}, []string{"event_type"}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payerhub_events_publish_failures_total",
			Help: "Publishes that exhausted retries without broker acknowledgment",
		}),
		DeadLettered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payerhub_events_dead_lettered_total",
			Help: "Events forwarded to the dead-letter topic after handler failure",
		}),
		AuditEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payerhub_audit_entries_total",
			Help: "Audit log entries written by action",
		}, []string{"action"}),
	}
}
