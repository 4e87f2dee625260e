// Package metrics provides Prometheus instrumentation for ruginx components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for ruginx components.
type Registry struct {
	// Worker Pool Metrics
	WorkerPoolSize   *prometheus.GaugeVec
	WorkerPoolActive *prometheus.GaugeVec
	WorkerPoolQueued *prometheus.GaugeVec
	JobsSubmitted    *prometheus.CounterVec
	JobsCompleted    *prometheus.CounterVec
	JobsPanicked     *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	JobQueueWait     *prometheus.HistogramVec

	// Server Metrics
	ConnectionsAccepted *prometheus.CounterVec
	ConnectionsRejected *prometheus.CounterVec
	Responses           *prometheus.CounterVec

	// Scheduler Metrics
	ScheduledRuns     *prometheus.CounterVec
	ScheduledFailures *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by ruginx components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Registry: reg})
}

// NewRegistryWithConfig creates a registry honoring the namespace and
// constant labels of config.
func NewRegistryWithConfig(config Config) *Registry {
	config = config.withDefaults()
	factory := promauto.With(config.Registry)
	ns := config.Namespace
	labels := config.Labels

	return &Registry{
		WorkerPoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "threadpool",
				Name:        "size",
				Help:        "Number of workers in the pool",
				ConstLabels: labels,
			},
			[]string{"pool_name"},
		),

		WorkerPoolActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "threadpool",
				Name:        "active_workers",
				Help:        "Number of workers currently executing a job",
				ConstLabels: labels,
			},
			[]string{"pool_name"},
		),

		WorkerPoolQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "threadpool",
				Name:        "queued_jobs",
				Help:        "Number of jobs waiting in the job channel",
				ConstLabels: labels,
			},
			[]string{"pool_name"},
		),

		JobsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "threadpool",
				Name:        "jobs_submitted_total",
				Help:        "Total number of jobs accepted by the pool",
				ConstLabels: labels,
			},
			[]string{"pool_name"},
		),

		JobsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "threadpool",
				Name:        "jobs_completed_total",
				Help:        "Total number of jobs that ran to completion",
				ConstLabels: labels,
			},
			[]string{"pool_name"},
		),

		JobsPanicked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "threadpool",
				Name:        "jobs_panicked_total",
				Help:        "Total number of jobs that panicked",
				ConstLabels: labels,
			},
			[]string{"pool_name"},
		),

		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "threadpool",
				Name:        "job_duration_seconds",
				Help:        "Time spent executing jobs",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"pool_name"},
		),

		JobQueueWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "threadpool",
				Name:        "job_queue_wait_seconds",
				Help:        "Time jobs spent queued before a worker picked them up",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"pool_name"},
		),

		ConnectionsAccepted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "server",
				Name:        "connections_accepted_total",
				Help:        "Total number of accepted connections",
				ConstLabels: labels,
			},
			[]string{"server_name"},
		),

		ConnectionsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "server",
				Name:        "connections_rejected_total",
				Help:        "Total number of connections refused by the rate limiter",
				ConstLabels: labels,
			},
			[]string{"server_name"},
		),

		Responses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "server",
				Name:        "responses_total",
				Help:        "Total number of responses written, by status code",
				ConstLabels: labels,
			},
			[]string{"server_name", "status"},
		),

		ScheduledRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "runs_total",
				Help:        "Total number of scheduled jobs handed to the pool",
				ConstLabels: labels,
			},
			[]string{"task_id"},
		),

		ScheduledFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "submit_failures_total",
				Help:        "Total number of scheduled jobs the pool refused",
				ConstLabels: labels,
			},
			[]string{"task_id"},
		),
	}
}
