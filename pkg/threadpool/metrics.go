package threadpool

import (
	"time"

	"github.com/vnykmshr/ruginx/pkg/metrics"
)

// MetricsPool wraps a Pool with Prometheus metrics collection.
type MetricsPool struct {
	pool     *Pool
	name     string
	registry *metrics.Registry
}

// NewMetricsPool instruments pool under the given pool name. A nil registry
// selects metrics.DefaultRegistry.
func NewMetricsPool(pool *Pool, name string, registry *metrics.Registry) *MetricsPool {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}

	mp := &MetricsPool{
		pool:     pool,
		name:     name,
		registry: registry,
	}
	mp.updateMetrics()
	return mp
}

// updateMetrics refreshes the state gauges.
func (mp *MetricsPool) updateMetrics() {
	mp.registry.WorkerPoolSize.WithLabelValues(mp.name).Set(float64(mp.pool.Size()))
	mp.registry.WorkerPoolActive.WithLabelValues(mp.name).Set(float64(mp.pool.ActiveWorkers()))
	mp.registry.WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(mp.pool.QueueSize()))
}

// Submit wraps job to record queue wait and run time, then submits it.
func (mp *MetricsPool) Submit(job Job) error {
	if isNilJob(job) {
		return mp.pool.Submit(job)
	}

	wrapped := &metricsJob{
		original:   job,
		pool:       mp,
		submitTime: time.Now(),
	}

	err := mp.pool.Submit(wrapped)
	if err == nil {
		mp.registry.JobsSubmitted.WithLabelValues(mp.name).Inc()
	}
	mp.updateMetrics()
	return err
}

// Execute submits f and panics if the pool no longer accepts work.
func (mp *MetricsPool) Execute(f func()) {
	if err := mp.Submit(JobFunc(f)); err != nil {
		panic(err)
	}
}

// metricsJob wraps a Job to collect execution metrics.
type metricsJob struct {
	original   Job
	pool       *MetricsPool
	submitTime time.Time
}

// Run runs the original job and records metrics. A panic is counted and
// left to propagate to the worker.
func (mj *metricsJob) Run() {
	start := time.Now()
	name := mj.pool.name
	reg := mj.pool.registry

	reg.JobQueueWait.WithLabelValues(name).Observe(start.Sub(mj.submitTime).Seconds())

	finished := false
	defer func() {
		reg.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if finished {
			reg.JobsCompleted.WithLabelValues(name).Inc()
		} else {
			reg.JobsPanicked.WithLabelValues(name).Inc()
		}
		mj.pool.updateMetrics()
	}()

	mj.original.Run()
	finished = true
}

// Shutdown tears down the underlying pool and publishes the final gauges.
func (mp *MetricsPool) Shutdown() {
	mp.pool.Shutdown()
	mp.updateMetrics()
}

// Size returns the number of workers.
func (mp *MetricsPool) Size() int {
	return mp.pool.Size()
}

// QueueSize returns the current number of queued jobs.
func (mp *MetricsPool) QueueSize() int {
	queueSize := mp.pool.QueueSize()
	mp.registry.WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(queueSize))
	return queueSize
}

// ActiveWorkers returns the number of workers currently executing jobs.
func (mp *MetricsPool) ActiveWorkers() int {
	activeWorkers := mp.pool.ActiveWorkers()
	mp.registry.WorkerPoolActive.WithLabelValues(mp.name).Set(float64(activeWorkers))
	return activeWorkers
}

// Stats returns the underlying pool's counters.
func (mp *MetricsPool) Stats() Stats {
	return mp.pool.Stats()
}

// Pool returns the wrapped pool.
func (mp *MetricsPool) Pool() *Pool {
	return mp.pool
}
