package threadpool

import (
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/ruginx/internal/testutil"
	"github.com/vnykmshr/ruginx/pkg/metrics"
)

func TestMetricsPool(t *testing.T) {
	registry := metrics.NewRegistry(prometheus.NewRegistry())
	pool := NewMetricsPool(New(2), "test", registry)

	testutil.AssertEqual(t, promtestutil.ToFloat64(registry.WorkerPoolSize.WithLabelValues("test")), float64(2))

	var ran int32
	for i := 0; i < 5; i++ {
		testutil.AssertNoError(t, pool.Submit(JobFunc(func() { atomic.AddInt32(&ran, 1) })))
	}
	pool.Execute(func() { panic("metrics panic") })
	pool.Shutdown()

	testutil.AssertEqual(t, atomic.LoadInt32(&ran), int32(5))
	testutil.AssertEqual(t, promtestutil.ToFloat64(registry.JobsSubmitted.WithLabelValues("test")), float64(6))
	testutil.AssertEqual(t, promtestutil.ToFloat64(registry.JobsCompleted.WithLabelValues("test")), float64(5))
	testutil.AssertEqual(t, promtestutil.ToFloat64(registry.JobsPanicked.WithLabelValues("test")), float64(1))
	testutil.AssertEqual(t, promtestutil.ToFloat64(registry.WorkerPoolQueued.WithLabelValues("test")), float64(0))
	testutil.AssertEqual(t, promtestutil.ToFloat64(registry.WorkerPoolActive.WithLabelValues("test")), float64(0))
	testutil.AssertEqual(t, promtestutil.CollectAndCount(registry.JobDuration), 1)
	testutil.AssertEqual(t, pool.Stats().Panicked, int64(1))
}

func TestMetricsPoolRejectedSubmission(t *testing.T) {
	registry := metrics.NewRegistry(prometheus.NewRegistry())
	pool := NewMetricsPool(New(1), "closed", registry)
	pool.Shutdown()

	testutil.AssertError(t, pool.Submit(JobFunc(func() {})))
	testutil.AssertError(t, pool.Submit(nil))
	testutil.AssertEqual(t, promtestutil.ToFloat64(registry.JobsSubmitted.WithLabelValues("closed")), float64(0))
}
