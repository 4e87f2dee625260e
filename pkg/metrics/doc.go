// Package metrics provides Prometheus instrumentation for ruginx components.
//
// A Registry groups the collectors of the worker pool, the demonstration
// server and the cron scheduler. Components take a *Registry and never
// register collectors themselves, so tests can use an isolated
// prometheus.Registry:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//	pool := threadpool.NewMetricsPool(threadpool.New(4), "http", m)
//	defer pool.Shutdown()
//
// Expose the metrics with promhttp:
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// All metric names share the "ruginx" namespace unless Config.Namespace
// overrides it.
package metrics
