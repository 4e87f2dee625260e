/*
Package ruginx is a small TCP server built around a fixed-size thread pool.

The pool (pkg/threadpool) owns N workers that share one unbounded FIFO job
queue. Submitting never blocks; each job runs on exactly one worker; a
panicking job is recovered and its worker keeps serving. Shutdown closes the
queue, lets the workers drain what was already queued, and waits for every
worker to exit.

Packages:
  - pkg/threadpool: Job, job channel, workers, Pool and MetricsPool
  - pkg/scheduler: cron schedules that submit jobs to a pool
  - pkg/ratelimit/distributed: Redis fixed-window connection admission
  - pkg/metrics: Prometheus collectors shared by the components
  - pkg/common/errors, pkg/common/validation: shared errors and checks

The ruginx command (cmd/ruginx) listens on 127.0.0.1:7878 and hands every
accepted connection to the pool:

	pool := threadpool.New(4)
	defer pool.Shutdown()

	srv := &server.Server{Root: "./public", Pool: pool}
	err := srv.ListenAndServe(ctx)

A request line of "GET / HTTP/1.1" is answered with public/hello.html; any
other request gets public/404.html.
*/
package ruginx
