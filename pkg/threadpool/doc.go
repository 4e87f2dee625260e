/*
Package threadpool provides a fixed-size worker pool that decouples job
submission from job execution.

A Pool starts a fixed number of worker goroutines when it is created. The
workers share the receiving end of a single unbounded FIFO job channel; the
pool keeps the sending end. Submit appends a job to the channel and returns
immediately. Exactly one idle worker wakes, runs the job and goes back to
waiting.

Basic usage:

	pool := threadpool.New(4)
	defer pool.Shutdown()

	pool.Execute(func() {
		handle(conn)
	})

Construction:

New panics when the worker count is not positive. NewWithConfig returns the
same condition as a *errors.ValidationError and accepts a logger and
lifecycle callbacks:

	pool, err := threadpool.NewWithConfig(threadpool.Config{
		WorkerCount: 8,
		Logger:      logger,
		PanicHandler: func(workerID int, recovered interface{}) {
			logger.Error("job panicked", zap.Int("worker_id", workerID), zap.Any("panic", recovered))
		},
	})

Every worker is running and waiting for work when the constructor returns.

Dispatch:

A worker holds the receive lock only while it pulls one job (or the closed
signal) off the channel, never while the job runs, so at most one worker is
ever inside the receive critical section. Jobs start in the order they were
submitted; which worker runs which job is unspecified.

Submission after shutdown:

Submit returns an error wrapping errors.ErrClosed once Shutdown has begun.
Execute turns that error into a panic. Neither drops the job silently.

Shutdown:

Go has no destructors, so Shutdown is the pool's mandatory teardown and must
be called once by the owner. It closes the channel, then waits for each
worker in identity order. Jobs queued before Shutdown are drained and run;
the channel reports closure only when it is empty. After Shutdown returns no
pool goroutine is left running.

Failures:

A job that panics is recovered and reported through Config.PanicHandler (or
the logger); its worker keeps serving. A panic while a worker holds the
receive lock poisons the lock: every worker that later tries to acquire it
logs the error and exits. Poisoned pools are not repaired.

Metrics:

MetricsPool wraps a Pool and publishes pool size, active workers, queue
depth, queue wait and run time through a metrics.Registry.
*/
package threadpool
