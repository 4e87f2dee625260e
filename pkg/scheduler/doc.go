/*
Package scheduler fires jobs on cron schedules by submitting them to a
threadpool.

Scheduling is done by github.com/robfig/cron/v3; execution always happens on
the pool's workers, so a slow scheduled job never delays the cron loop:

	pool := threadpool.New(4)
	defer pool.Shutdown()

	sched, _ := scheduler.New(pool, scheduler.Config{Logger: logger})
	_ = sched.ScheduleCron("stats", "@every 30s", threadpool.JobFunc(reportStats))
	_ = sched.Start()
	defer sched.Stop()

Expressions accept an optional leading seconds field and the standard
descriptors (@hourly, @daily, @every <duration>).

Stop the scheduler before shutting the pool down. A firing that reaches a
closed pool is logged and counted as a submit failure, never dropped
silently.
*/
package scheduler
