package threadpool

// Job is a one-shot unit of work. A Job must own everything it touches:
// it runs on another goroutine, possibly after the submitter has returned.
type Job interface {
	// Run executes the job. The pool calls Run at most once per submission.
	Run()
}

// JobFunc is a function type that implements the Job interface.
type JobFunc func()

// Run implements the Job interface for JobFunc.
func (f JobFunc) Run() {
	f()
}

// Submitter is the submission side of a pool. Both *Pool and *MetricsPool
// satisfy it.
type Submitter interface {
	Submit(job Job) error
}

func isNilJob(job Job) bool {
	if job == nil {
		return true
	}
	f, ok := job.(JobFunc)
	return ok && f == nil
}
