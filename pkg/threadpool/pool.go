package threadpool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	rerrors "github.com/vnykmshr/ruginx/pkg/common/errors"
	"github.com/vnykmshr/ruginx/pkg/common/validation"
)

// Config holds configuration options for creating a pool.
type Config struct {
	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// Logger receives worker lifecycle events. Nil disables logging.
	Logger *zap.Logger

	// PanicHandler is called when a job panics. If nil, the panic and its
	// stack are logged at error level. Either way the worker keeps serving.
	PanicHandler func(workerID int, recovered interface{})

	// OnWorkerStart is called on the worker goroutine before it first waits
	// for a job.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called on the worker goroutine as it exits.
	OnWorkerStop func(workerID int)

	// OnJobStart is called before a job begins execution.
	OnJobStart func(workerID int)

	// OnJobComplete is called after a job finishes, normally or by panic.
	OnJobComplete func(workerID int, d time.Duration)

	// receiveHook runs while a worker holds the receive lock.
	receiveHook func(workerID int)
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Workers       int   `json:"workers"`
	LiveWorkers   int   `json:"live_workers"`
	ActiveWorkers int   `json:"active_workers"`
	Queued        int   `json:"queued"`
	Submitted     int64 `json:"submitted"`
	Completed     int64 `json:"completed"`
	Panicked      int64 `json:"panicked"`
	PeakReceivers int   `json:"peak_receivers"`
	Closed        bool  `json:"closed"`
}

// Pool owns a fixed set of workers and the sending end of their job
// channel. Shutdown is the pool's teardown and must be called when the pool
// is no longer needed; later calls are no-ops.
type Pool struct {
	config  Config
	logger  *zap.Logger
	workers []*worker
	rx      *sharedReceiver

	// mu guards sender and the worker handles, each emptied once by Shutdown.
	mu     sync.RWMutex
	sender *Sender

	live      atomic.Int32
	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
}

// New creates a pool with size workers. It panics if size is not positive:
// a pool without workers can never run a job.
func New(size int) *Pool {
	p, err := NewWithConfig(Config{WorkerCount: size})
	if err != nil {
		panic(err)
	}
	return p
}

// NewWithConfig creates a pool with the given configuration. All workers
// are running and waiting for jobs when it returns.
func NewWithConfig(config Config) (*Pool, error) {
	if err := validation.ValidatePositive("threadpool", "size", config.WorkerCount); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sender, receiver := NewChannel()
	p := &Pool{
		config: config,
		logger: logger.Named("threadpool"),
		rx:     newSharedReceiver(receiver, config.receiveHook),
		sender: sender,
	}

	var ready sync.WaitGroup
	ready.Add(config.WorkerCount)
	p.workers = make([]*worker, config.WorkerCount)
	for id := 0; id < config.WorkerCount; id++ {
		p.workers[id] = spawnWorker(id, p, &ready)
	}
	ready.Wait()

	p.logger.Info("pool started", zap.Int("workers", config.WorkerCount))
	return p, nil
}

// Submit enqueues job and returns without waiting for it to start. Jobs
// start in submission order. Submitting after Shutdown has begun returns an
// error wrapping errors.ErrClosed.
func (p *Pool) Submit(job Job) error {
	if isNilJob(job) {
		return validation.ValidateNotNil("threadpool", "job", nil)
	}

	p.mu.RLock()
	sender := p.sender
	p.mu.RUnlock()

	if sender == nil {
		return fmt.Errorf("threadpool: cannot submit job: %w", rerrors.ErrClosed)
	}
	if err := sender.Send(job); err != nil {
		return fmt.Errorf("threadpool: cannot submit job: %w", err)
	}
	p.submitted.Add(1)
	return nil
}

// Execute submits f and panics if the pool no longer accepts work.
// Submission after shutdown is a programming error.
func (p *Pool) Execute(f func()) {
	if err := p.Submit(JobFunc(f)); err != nil {
		panic(err)
	}
}

// Shutdown closes the job channel and waits for every worker, in identity
// order, to drain the queue and exit. Jobs submitted before Shutdown all
// run. Calling Shutdown from inside a job deadlocks. A second call finds
// nothing left to release and returns immediately.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	sender := p.sender
	p.sender = nil
	p.mu.Unlock()

	if sender != nil {
		sender.Close()
	}

	for _, w := range p.workers {
		handle := p.takeHandle(w)
		if handle == nil {
			continue
		}
		p.logger.Info("shutting down worker", zap.Int("worker_id", w.id))
		<-handle
	}
}

func (p *Pool) takeHandle(w *worker) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := w.handle
	w.handle = nil
	return h
}

// Size returns the number of workers the pool was created with.
func (p *Pool) Size() int {
	return len(p.workers)
}

// QueueSize returns the number of jobs waiting for a worker.
func (p *Pool) QueueSize() int {
	return p.rx.rx.Len()
}

// LiveWorkers returns the number of worker goroutines that have not exited.
func (p *Pool) LiveWorkers() int {
	return int(p.live.Load())
}

// ActiveWorkers returns the number of workers currently executing a job.
func (p *Pool) ActiveWorkers() int {
	return int(p.active.Load())
}

// TotalSubmitted returns the number of jobs accepted by Submit.
func (p *Pool) TotalSubmitted() int64 {
	return p.submitted.Load()
}

// TotalCompleted returns the number of jobs that returned normally.
func (p *Pool) TotalCompleted() int64 {
	return p.completed.Load()
}

// TotalPanicked returns the number of jobs that panicked.
func (p *Pool) TotalPanicked() int64 {
	return p.panicked.Load()
}

// PeakReceivers returns the largest number of workers ever observed inside
// the receive critical section at once.
func (p *Pool) PeakReceivers() int {
	return int(p.rx.peak.Load())
}

// Closed reports whether Shutdown has begun.
func (p *Pool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sender == nil
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:       p.Size(),
		LiveWorkers:   p.LiveWorkers(),
		ActiveWorkers: p.ActiveWorkers(),
		Queued:        p.QueueSize(),
		Submitted:     p.TotalSubmitted(),
		Completed:     p.TotalCompleted(),
		Panicked:      p.TotalPanicked(),
		PeakReceivers: p.PeakReceivers(),
		Closed:        p.Closed(),
	}
}
