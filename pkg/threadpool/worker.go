package threadpool

import (
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	rerrors "github.com/vnykmshr/ruginx/pkg/common/errors"
)

// worker is one long-lived goroutine bound to an identity. handle is closed
// when the goroutine returns; Shutdown empties it exactly once before
// waiting on it.
type worker struct {
	id     int
	handle chan struct{}
}

func spawnWorker(id int, p *Pool, ready *sync.WaitGroup) *worker {
	done := make(chan struct{})
	w := &worker{id: id, handle: done}
	p.live.Add(1)
	go w.run(p, done, ready)
	return w
}

// run is the dispatch loop: Waiting (recv under the shared lock), then
// Executing (outside the lock), until the channel reports closure.
func (w *worker) run(p *Pool, done chan struct{}, ready *sync.WaitGroup) {
	logger := p.logger.With(zap.Int("worker_id", w.id))

	defer close(done)
	defer p.live.Add(-1)
	if p.config.OnWorkerStop != nil {
		defer p.config.OnWorkerStop(w.id)
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker aborted",
				zap.Any("panic", r),
				zap.Bool("receiver_poisoned", p.rx.isPoisoned()),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	ready.Done()
	if p.config.OnWorkerStart != nil {
		p.config.OnWorkerStart(w.id)
	}
	logger.Debug("worker started")

	for {
		job, ok, err := p.rx.recv(w.id)
		if err != nil {
			if rerrors.IsFatal(err) {
				logger.Error("worker cannot receive; shutting down", zap.Error(err))
			} else {
				logger.Warn("worker receive failed; shutting down", zap.Error(err))
			}
			return
		}
		if !ok {
			logger.Info("worker disconnected; shutting down")
			return
		}
		logger.Debug("worker got a job; executing")
		w.execute(p, job, logger)
	}
}

// execute runs one job. A panicking job is confined to this call: it is
// recovered, counted and reported, and the worker goes back to waiting.
func (w *worker) execute(p *Pool, job Job, logger *zap.Logger) {
	start := time.Now()
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		r := recover()
		if r != nil {
			p.panicked.Add(1)
			if p.config.PanicHandler != nil {
				p.config.PanicHandler(w.id, r)
			} else {
				logger.Error("job panicked",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		} else {
			p.completed.Add(1)
		}
		if p.config.OnJobComplete != nil {
			p.config.OnJobComplete(w.id, time.Since(start))
		}
	}()

	if p.config.OnJobStart != nil {
		p.config.OnJobStart(w.id)
	}
	job.Run()
}
