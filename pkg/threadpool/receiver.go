package threadpool

import (
	"sync"
	"sync/atomic"

	rerrors "github.com/vnykmshr/ruginx/pkg/common/errors"
)

// sharedReceiver serializes access to the receiving endpoint. Every worker
// holds a pointer to the same sharedReceiver; the lock is held only while a
// single message (or the closed signal) is pulled off the channel.
//
// A panic while the lock is held poisons it: later acquisitions fail with
// errors.ErrPoisoned instead of trusting state a crashed holder may have
// left behind.
type sharedReceiver struct {
	mu       sync.Mutex
	rx       *Receiver
	poisoned atomic.Bool

	holders atomic.Int32
	peak    atomic.Int32

	// hook runs inside the critical section; nil outside tests.
	hook func(workerID int)
}

func newSharedReceiver(rx *Receiver, hook func(workerID int)) *sharedReceiver {
	return &sharedReceiver{rx: rx, hook: hook}
}

// recv acquires the lock, receives one job and releases the lock.
func (s *sharedReceiver) recv(workerID int) (job Job, ok bool, err error) {
	s.mu.Lock()
	if s.poisoned.Load() {
		s.mu.Unlock()
		return nil, false, rerrors.ErrPoisoned
	}

	s.enter()
	released := false
	defer func() {
		if !released {
			s.poisoned.Store(true)
			s.holders.Add(-1)
			s.mu.Unlock()
		}
	}()

	if s.hook != nil {
		s.hook(workerID)
	}
	job, ok = s.rx.Recv()

	s.holders.Add(-1)
	released = true
	s.mu.Unlock()
	return job, ok, nil
}

func (s *sharedReceiver) enter() {
	n := s.holders.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (s *sharedReceiver) isPoisoned() bool {
	return s.poisoned.Load()
}
