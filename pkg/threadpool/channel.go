package threadpool

import (
	"sync"

	rerrors "github.com/vnykmshr/ruginx/pkg/common/errors"
)

const initialChannelCapacity = 64

// channelState is an unbounded FIFO of jobs shared by one Sender and one
// Receiver. Storage is a ring buffer that doubles when full, so Send never
// blocks on capacity.
type channelState struct {
	mu     sync.Mutex
	ready  *sync.Cond
	buf    []Job
	head   int
	size   int
	closed bool
}

// Sender is the sending endpoint of a job channel.
type Sender struct {
	st *channelState
}

// Receiver is the receiving endpoint of a job channel.
type Receiver struct {
	st *channelState
}

// NewChannel creates a job channel and returns its two endpoints.
func NewChannel() (*Sender, *Receiver) {
	st := &channelState{buf: make([]Job, initialChannelCapacity)}
	st.ready = sync.NewCond(&st.mu)
	return &Sender{st: st}, &Receiver{st: st}
}

// Send appends job to the tail of the channel and wakes one waiting
// receiver. It returns errors.ErrClosed once the sender has been closed.
func (s *Sender) Send(job Job) error {
	c := s.st
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return rerrors.ErrClosed
	}
	if c.size == len(c.buf) {
		c.grow()
	}
	c.buf[(c.head+c.size)%len(c.buf)] = job
	c.size++
	c.ready.Signal()
	return nil
}

// Close closes the channel. Jobs already sent remain receivable; once they
// are drained Recv reports closure. Closing twice is a no-op.
func (s *Sender) Close() {
	c := s.st
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.ready.Broadcast()
}

// Recv blocks until a job is available or the channel is closed and empty.
// The second result is false only in the latter case.
func (r *Receiver) Recv() (Job, bool) {
	c := r.st
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.size == 0 && !c.closed {
		c.ready.Wait()
	}
	if c.size == 0 {
		return nil, false
	}

	job := c.buf[c.head]
	c.buf[c.head] = nil
	c.head = (c.head + 1) % len(c.buf)
	c.size--
	return job, true
}

// Len returns the number of jobs waiting in the channel.
func (r *Receiver) Len() int {
	c := r.st
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// grow doubles the ring buffer, unrolling it so head is 0. Callers hold mu.
func (c *channelState) grow() {
	next := make([]Job, len(c.buf)*2)
	for i := 0; i < c.size; i++ {
		next[i] = c.buf[(c.head+i)%len(c.buf)]
	}
	c.buf = next
	c.head = 0
}
