package threadpool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vnykmshr/ruginx/internal/testutil"
	rerrors "github.com/vnykmshr/ruginx/pkg/common/errors"
)

// recorder collects identifiers appended by jobs.
type recorder struct {
	mu  sync.Mutex
	ids []int
}

func (r *recorder) add(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ids...)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		size        int
		expectPanic bool
	}{
		{"single worker", 1, false},
		{"several workers", 4, false},
		{"many workers", 64, false},
		{"zero workers", 0, true},
		{"negative workers", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.expectPanic {
				defer func() {
					r := recover()
					if r == nil {
						t.Fatal("expected panic")
					}
					err, ok := r.(error)
					if !ok || !errors.Is(err, rerrors.ErrInvalidConfiguration) {
						t.Errorf("panic value = %v, want invalid configuration error", r)
					}
				}()
			}

			pool := New(tt.size)
			defer pool.Shutdown()

			testutil.AssertEqual(t, pool.Size(), tt.size)
			testutil.AssertEqual(t, pool.LiveWorkers(), tt.size)
			testutil.AssertEqual(t, pool.ActiveWorkers(), 0)
			testutil.AssertEqual(t, pool.QueueSize(), 0)
		})
	}
}

func TestNewWithConfigRejectsZeroWorkers(t *testing.T) {
	pool, err := NewWithConfig(Config{WorkerCount: 0})
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, pool == nil, true)
	testutil.AssertEqual(t, rerrors.IsValidationError(err), true)
}

func TestSubmitRunsJob(t *testing.T) {
	pool := New(2)
	defer pool.Shutdown()

	done := make(chan struct{})
	err := pool.Submit(JobFunc(func() { close(done) }))
	testutil.AssertNoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for job")
	}
}

func TestSubmitDoesNotWaitForExecution(t *testing.T) {
	pool := New(1)
	defer pool.Shutdown()

	release := make(chan struct{})
	start := time.Now()
	for i := 0; i < 3; i++ {
		testutil.AssertNoError(t, pool.Submit(JobFunc(func() { <-release })))
	}
	testutil.AssertEqual(t, time.Since(start) < 100*time.Millisecond, true)
	close(release)
}

func TestSubmitNilJob(t *testing.T) {
	pool := New(1)
	defer pool.Shutdown()

	testutil.AssertEqual(t, rerrors.IsValidationError(pool.Submit(nil)), true)
	testutil.AssertEqual(t, rerrors.IsValidationError(pool.Submit(JobFunc(nil))), true)
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(0))
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := New(2)
	pool.Shutdown()

	err := pool.Submit(JobFunc(func() {}))
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, errors.Is(err, rerrors.ErrClosed), true)
	testutil.AssertEqual(t, pool.Closed(), true)
}

func TestExecuteAfterShutdownPanics(t *testing.T) {
	pool := New(1)
	pool.Shutdown()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, rerrors.ErrClosed) {
			t.Errorf("panic value = %v, want ErrClosed", r)
		}
	}()

	pool.Execute(func() {})
}

func TestFIFOStartOrder(t *testing.T) {
	pool := New(1)

	var rec recorder
	for i := 1; i <= 3; i++ {
		i := i
		pool.Execute(func() { rec.add(i) })
	}
	pool.Shutdown()

	got := rec.snapshot()
	testutil.AssertEqual(t, fmt.Sprint(got), "[1 2 3]")
}

func TestShutdownDrainsQueuedJobs(t *testing.T) {
	pool := New(2)

	const n = 100
	var rec recorder
	for i := 0; i < n; i++ {
		i := i
		pool.Execute(func() {
			time.Sleep(time.Millisecond)
			rec.add(i)
		})
	}

	// Most jobs are still queued when teardown begins.
	pool.Shutdown()

	got := rec.snapshot()
	testutil.AssertEqual(t, len(got), n)
	sort.Ints(got)
	for i, id := range got {
		testutil.AssertEqual(t, id, i)
	}
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(n))
	testutil.AssertEqual(t, pool.QueueSize(), 0)
}

func TestNoWorkersAfterShutdown(t *testing.T) {
	var stopped int32
	pool, err := NewWithConfig(Config{
		WorkerCount:  3,
		OnWorkerStop: func(int) { atomic.AddInt32(&stopped, 1) },
	})
	testutil.AssertNoError(t, err)

	pool.Shutdown()

	testutil.AssertEqual(t, pool.LiveWorkers(), 0)
	testutil.AssertEqual(t, atomic.LoadInt32(&stopped), int32(3))
}

func TestShutdownTwice(t *testing.T) {
	pool := New(2)
	pool.Shutdown()

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Shutdown blocked")
	}
}

func TestShutdownWaitsForRunningJob(t *testing.T) {
	pool := New(1)

	var finished int32
	started := make(chan struct{})
	pool.Execute(func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
	})

	<-started
	pool.Shutdown()
	testutil.AssertEqual(t, atomic.LoadInt32(&finished), int32(1))
}

func TestAtMostOneActiveReceiver(t *testing.T) {
	var inside, maxInside int32
	pool, err := NewWithConfig(Config{
		WorkerCount: 4,
		receiveHook: func(int) {
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(100 * time.Microsecond)
			atomic.AddInt32(&inside, -1)
		},
	})
	testutil.AssertNoError(t, err)

	for i := 0; i < 200; i++ {
		pool.Execute(func() { time.Sleep(50 * time.Microsecond) })
	}
	pool.Shutdown()

	testutil.AssertEqual(t, atomic.LoadInt32(&maxInside), int32(1))
	testutil.AssertEqual(t, pool.PeakReceivers(), 1)
}

func TestConcurrentSubmission(t *testing.T) {
	pool := New(5)

	const submitters = 10
	const perSubmitter = 50
	runs := make([]int32, submitters*perSubmitter)

	var wg sync.WaitGroup
	for s := 0; s < submitters; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for j := 0; j < perSubmitter; j++ {
				idx := s*perSubmitter + j
				if err := pool.Submit(JobFunc(func() {
					atomic.AddInt32(&runs[idx], 1)
				})); err != nil {
					t.Errorf("submit failed: %v", err)
					return
				}
			}
		}(s)
	}
	wg.Wait()
	pool.Shutdown()

	for idx := range runs {
		if got := atomic.LoadInt32(&runs[idx]); got != 1 {
			t.Fatalf("job %d ran %d times, want 1", idx, got)
		}
	}
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(submitters*perSubmitter))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(submitters*perSubmitter))
}

func TestEndToEndTwoWorkers(t *testing.T) {
	var (
		mu        sync.Mutex
		workerIDs []int
	)
	pool, err := NewWithConfig(Config{
		WorkerCount: 2,
		OnJobStart: func(workerID int) {
			mu.Lock()
			workerIDs = append(workerIDs, workerID)
			mu.Unlock()
		},
	})
	testutil.AssertNoError(t, err)

	var rec recorder
	for i := 0; i < 5; i++ {
		i := i
		pool.Execute(func() {
			time.Sleep(10 * time.Millisecond)
			rec.add(i)
		})
	}
	pool.Shutdown()

	got := rec.snapshot()
	testutil.AssertEqual(t, len(got), 5)
	seen := make(map[int]int)
	for _, idx := range got {
		seen[idx]++
	}
	for i := 0; i < 5; i++ {
		testutil.AssertEqual(t, seen[i], 1)
	}

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertEqual(t, len(workerIDs), 5)
	distinct := make(map[int]bool)
	for _, id := range workerIDs {
		testutil.AssertEqual(t, id >= 0 && id < 2, true)
		distinct[id] = true
	}
	testutil.AssertEqual(t, len(distinct) <= 2, true)
}

func TestJobPanicIsConfined(t *testing.T) {
	var (
		mu        sync.Mutex
		recovered interface{}
	)
	pool, err := NewWithConfig(Config{
		WorkerCount: 1,
		PanicHandler: func(workerID int, r interface{}) {
			mu.Lock()
			recovered = r
			mu.Unlock()
		},
	})
	testutil.AssertNoError(t, err)

	var ran int32
	pool.Execute(func() { panic("test panic") })
	pool.Execute(func() { atomic.StoreInt32(&ran, 1) })
	pool.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertEqual(t, recovered, interface{}("test panic"))
	testutil.AssertEqual(t, atomic.LoadInt32(&ran), int32(1))
	testutil.AssertEqual(t, pool.TotalPanicked(), int64(1))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(1))
}

func TestJobPanicDefaultHandler(t *testing.T) {
	pool := New(1)

	var ran int32
	pool.Execute(func() { panic(errors.New("boom")) })
	pool.Execute(func() { atomic.StoreInt32(&ran, 1) })
	pool.Shutdown()

	testutil.AssertEqual(t, atomic.LoadInt32(&ran), int32(1))
	testutil.AssertEqual(t, pool.TotalPanicked(), int64(1))
}

func TestPoisonedReceiverStopsWorkers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	var fired int32
	pool, err := NewWithConfig(Config{
		WorkerCount: 3,
		Logger:      zap.New(core),
		receiveHook: func(int) {
			if atomic.CompareAndSwapInt32(&fired, 0, 1) {
				panic("receiver crashed")
			}
		},
	})
	testutil.AssertNoError(t, err)

	testutil.Eventually(t, func() bool {
		return pool.LiveWorkers() == 0
	}, time.Second, time.Millisecond)
	testutil.AssertEqual(t, pool.rx.isPoisoned(), true)

	refused := logs.FilterMessage("worker cannot receive; shutting down").All()
	testutil.AssertEqual(t, len(refused), 2)
	for _, e := range refused {
		testutil.AssertEqual(t, e.Level, zapcore.ErrorLevel)
	}

	pool.Shutdown()
}

func TestShutdownJoinsWorkersInIDOrder(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	const size = 8
	pool, err := NewWithConfig(Config{WorkerCount: size, Logger: zap.New(core)})
	testutil.AssertNoError(t, err)

	for i := 0; i < 3*size; i++ {
		pool.Execute(func() { time.Sleep(time.Millisecond) })
	}
	pool.Shutdown()

	entries := logs.FilterMessage("shutting down worker").All()
	testutil.AssertEqual(t, len(entries), size)
	for i, e := range entries {
		testutil.AssertEqual(t, e.ContextMap()["worker_id"], interface{}(int64(i)))
	}
}

func TestOnJobStartPanicIsConfined(t *testing.T) {
	var calls int32
	pool, err := NewWithConfig(Config{
		WorkerCount: 1,
		OnJobStart: func(int) {
			if atomic.AddInt32(&calls, 1) == 1 {
				panic("hook failed")
			}
		},
	})
	testutil.AssertNoError(t, err)

	var ran int32
	pool.Execute(func() { atomic.AddInt32(&ran, 1) })
	pool.Execute(func() { atomic.AddInt32(&ran, 1) })
	pool.Shutdown()

	testutil.AssertEqual(t, atomic.LoadInt32(&ran), int32(1))
	testutil.AssertEqual(t, pool.ActiveWorkers(), 0)
	testutil.AssertEqual(t, pool.TotalPanicked(), int64(1))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(1))
}

func TestWorkerCallbacks(t *testing.T) {
	var workerStarted, workerStopped int32
	var jobStarted, jobCompleted int32

	pool, err := NewWithConfig(Config{
		WorkerCount:   2,
		OnWorkerStart: func(int) { atomic.AddInt32(&workerStarted, 1) },
		OnWorkerStop:  func(int) { atomic.AddInt32(&workerStopped, 1) },
		OnJobStart:    func(int) { atomic.AddInt32(&jobStarted, 1) },
		OnJobComplete: func(int, time.Duration) { atomic.AddInt32(&jobCompleted, 1) },
	})
	testutil.AssertNoError(t, err)

	testutil.WaitForInt32(t, &workerStarted, 2, time.Second)

	pool.Execute(func() {})
	testutil.WaitForInt32(t, &jobCompleted, 1, time.Second)
	testutil.AssertEqual(t, atomic.LoadInt32(&jobStarted), int32(1))

	pool.Shutdown()
	testutil.AssertEqual(t, atomic.LoadInt32(&workerStopped), int32(2))
}

func TestActiveWorkersAndQueueSize(t *testing.T) {
	pool := New(2)

	release := make(chan struct{})
	for i := 0; i < 2; i++ {
		pool.Execute(func() { <-release })
	}
	testutil.Eventually(t, func() bool {
		return pool.ActiveWorkers() == 2
	}, time.Second, time.Millisecond)

	for i := 0; i < 3; i++ {
		pool.Execute(func() {})
	}
	testutil.AssertEqual(t, pool.QueueSize(), 3)

	close(release)
	pool.Shutdown()

	testutil.AssertEqual(t, pool.ActiveWorkers(), 0)
	testutil.AssertEqual(t, pool.QueueSize(), 0)
}

func TestStats(t *testing.T) {
	pool := New(3)
	for i := 0; i < 4; i++ {
		pool.Execute(func() {})
	}
	pool.Execute(func() { panic("x") })
	pool.Shutdown()

	stats := pool.Stats()
	testutil.AssertEqual(t, stats.Workers, 3)
	testutil.AssertEqual(t, stats.LiveWorkers, 0)
	testutil.AssertEqual(t, stats.Submitted, int64(5))
	testutil.AssertEqual(t, stats.Completed, int64(4))
	testutil.AssertEqual(t, stats.Panicked, int64(1))
	testutil.AssertEqual(t, stats.Closed, true)
	testutil.AssertEqual(t, stats.PeakReceivers, 1)
}
