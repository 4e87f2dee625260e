package threadpool

import (
	"fmt"
	"sync"
	"testing"
)

// BenchmarkSubmit measures the overhead of submission and dispatch.
func BenchmarkSubmit(b *testing.B) {
	for _, workers := range []int{1, 4, 16} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			pool := New(workers)
			var wg sync.WaitGroup
			wg.Add(b.N)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				pool.Execute(wg.Done)
			}
			wg.Wait()
			b.StopTimer()

			pool.Shutdown()
		})
	}
}

// BenchmarkSubmitParallel measures contention between concurrent submitters.
func BenchmarkSubmitParallel(b *testing.B) {
	pool := New(4)
	defer pool.Shutdown()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			pool.Execute(func() {})
		}
	})
}

// BenchmarkChannel measures raw send/receive on the job channel.
func BenchmarkChannel(b *testing.B) {
	tx, rx := NewChannel()
	job := JobFunc(func() {})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tx.Send(job)
		rx.Recv()
	}
}
