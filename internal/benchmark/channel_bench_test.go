package benchmark

import (
	"strconv"
	"sync"
	"testing"

	"github.com/vnykmshr/ruginx/pkg/threadpool"
)

var noop = threadpool.JobFunc(func() {})

// BenchmarkJobChannelContention measures the unbounded job channel with
// several producers and consumers.
func BenchmarkJobChannelContention(b *testing.B) {
	for _, producers := range []int{2, 4, 8, 16} {
		b.Run(contentionLabel(producers), func(b *testing.B) {
			tx, rx := threadpool.NewChannel()

			consumers := producers / 2
			if consumers < 1 {
				consumers = 1
			}

			var consumerWg sync.WaitGroup
			consumerWg.Add(consumers)
			for i := 0; i < consumers; i++ {
				go func() {
					defer consumerWg.Done()
					for {
						if _, ok := rx.Recv(); !ok {
							return
						}
					}
				}()
			}

			b.ReportAllocs()
			b.ResetTimer()

			var producerWg sync.WaitGroup
			perProducer := b.N / producers
			producerWg.Add(producers)
			for p := 0; p < producers; p++ {
				go func() {
					defer producerWg.Done()
					for i := 0; i < perProducer; i++ {
						_ = tx.Send(noop)
					}
				}()
			}

			producerWg.Wait()
			tx.Close()
			consumerWg.Wait()
		})
	}
}

// BenchmarkBuiltinChannelContention is the same workload on a buffered Go
// channel, for comparison.
func BenchmarkBuiltinChannelContention(b *testing.B) {
	for _, producers := range []int{2, 4, 8, 16} {
		b.Run(contentionLabel(producers), func(b *testing.B) {
			ch := make(chan threadpool.Job, 100)

			consumers := producers / 2
			if consumers < 1 {
				consumers = 1
			}

			var consumerWg sync.WaitGroup
			consumerWg.Add(consumers)
			for i := 0; i < consumers; i++ {
				go func() {
					defer consumerWg.Done()
					for range ch {
					}
				}()
			}

			b.ReportAllocs()
			b.ResetTimer()

			var producerWg sync.WaitGroup
			perProducer := b.N / producers
			producerWg.Add(producers)
			for p := 0; p < producers; p++ {
				go func() {
					defer producerWg.Done()
					for i := 0; i < perProducer; i++ {
						ch <- noop
					}
				}()
			}

			producerWg.Wait()
			close(ch)
			consumerWg.Wait()
		})
	}
}

// BenchmarkJobChannelBurst fills the channel before draining it, which
// exercises buffer growth.
func BenchmarkJobChannelBurst(b *testing.B) {
	for _, burst := range []int{64, 1024, 16384} {
		b.Run(strconv.Itoa(burst), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				tx, rx := threadpool.NewChannel()
				for j := 0; j < burst; j++ {
					_ = tx.Send(noop)
				}
				tx.Close()
				for {
					if _, ok := rx.Recv(); !ok {
						break
					}
				}
			}
		})
	}
}

func contentionLabel(level int) string {
	return strconv.Itoa(level) + "producers"
}
