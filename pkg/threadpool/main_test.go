package threadpool

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in this package.
// A pool that is shut down must leave no worker goroutine behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
