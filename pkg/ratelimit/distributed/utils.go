package distributed

import (
	"crypto/rand"
	"fmt"
	"os"
	"time"
)

// generateInstanceID creates a unique identifier for this application instance.
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	randomBytes := make([]byte, 4)
	_, _ = rand.Read(randomBytes)

	return fmt.Sprintf("%s-%d-%x-%d", hostname, os.Getpid(), randomBytes, time.Now().Unix())
}

// limiterKeys holds the Redis keys derived from one prefix.
type limiterKeys struct {
	window    string
	config    string
	stats     string
	instances string
}

func redisKeys(prefix string) limiterKeys {
	return limiterKeys{
		window:    prefix + ":window",
		config:    prefix + ":config",
		stats:     prefix + ":stats",
		instances: prefix + ":instances",
	}
}
