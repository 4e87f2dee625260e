package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every ruginx metric name.
const DefaultNamespace = "ruginx"

// Config holds configuration for metrics collection.
type Config struct {
	// Registry is the Prometheus registry to use. If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace overrides the default "ruginx" namespace for metrics.
	Namespace string

	// Labels are additional constant labels added to all metrics.
	Labels prometheus.Labels
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Registry:  prometheus.DefaultRegisterer,
		Namespace: DefaultNamespace,
	}
}

func (c Config) withDefaults() Config {
	if c.Registry == nil {
		c.Registry = prometheus.DefaultRegisterer
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	return c
}
