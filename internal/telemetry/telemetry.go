package telemetry

import (
	"strings"
	"sync/atomic"
)

var globalEnvironment atomic.Value

// SetEnvironment records the environment label attached to every messenger metric.
func SetEnvironment(env string) {
	globalEnvironment.Store(strings.ToLower(strings.TrimSpace(env)))
}

// Environment returns the configured environment label, defaulting to "development".
func Environment() string {
	if v, ok := globalEnvironment.Load().(string); ok && v != "" {
		return v
	}
	return "development"
}
