// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabasePath is the SQLite file backing the event store.
	// ":memory:" keeps everything in RAM, useful for tests.
	DatabasePath string `koanf:"database_path"`

	// EventQueueSize bounds the in-memory event queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of digest workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// DefaultMaxEventCount is the retention quota for projects created
	// without an explicit limit.
	DefaultMaxEventCount int64 `koanf:"default_max_event_count"`

	// EvictionTargetRatio is the fraction of the quota evictions shrink
	// down to, so that consecutive over-quota ingests do not each pay
	// for a full eviction pass.
	EvictionTargetRatio float64 `koanf:"eviction_target_ratio"`

	// BusyTimeoutMS is handed to SQLite's busy_timeout pragma.
	BusyTimeoutMS int `koanf:"busy_timeout_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	c := &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		DatabasePath:         "cull.db",
		EventQueueSize:       100_000,
		WorkerCount:          runtime.NumCPU() * 2,
		DedupeSize:           500_000,
		DefaultMaxEventCount: 10_000,
		EvictionTargetRatio:  0.95,
		BusyTimeoutMS:        5_000,
	}
	return c
}
