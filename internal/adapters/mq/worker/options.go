// Package worker defines the digest workers that drain the ingest
// queue into the event store.
package worker

import (
	"github.com/okian/cull/pkg/logger"
)

// Option applies a configuration option to the DigestWorker.
type Option func(*DigestWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *DigestWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *DigestWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}
