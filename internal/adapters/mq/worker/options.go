package worker

import (
	"github.com/okian/rallyscore/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithSink persists every scored batch.
func WithSink(s Sink) Option {
	return func(w *InMemoryWorker) {
		w.sink = s
	}
}

// WithPublisher announces every scored batch.
func WithPublisher(p Publisher) Option {
	return func(w *InMemoryWorker) {
		w.publisher = p
	}
}

// withLocks shares match locks between the workers of a pool.
func withLocks(l *matchLocks) Option {
	return func(w *InMemoryWorker) {
		w.locks = l
	}
}
