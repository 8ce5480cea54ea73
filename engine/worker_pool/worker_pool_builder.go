package worker_pool

import "go.uber.org/zap"

// WorkerPoolBuilderOption is a functional option for configuring a WorkerPool.
type WorkerPoolBuilderOption func(*workerPool)

// WithWorkers sets the number of worker goroutines. Defaults to DefaultWorkers().
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - WorkerPoolBuilderOption: option function to apply
func WithWorkers(n int) WorkerPoolBuilderOption {
	return func(p *workerPool) {
		if n < 1 {
			n = 1
		}
		p.workers = n
	}
}

// WithLogger sets the logger used by the workers.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - WorkerPoolBuilderOption: option function to apply
func WithLogger(log *zap.Logger) WorkerPoolBuilderOption {
	return func(p *workerPool) {
		if log != nil {
			p.log = log
		}
	}
}
