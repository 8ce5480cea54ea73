// package worker_pool runs scene builds and teardowns on a fixed set of long-lived worker goroutines fed by a
// bounded job queue.
package worker_pool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-stage/engine/queue"
	"github.com/Carmen-Shannon/oxy-stage/engine/scene"
	"github.com/Carmen-Shannon/oxy-stage/engine/timeline"
	"go.uber.org/zap"
)

// Job is one unit of worker work. A job with a token builds its scene; a job without one destroys it.
// The zero Job is the shutdown sentinel.
type Job struct {
	Scene  scene.ID
	Ticket timeline.Ticket
	Token  timeline.Token
}

// IsSentinel reports whether the job tells a worker to exit.
func (j Job) IsSentinel() bool {
	return j.Scene == scene.NoID && j.Ticket == timeline.NoTicket
}

// IsBuild reports whether the job builds a scene.
func (j Job) IsBuild() bool {
	return j.Token != timeline.NoToken
}

// Completion reports a finished build. The recording itself stays bound to the token.
type Completion struct {
	Scene  scene.ID
	Ticket timeline.Ticket
	Token  timeline.Token
}

// Executor performs the work a job describes.
type Executor interface {
	// Build constructs the job's scene into the recording bound to the job's token.
	//
	// Parameters:
	//   - job: the build job
	//
	// Returns:
	//   - error: error if construction failed
	Build(job Job) error

	// Destroy tears the job's scene down.
	//
	// Parameters:
	//   - job: the destroy job
	//
	// Returns:
	//   - error: error if teardown failed
	Destroy(job Job) error
}

// WorkerPool drains a job queue with a fixed number of workers.
type WorkerPool interface {
	// Workers returns the number of worker goroutines.
	//
	// Returns:
	//   - int: worker count
	Workers() int

	// Built returns how many build jobs have completed.
	//
	// Returns:
	//   - uint64: build count
	Built() uint64

	// Destroyed returns how many destroy jobs have completed.
	//
	// Returns:
	//   - uint64: destroy count
	Destroyed() uint64

	// Close pushes one sentinel per worker behind any queued jobs and waits for every worker to exit.
	// Safe to call multiple times; subsequent calls are no-ops.
	Close()
}

// workerPool is the implementation of the WorkerPool interface.
type workerPool struct {
	jobs        *queue.BoundedQueue[Job]
	completions *queue.BoundedQueue[Completion]
	exec        Executor
	log         *zap.Logger

	workers int
	host    worker.DynamicWorkerPool
	wg      sync.WaitGroup

	closeOnce sync.Once
	built     atomic.Uint64
	destroyed atomic.Uint64
}

var _ WorkerPool = &workerPool{}

// DefaultWorkers returns the hardware concurrency minus the render and scene goroutines, at least 1.
//
// Returns:
//   - int: the default worker count
func DefaultWorkers() int {
	return max(runtime.NumCPU()-2, 1)
}

// NewWorkerPool creates a new WorkerPool and starts its workers.
// Each worker is hosted as one long-running task on a DynamicWorkerPool sized to the worker count.
//
// Parameters:
//   - jobs: the queue workers pop jobs from
//   - completions: the queue finished builds are pushed to
//   - exec: performs builds and teardowns
//   - options: variadic list of WorkerPoolBuilderOption functions to configure the pool
//
// Returns:
//   - WorkerPool: the running pool
func NewWorkerPool(jobs *queue.BoundedQueue[Job], completions *queue.BoundedQueue[Completion], exec Executor, options ...WorkerPoolBuilderOption) WorkerPool {
	p := &workerPool{
		jobs:        jobs,
		completions: completions,
		exec:        exec,
		log:         zap.NewNop(),
		workers:     DefaultWorkers(),
	}
	for _, opt := range options {
		opt(p)
	}

	p.host = worker.NewDynamicWorkerPool(p.workers, p.workers, time.Second)
	p.wg.Add(p.workers)
	for i := range p.workers {
		p.host.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				p.run(i)
				return nil, nil
			},
		})
	}

	p.log.Debug("worker pool started", zap.Int("workers", p.workers))
	return p
}

func (p *workerPool) Workers() int {
	return p.workers
}

func (p *workerPool) Built() uint64 {
	return p.built.Load()
}

func (p *workerPool) Destroyed() uint64 {
	return p.destroyed.Load()
}

func (p *workerPool) Close() {
	p.closeOnce.Do(func() {
		for range p.workers {
			p.jobs.Push(Job{})
		}
		p.wg.Wait()
		p.host.Stop()
		p.log.Debug("worker pool stopped",
			zap.Uint64("built", p.built.Load()),
			zap.Uint64("destroyed", p.destroyed.Load()))
	})
}

// run is one worker's loop. It returns when it pops a sentinel. Build and teardown failures are fatal.
func (p *workerPool) run(id int) {
	defer p.wg.Done()

	for {
		job := p.jobs.Pop()
		switch {
		case job.IsSentinel():
			return

		case job.IsBuild():
			if err := p.exec.Build(job); err != nil {
				p.log.Panic("scene build failed",
					zap.Int("worker", id),
					zap.Uint32("scene", uint32(job.Scene)),
					zap.Uint64("ticket", uint64(job.Ticket)),
					zap.Error(err))
			}
			p.built.Add(1)
			p.completions.Push(Completion{Scene: job.Scene, Ticket: job.Ticket, Token: job.Token})

		default:
			if err := p.exec.Destroy(job); err != nil {
				p.log.Panic("scene teardown failed",
					zap.Int("worker", id),
					zap.Uint32("scene", uint32(job.Scene)),
					zap.Error(err))
			}
			p.destroyed.Add(1)
		}
	}
}
