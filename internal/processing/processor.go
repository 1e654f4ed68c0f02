// Package processing runs deferred formula patches on an in-process worker
// pool when no Redis queue is configured. Goroutines read jobs from one
// buffered channel, so a submission returns as soon as its job is queued.
package processing

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/GBSLIT/FairForm/internal/formula"
)

var (
	// ErrQueueFull is returned by Patch when the buffer has no room.
	ErrQueueFull = errors.New("formula queue full")
	// ErrPoolStopped is returned by Patch once the pool is shutting down, and
	// handed to Runner.Abandon for jobs that were still buffered.
	ErrPoolStopped = errors.New("formula pool stopped before the patch ran")
)

// Runner performs one job. worker.Processor satisfies it.
type Runner interface {
	Run(ctx context.Context, job formula.Job) error
	// Abandon records that job will never run.
	Abandon(ctx context.Context, job formula.Job, reason error)
}

// Pool consumes formula jobs on a fixed set of goroutines.
type Pool struct {
	runner  Runner
	queue   chan formula.Job
	workers int
	wg      sync.WaitGroup
	once    sync.Once

	// mu orders Patch against shutdown: once stopped is set under the write
	// lock no further job can enter the queue, and the drain sees every job
	// that did.
	mu      sync.RWMutex
	stopped bool
}

// New builds a Pool with queue capacity tied to worker count.
func New(runner Runner, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		runner: runner,
		// The buffer absorbs a burst of submissions while every worker is
		// busy talking to Graph.
		queue:   make(chan formula.Job, workers*4),
		workers: workers,
	}
}

// Start launches the workers. They exit when ctx is cancelled, and whatever
// is still buffered at that point is handed to Runner.Abandon. Wait blocks
// until all of that has happened.
func (p *Pool) Start(ctx context.Context) {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx)
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			<-ctx.Done()
			p.stop(ctx)
		}()
	})
}

// Wait blocks until every worker has returned and the queue is drained.
func (p *Pool) Wait() { p.wg.Wait() }

// Patch queues job without blocking the submission. The bearer token is not
// kept; the runner fetches a fresh one.
func (p *Pool) Patch(_ context.Context, _ string, job formula.Job) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return "", ErrPoolStopped
	}
	select {
	case p.queue <- job:
		return formula.Queued, nil
	default:
		// The buffer is full. The caller turns the error into a warning on
		// the submission, so nothing is lost silently.
		log.Printf("formula queue full, dropping job for %s", job.SubmissionID)
		return "", ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			// select picks at random when both cases are ready, so a job can
			// still arrive here after cancellation. It is abandoned like the
			// rest of the buffer instead of running on a dead context.
			if ctx.Err() != nil {
				p.abandon(ctx, job)
				return
			}
			// Failures are recorded by the runner.
			_ = p.runner.Run(ctx, job)
		}
	}
}

// stop refuses new jobs and abandons everything left in the buffer.
func (p *Pool) stop(ctx context.Context) {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	for {
		select {
		case job := <-p.queue:
			p.abandon(ctx, job)
		default:
			return
		}
	}
}

func (p *Pool) abandon(ctx context.Context, job formula.Job) {
	log.Printf("formula job for %s abandoned at shutdown", job.SubmissionID)
	p.runner.Abandon(ctx, job, ErrPoolStopped)
}
