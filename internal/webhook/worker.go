package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Job represents a task to be executed by a worker
type Job func(ctx context.Context) error

// WorkerPool runs queued jobs on a fixed set of workers. Submission is
// non-blocking; a full queue is the caller's signal to shed load.
type WorkerPool struct {
	queue  chan Job
	num    int
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// ErrQueueFull is returned when the job queue is full
var ErrQueueFull = errors.New("worker pool queue is full")

// NewWorkerPool creates a new WorkerPool
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		queue:  make(chan Job, queueSize),
		num:    workers,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers
func (p *WorkerPool) Start() {
	slog.Info("Starting worker pool", "workers", p.num, "queue_size", cap(p.queue))
	for i := 0; i < p.num; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the queue, drains remaining jobs, and waits for the workers.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool...")
	close(p.queue)
	p.wg.Wait()
	p.cancel()
	slog.Info("Worker pool stopped")
}

// Submit adds a job to the queue. Returns ErrQueueFull if the queue is full.
func (p *WorkerPool) Submit(job Job) error {
	select {
	case p.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for job := range p.queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Panic in worker", "worker_id", id, "panic", r)
				}
			}()

			if err := job(p.ctx); err != nil {
				slog.Error("Job execution failed", "worker_id", id, "error", err)
			}
		}()
	}
}
