package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("ingest queue is full")
	// ErrPoolStopped is returned by Submit before Start or after Stop.
	ErrPoolStopped = errors.New("ingest pool is not running")
)

// Runner executes one job.
type Runner interface {
	Run(ctx context.Context, job Job) (*Result, error)
}

// PoolConfig holds configuration for the pool.
type PoolConfig struct {
	Workers   int // Number of concurrent jobs
	QueueSize int // Jobs waiting for a worker before Submit fails
	Logger    *slog.Logger
}

// Pool runs ingestion jobs on a fixed number of workers fed by a bounded queue.
type Pool struct {
	runner    Runner
	logger    *slog.Logger
	workers   int
	queueSize int

	mu      sync.RWMutex
	running bool
	jobs    chan Job
	wg      sync.WaitGroup
}

// NewPool creates a pool. Workers defaults to 2 and QueueSize to 100.
func NewPool(runner Runner, cfg PoolConfig) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		runner:    runner,
		logger:    logger,
		workers:   workers,
		queueSize: queueSize,
	}
}

// Start launches the workers. Jobs run with ctx, which should outlive requests.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.jobs = make(chan Job, p.queueSize)

	p.logger.Info("ingest pool starting", "workers", p.workers, "queue_size", p.queueSize)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.processLoop(ctx, workerID, p.jobs)
		}(i)
	}
}

// Stop stops accepting jobs and waits for queued and running jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("ingest pool stopped")
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued jobs.
func (p *Pool) Pending() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.jobs == nil {
		return 0
	}
	return len(p.jobs)
}

func (p *Pool) processLoop(ctx context.Context, workerID int, jobs <-chan Job) {
	logger := p.logger.With("worker_id", workerID)
	for job := range jobs {
		start := time.Now()
		if _, err := p.runner.Run(ctx, job); err != nil {
			logger.Warn("job failed", "task_id", job.TaskID, "file", job.FileName, "duration", time.Since(start))
			continue
		}
		logger.Debug("job done", "task_id", job.TaskID, "duration", time.Since(start))
	}
}
