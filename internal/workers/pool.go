// Package workers provides a worker pool implementation for concurrent host
// enumeration. It supports job queuing, per-job retries, rate limiting,
// graceful shutdown, and reports to the structured logging and Prometheus
// metrics systems.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anstrom/hostenum/internal/logging"
	"github.com/anstrom/hostenum/internal/metrics"
)

// Job represents a unit of work to be executed by a worker.
type Job interface {
	// Execute performs the job and returns an error if it fails.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for the job.
	ID() string
	// Type returns the job type for metrics and logging.
	Type() string
}

// Result represents the result of executing a job.
type Result struct {
	JobID    string
	JobType  string
	Error    error
	Duration time.Duration
	Retries  int
}

// Config holds configuration for the worker pool.
type Config struct {
	// Size is the number of worker goroutines to create.
	Size int
	// QueueSize is the maximum number of jobs that can be queued.
	QueueSize int
	// MaxRetries is the maximum number of retries for failed jobs.
	MaxRetries int
	// RetryDelay is the delay between retries.
	RetryDelay time.Duration
	// ShutdownTimeout is the maximum time to wait for workers to finish.
	ShutdownTimeout time.Duration
	// RateLimit is the maximum number of jobs per second (0 = no limit).
	RateLimit int
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Size:            1,
		QueueSize:       256,
		MaxRetries:      0,
		RetryDelay:      time.Second,
		ShutdownTimeout: 30 * time.Second,
		RateLimit:       0,
	}
}

// Pool manages a pool of worker goroutines for concurrent job execution.
type Pool struct {
	config      Config
	jobs        chan Job
	results     chan Result
	workers     []*worker
	wg          sync.WaitGroup
	pending     sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	rateLimiter *time.Ticker
	metrics     *metrics.PrometheusMetrics
	logger      *logging.Logger
	startOnce   sync.Once
	mu          sync.RWMutex // guards closing of jobs
	closed      int32        // atomic shutdown flag
}

// worker represents a single worker goroutine.
type worker struct {
	id   int
	pool *Pool
}

// New creates a new worker pool with the given configuration.
func New(config Config) *Pool {
	return NewWithContext(context.Background(), config)
}

// NewWithContext creates a pool whose jobs are canceled with parent.
func NewWithContext(parent context.Context, config Config) *Pool {
	if config.Size <= 0 {
		config.Size = 1
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}
	ctx, cancel := context.WithCancel(parent)

	pool := &Pool{
		config:  config,
		jobs:    make(chan Job, config.QueueSize),
		results: make(chan Result, config.QueueSize),
		workers: make([]*worker, config.Size),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logging.Default().WithComponent("workers"),
	}

	if config.RateLimit > 0 {
		interval := time.Second / time.Duration(config.RateLimit)
		pool.rateLimiter = time.NewTicker(interval)
	}

	for i := 0; i < config.Size; i++ {
		pool.workers[i] = &worker{
			id:   i,
			pool: pool,
		}
	}

	return pool
}

// WithMetrics attaches a Prometheus metrics sink.
func (p *Pool) WithMetrics(pm *metrics.PrometheusMetrics) *Pool {
	p.metrics = pm
	return p
}

// Start begins the worker pool operations.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Debug("Starting worker pool",
			"worker_count", p.config.Size,
			"queue_size", p.config.QueueSize,
			"rate_limit", p.config.RateLimit)

		for _, w := range p.workers {
			p.wg.Add(1)
			go w.run()
		}
	})
}

// Submit adds a job to the worker pool queue.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if atomic.LoadInt32(&p.closed) == 1 {
		return fmt.Errorf("worker pool is shut down")
	}

	p.pending.Add(1)
	select {
	case p.jobs <- job:
		p.logger.Debug("Job submitted to worker pool",
			"job_id", job.ID(),
			"job_type", job.Type())
		return nil
	case <-p.ctx.Done():
		p.pending.Done()
		return fmt.Errorf("worker pool is shutting down")
	default:
		p.pending.Done()
		return fmt.Errorf("job queue is full")
	}
}

// Results returns a channel for receiving job results. Results are dropped
// when the channel buffer is full.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Wait blocks until every submitted job has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Shutdown stops accepting jobs, lets queued jobs drain, and waits for
// workers up to the configured shutdown timeout before canceling them.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		p.mu.Unlock()
		return nil
	}
	close(p.jobs)
	p.mu.Unlock()

	p.logger.Debug("Shutting down worker pool")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	if p.config.ShutdownTimeout > 0 {
		select {
		case <-done:
		case <-time.After(p.config.ShutdownTimeout):
			p.logger.Warn("Worker pool shutdown timeout, canceling running jobs")
			err = fmt.Errorf("worker pool shutdown timed out after %s", p.config.ShutdownTimeout)
			p.cancel()
			<-done
		}
	} else {
		<-done
	}

	p.cancel()
	close(p.results)
	if p.rateLimiter != nil {
		p.rateLimiter.Stop()
	}
	return err
}

// run executes the worker loop until the job queue closes.
func (w *worker) run() {
	defer w.pool.wg.Done()

	for job := range w.pool.jobs {
		w.executeJob(job)
		w.pool.pending.Done()
	}
}

// executeJob executes a single job with retry logic.
func (w *worker) executeJob(job Job) {
	p := w.pool
	if p.metrics != nil {
		p.metrics.AddActiveWorkers(1)
		defer p.metrics.AddActiveWorkers(-1)
	}

	if p.rateLimiter != nil {
		select {
		case <-p.rateLimiter.C:
		case <-p.ctx.Done():
			p.finish(Result{JobID: job.ID(), JobType: job.Type(), Error: p.ctx.Err()})
			return
		}
	}

	var lastErr error
	var retries int
	start := time.Now()

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if err := p.ctx.Err(); err != nil {
			lastErr = err
			break
		}

		err := job.Execute(p.ctx)
		if err == nil {
			p.finish(Result{
				JobID:    job.ID(),
				JobType:  job.Type(),
				Duration: time.Since(start),
				Retries:  retries,
			})
			p.logger.Debug("Job completed successfully",
				"job_id", job.ID(),
				"job_type", job.Type(),
				"worker_id", w.id,
				"retries", retries)
			return
		}

		lastErr = err
		retries = attempt

		if attempt < p.config.MaxRetries {
			p.logger.Debug("Job failed, retrying",
				"job_id", job.ID(),
				"job_type", job.Type(),
				"attempt", attempt+1,
				"max_retries", p.config.MaxRetries,
				"error", err)

			select {
			case <-time.After(p.config.RetryDelay):
			case <-p.ctx.Done():
			}
		}
	}

	p.finish(Result{
		JobID:    job.ID(),
		JobType:  job.Type(),
		Error:    lastErr,
		Duration: time.Since(start),
		Retries:  retries,
	})

	p.logger.Error("Job failed after retries",
		"job_id", job.ID(),
		"job_type", job.Type(),
		"retries", retries,
		"error", lastErr,
		"worker_id", w.id)
}

// finish records metrics and publishes the result without blocking.
func (p *Pool) finish(r Result) {
	if p.metrics != nil {
		status := metrics.StatusSuccess
		if r.Error != nil {
			status = metrics.StatusError
		}
		p.metrics.IncrementPoolJobs(status)
	}

	select {
	case p.results <- r:
	default:
	}
}

// FuncJob adapts a function to the Job interface.
type FuncJob struct {
	id      string
	jobType string
	fn      func(ctx context.Context) error
}

// NewFuncJob creates a job that runs fn.
func NewFuncJob(id, jobType string, fn func(ctx context.Context) error) *FuncJob {
	return &FuncJob{id: id, jobType: jobType, fn: fn}
}

// Execute implements the Job interface.
func (j *FuncJob) Execute(ctx context.Context) error {
	return j.fn(ctx)
}

// ID implements the Job interface.
func (j *FuncJob) ID() string {
	return j.id
}

// Type implements the Job interface.
func (j *FuncJob) Type() string {
	return j.jobType
}
