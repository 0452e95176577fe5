// Package worker runs compressions on a fixed set of goroutines so CPU-heavy
// encodes cannot outnumber the cores behind the HTTP server.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harliandi/go-kycimage/pkg/compression"
	"github.com/harliandi/go-kycimage/pkg/metrics"
)

var (
	// ErrPoolBusy is returned when the worker pool is at capacity
	ErrPoolBusy = errors.New("worker pool is busy, please retry later")
	// ErrPoolStopped is returned for submissions after Stop
	ErrPoolStopped = errors.New("worker pool is stopped")
)

const retryBackoff = 10 * time.Millisecond

// Job represents a compression job
type Job struct {
	ctx     context.Context
	Data    []byte
	Options compression.Options
	Result  chan<- Result
}

// Result represents the outcome of a compression job
type Result struct {
	Res *compression.Result
	Err error
}

// Pool manages a pool of worker goroutines for compression jobs
type Pool struct {
	jobs     chan Job
	workers  int
	compress compression.CompressFunc
	logger   *slog.Logger
	active   atomic.Int32

	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	stopped bool
}

// NewPool creates a pool with the given number of workers and a queue of
// twice that many jobs.
func NewPool(workers int, logger *slog.Logger) *Pool {
	return newPool(workers, compression.Compress, logger)
}

func newPool(workers int, fn compression.CompressFunc, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		jobs:     make(chan Job, workers*2),
		workers:  workers,
		compress: fn,
		logger:   logger,
	}
}

// Start starts the worker goroutines. It is safe to call more than once.
func (p *Pool) Start() {
	p.once.Do(func() {
		p.logger.Info("starting worker pool", "workers", p.workers)
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.active.Add(1)
		p.updateMetrics()

		start := time.Now()
		res, err := p.compress(job.ctx, job.Data, job.Options)
		record(job, res, err, time.Since(start))

		p.active.Add(-1)
		p.updateMetrics()

		// Result channel is buffered; a gone receiver must not block the worker
		select {
		case job.Result <- Result{Res: res, Err: err}:
		default:
			p.logger.Warn("result channel full or abandoned", "worker", id)
		}
	}
}

func record(job Job, res *compression.Result, err error, d time.Duration) {
	switch {
	case err == nil:
		metrics.RecordCompression(string(job.Options.Format), d.Seconds(),
			res.OriginalSize, res.CompressedSize, res.Attempts, res.CompressionRatio, res.WithinBudget)
	case errors.Is(err, compression.ErrDecode):
		metrics.RecordCompressionFailure("decode_error")
	case errors.Is(err, compression.ErrEncode):
		metrics.RecordCompressionFailure("encode_error")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		metrics.RecordCompressionFailure("cancelled")
	default:
		metrics.RecordCompressionFailure("error")
	}
}

// Submit queues a compression and waits for its result. It returns
// ErrPoolBusy without waiting when the queue is full. Its signature matches
// compression.CompressFunc.
func (p *Pool) Submit(ctx context.Context, data []byte, opts compression.Options) (*compression.Result, error) {
	p.Start()

	resultChan := make(chan Result, 1)
	job := Job{
		ctx:     ctx,
		Data:    data,
		Options: opts,
		Result:  resultChan,
	}

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return nil, ErrPoolStopped
	}
	select {
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, ctx.Err()
	case p.jobs <- job:
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		return nil, ErrPoolBusy
	}
	p.updateMetrics()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultChan:
		return result.Res, result.Err
	}
}

// SubmitWithRetry submits once and then retries up to maxRetries times while
// the pool reports ErrPoolBusy, backing off linearly between attempts.
func (p *Pool) SubmitWithRetry(ctx context.Context, data []byte, opts compression.Options, maxRetries int) (*compression.Result, error) {
	for i := 0; ; i++ {
		res, err := p.Submit(ctx, data, opts)
		if !errors.Is(err, ErrPoolBusy) || i >= maxRetries {
			return res, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * retryBackoff):
		}
	}
}

// Retrying adapts SubmitWithRetry to compression.CompressFunc so a short
// burst queues behind the workers instead of failing the request.
func (p *Pool) Retrying(maxRetries int) compression.CompressFunc {
	return func(ctx context.Context, data []byte, opts compression.Options) (*compression.Result, error) {
		return p.SubmitWithRetry(ctx, data, opts, maxRetries)
	}
}

// Stop closes the queue and waits for running jobs to finish
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Stats returns the number of queued and running jobs
func (p *Pool) Stats() (queued, active int) {
	return len(p.jobs), int(p.active.Load())
}

func (p *Pool) updateMetrics() {
	queued, active := p.Stats()
	metrics.UpdateWorkerPoolMetrics(queued, active)
}
