package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docuscan/docuscan/internal/entity"
	"github.com/docuscan/docuscan/internal/pipeline"
)

// Pool runs workers that claim jobs from the store and execute them to
// completion, plus a reaper that recovers jobs abandoned by crashed
// workers. Jobs are independent; blocking on the model call inside one
// worker is acceptable.
type Pool struct {
	store    JobStore
	executor JobExecutor
	logger   *slog.Logger

	workers      int
	pollInterval time.Duration
	leaseTTL     time.Duration
	reapInterval time.Duration
	timeout      time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

func WithLeaseTTL(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.leaseTTL = d
		}
	}
}

func WithReapInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.reapInterval = d
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewPool(store JobStore, executor JobExecutor, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		store:        store,
		executor:     executor,
		logger:       logger,
		workers:      4,
		pollInterval: 500 * time.Millisecond,
		leaseTTL:     5 * time.Minute,
		reapInterval: 30 * time.Second,
		timeout:      3 * time.Minute,
		ctx:          ctx,
		cancel:       cancel,
		running:      make(map[uuid.UUID]context.CancelFunc),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the workers and the reaper.
func (p *Pool) Start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.workerLoop(i + 1)
		}
		p.wg.Add(1)
		go p.reaperLoop()
	})
}

// Shutdown stops claiming new jobs and waits for in-flight jobs to
// reach a terminal state, or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) {
	p.cancel()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("queue.shutdown_interrupted")
	case <-done:
		p.logger.Info("queue.shutdown_complete")
	}
}

// CancelRunning aborts the in-process context of a running job, so a
// cancellation request takes effect before the next stage boundary.
// Jobs running in other processes are covered by the store flag and
// the lease reaper.
func (p *Pool) CancelRunning(id uuid.UUID) {
	p.mu.Lock()
	cancel, ok := p.running[id]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

func (p *Pool) workerLoop(workerID int) {
	defer p.wg.Done()
	p.logger.Info("worker started", "worker_id", workerID)

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Info("worker stopped", "worker_id", workerID)
			return
		default:
		}

		job, err := p.store.ClaimNext(p.ctx, p.leaseTTL)
		if errors.Is(err, ErrNoJob) {
			p.sleep(p.pollInterval)
			continue
		}
		if err != nil {
			if p.ctx.Err() == nil {
				p.logger.Error("queue.claim_failed", "worker_id", workerID, "error", err)
			}
			p.sleep(p.pollInterval)
			continue
		}

		p.logger.Info("queue.claimed",
			"worker_id", workerID,
			"job_id", job.ID,
			"document_type", job.DocumentType,
			"attempt", job.Attempts,
		)
		p.processJob(workerID, job)
	}
}

func (p *Pool) processJob(workerID int, job *entity.Job) {
	start := time.Now()

	// Detach from the pool context: a shutting-down pool still lets the
	// in-flight job finish (bounded by the process timeout).
	jctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	p.mu.Lock()
	p.running[job.ID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.running, job.ID)
		p.mu.Unlock()
		cancel()
	}()

	result, err := p.execute(jctx, job)
	elapsed := time.Since(start).Milliseconds()

	if err == nil {
		recorded, serr := p.store.MarkSucceeded(context.Background(), job.ID, result)
		if serr != nil {
			p.logger.Error("queue.record_failed", "worker_id", workerID, "job_id", job.ID, "error", serr)
			return
		}
		if !recorded {
			p.logger.Info("queue.result_discarded",
				"worker_id", workerID, "job_id", job.ID, "elapsed_ms", elapsed)
			return
		}
		p.logger.Info("queue.succeeded", "worker_id", workerID, "job_id", job.ID, "elapsed_ms", elapsed)
		return
	}

	if p.shouldRetry(job, err, jctx) {
		p.logger.Warn("queue.retrying",
			"worker_id", workerID, "job_id", job.ID,
			"attempt", job.Attempts, "max_attempts", job.MaxAttempts,
			"error", err, "elapsed_ms", elapsed,
		)
		if rerr := p.store.Requeue(context.Background(), job.ID); rerr != nil {
			p.logger.Error("queue.requeue_failed", "worker_id", workerID, "job_id", job.ID, "error", rerr)
		}
		return
	}

	recorded, serr := p.store.MarkFailed(context.Background(), job.ID, err.Error())
	if serr != nil {
		p.logger.Error("queue.record_failed", "worker_id", workerID, "job_id", job.ID, "error", serr)
		return
	}
	if !recorded {
		p.logger.Info("queue.cancelled", "worker_id", workerID, "job_id", job.ID, "elapsed_ms", elapsed)
		return
	}
	p.logger.Error("queue.failed",
		"worker_id", workerID, "job_id", job.ID,
		"reason", err.Error(), "elapsed_ms", elapsed,
	)
}

// execute runs the job's executor, converting a panic into a plain
// error so the job is recorded FAILED instead of waiting out its lease.
func (p *Pool) execute(ctx context.Context, job *entity.Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("queue.executor_panic", "job_id", job.ID, "panic", r)
			result, err = nil, fmt.Errorf("job execution panicked: %v", r)
		}
	}()
	return p.executor.Execute(ctx, job)
}

// shouldRetry limits retries to model-call failures that were not
// caused by an in-process cancellation; extraction and empty-result
// failures are input-deterministic and fail immediately.
func (p *Pool) shouldRetry(job *entity.Job, err error, jctx context.Context) bool {
	var llmErr *pipeline.LLMError
	if !errors.As(err, &llmErr) {
		return false
	}
	if jctx.Err() == context.Canceled {
		return false
	}
	return job.Attempts < job.MaxAttempts
}

func (p *Pool) reaperLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.reapOnce()
		}
	}
}

// reapOnce recovers jobs abandoned by crashed workers: an expired lease
// is requeued until attempts run out, then recorded FAILED so no job is
// ever left permanently RUNNING.
func (p *Pool) reapOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := p.store.ExpiredLeases(ctx, time.Now())
	if err != nil {
		p.logger.Error("queue.reap_failed", "error", err)
		return
	}
	for _, job := range expired {
		// Skip jobs this process is still executing; their lease is
		// simply longer than the processing turned out to be.
		p.mu.Lock()
		_, local := p.running[job.ID]
		p.mu.Unlock()
		if local {
			continue
		}

		if job.Attempts < job.MaxAttempts {
			p.logger.Warn("queue.lease_expired_requeue",
				"job_id", job.ID, "attempt", job.Attempts, "max_attempts", job.MaxAttempts)
			if err := p.store.Requeue(ctx, job.ID); err != nil {
				p.logger.Error("queue.requeue_failed", "job_id", job.ID, "error", err)
			}
			continue
		}
		p.logger.Error("queue.lease_expired_failed", "job_id", job.ID, "attempts", job.Attempts)
		if _, err := p.store.MarkFailed(ctx, job.ID, "worker lease expired"); err != nil {
			p.logger.Error("queue.record_failed", "job_id", job.ID, "error", err)
		}
	}
}

func (p *Pool) sleep(d time.Duration) {
	select {
	case <-p.ctx.Done():
	case <-time.After(d):
	}
}
