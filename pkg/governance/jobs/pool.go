package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/audit"
	"maturity-hq/steward/pkg/telemetry/tracing"
)

// Job outcomes reported to Metrics.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRequeued  = "requeued"
	OutcomeLost      = "lost"
)

// AuditAppender records audit events.
type AuditAppender interface {
	Append(ctx context.Context, e audit.Entry) (string, error)
}

// Metrics receives job execution measurements.
type Metrics interface {
	JobStarted(jobType string)
	JobFinished(jobType, outcome string, duration time.Duration)
	JobReaped(jobType string)
}

type noopMetrics struct{}

func (noopMetrics) JobStarted(string) {}

func (noopMetrics) JobFinished(string, string, time.Duration) {}

func (noopMetrics) JobReaped(string) {}

// Pool runs registered handlers over jobs claimed from a JobStore.
type Pool struct {
	cfg      *Config
	store    governance.JobStore
	registry *Registry
	audit    AuditAppender
	metrics  Metrics
	clock    governance.Clock
	tracer   trace.Tracer
	logger   *slog.Logger

	wake chan struct{}

	mu         sync.Mutex
	started    bool
	stopPoll   context.CancelFunc
	abortJobs  context.CancelFunc
	wg         sync.WaitGroup
	inFlight   map[string]struct{}
	inFlightMu sync.Mutex
}

// Option configures a Pool.
type Option func(*Pool)

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Pool) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock governance.Clock) Option {
	return func(p *Pool) { p.clock = clock }
}

// NewPool creates a worker pool. A nil config uses DefaultConfig.
func NewPool(cfg *Config, store governance.JobStore, registry *Registry, appender AuditAppender, opts ...Option) *Pool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.applyDefaults()

	p := &Pool{
		cfg:      cfg,
		store:    store,
		registry: registry,
		audit:    appender,
		metrics:  noopMetrics{},
		clock:    governance.SystemClock,
		tracer:   otel.Tracer("steward/jobs"),
		logger:   slog.Default().With("component", "jobs.pool"),
		wake:     make(chan struct{}, cfg.Workers),
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers and the reaper. Workers stop polling when ctx
// is canceled or Shutdown is called.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("worker pool already started")
	}
	p.started = true

	pollCtx, stopPoll := context.WithCancel(ctx)
	jobCtx, abortJobs := context.WithCancel(context.WithoutCancel(ctx))
	p.stopPoll = stopPoll
	p.abortJobs = abortJobs

	p.logger.Info("starting worker pool",
		"workers", p.cfg.Workers,
		"poll_interval", p.cfg.PollInterval,
		"job_types", p.registry.Types(),
	)

	for i := 0; i < p.cfg.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWorker(pollCtx, jobCtx, workerID)
		}()
	}

	if p.cfg.ReaperInterval > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runReaper(pollCtx)
		}()
	}
	return nil
}

// Shutdown stops polling and waits for in-flight jobs. When ctx expires
// first, running handlers are canceled and their jobs requeued.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	stopPoll, abortJobs := p.stopPoll, p.abortJobs
	p.mu.Unlock()

	p.logger.Info("shutdown requested, stopping workers")
	stopPoll()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ShutdownTimeout)
		defer cancel()
	}

	select {
	case <-done:
		abortJobs()
		p.logger.Info("all workers exited cleanly")
		return nil
	case <-ctx.Done():
		abortJobs()
		<-done
		p.logger.Warn("shutdown timed out, in-flight jobs were interrupted")
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

// Wake nudges idle workers to poll immediately.
func (p *Pool) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// InFlight returns the number of jobs currently executing.
func (p *Pool) InFlight() int {
	p.inFlightMu.Lock()
	defer p.inFlightMu.Unlock()
	return len(p.inFlight)
}

func (p *Pool) runWorker(pollCtx, jobCtx context.Context, workerID string) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.logger.Debug("worker started", "worker_id", workerID)
	for {
		// Drain everything claimable before sleeping.
		for pollCtx.Err() == nil {
			ran, err := p.runNext(jobCtx, workerID)
			if err != nil {
				p.logger.Error("failed to claim job", "worker_id", workerID, "error", err)
				break
			}
			if !ran {
				break
			}
		}

		select {
		case <-pollCtx.Done():
			p.logger.Debug("worker stopped", "worker_id", workerID)
			return
		case <-ticker.C:
		case <-p.wake:
		}
	}
}

// RunOnce claims and executes at most one job synchronously. It reports
// whether a job was run.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	return p.runNext(ctx, "inline")
}

// Drain runs jobs synchronously until none is claimable and returns how
// many ran.
func (p *Pool) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		ran, err := p.RunOnce(ctx)
		if err != nil || !ran {
			return n, err
		}
		n++
	}
}

func (p *Pool) runNext(ctx context.Context, workerID string) (bool, error) {
	job, err := p.store.ClaimNext(ctx, p.registry.Types(), workerID, p.clock())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	p.execute(ctx, job)
	return true, nil
}

func (p *Pool) execute(ctx context.Context, job *governance.JobRecord) {
	p.inFlightMu.Lock()
	p.inFlight[job.ID] = struct{}{}
	p.inFlightMu.Unlock()
	defer func() {
		p.inFlightMu.Lock()
		delete(p.inFlight, job.ID)
		p.inFlightMu.Unlock()
	}()

	logger := p.logger.With(
		"job_id", job.ID,
		"job_type", job.JobType,
		"engagement_id", job.EngagementID,
		"correlation_id", job.CorrelationID,
		"worker_id", job.WorkerID,
	)
	jobType := string(job.JobType)

	ctx, span := p.tracer.Start(ctx, "job."+jobType, trace.WithAttributes(
		tracing.JobAttributes(job.ID, jobType, job.EngagementID, job.CorrelationID, job.RetryCount)...,
	))
	defer span.End()

	p.metrics.JobStarted(jobType)
	start := time.Now()
	logger.Info("processing job", "retry_count", job.RetryCount)

	result, err := p.invoke(ctx, job)
	elapsed := time.Since(start)

	if err == nil {
		err = p.store.Update(context.WithoutCancel(ctx), job.ID, job.ClaimID, governance.JobUpdate{
			Status: governance.JobStatusCompleted,
			Result: result,
			At:     p.clock(),
		})
		if err != nil {
			p.ownershipLost(logger, job, err)
			p.metrics.JobFinished(jobType, OutcomeLost, elapsed)
			return
		}
		span.SetStatus(codes.Ok, "")
		p.metrics.JobFinished(jobType, OutcomeCompleted, elapsed)
		logger.Info("job completed", "duration", elapsed)
		return
	}

	tracing.SetError(span, err, governance.PublicMessage(job.JobType, err))
	outcome := p.handleFailure(ctx, logger, job, err)
	p.metrics.JobFinished(jobType, outcome, elapsed)
}

// invoke runs the handler under the job type's execution timeout.
func (p *Pool) invoke(ctx context.Context, job *governance.JobRecord) (result map[string]any, err error) {
	h, ok := p.registry.Get(job.JobType)
	if !ok {
		return nil, governance.NewInvariantViolation("job_type_registered", "no handler for job type %s", job.JobType)
	}

	timeout := p.cfg.Timeout(job.JobType)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	result, err = h.Handle(runCtx, job)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s: %w", governance.ErrExecutionTimeout, timeout, err)
	}
	return result, err
}

// handleFailure requeues transient failures that have retries left and
// fails everything else. It returns the outcome.
func (p *Pool) handleFailure(ctx context.Context, logger *slog.Logger, job *governance.JobRecord, jobErr error) string {
	public := governance.PublicMessage(job.JobType, jobErr)
	retryable := governance.IsTransient(jobErr) || errors.Is(jobErr, governance.ErrExecutionTimeout) || errors.Is(jobErr, context.Canceled)

	// Bookkeeping must outlive a canceled job context.
	ctx = context.WithoutCancel(ctx)

	if retryable && job.RetryCount < job.MaxRetries {
		backoff := p.cfg.Backoff(job.RetryCount)
		err := p.store.Update(ctx, job.ID, job.ClaimID, governance.JobUpdate{
			Status:       governance.JobStatusPending,
			ErrorMessage: public,
			AvailableAt:  p.clock().Add(backoff),
		})
		if err != nil {
			p.ownershipLost(logger, job, err)
			return OutcomeLost
		}
		logger.Warn("job failed, requeued",
			"error", jobErr,
			"retry_count", job.RetryCount+1,
			"max_retries", job.MaxRetries,
			"backoff", backoff,
		)
		p.appendEvent(ctx, logger, job, audit.JobRequeued{JobID: job.ID, JobType: job.JobType, RetryCount: job.RetryCount + 1})
		return OutcomeRequeued
	}

	err := p.store.Update(ctx, job.ID, job.ClaimID, governance.JobUpdate{
		Status:       governance.JobStatusFailed,
		ErrorMessage: public,
		At:           p.clock(),
	})
	if err != nil {
		p.ownershipLost(logger, job, err)
		return OutcomeLost
	}

	if governance.IsInvariant(jobErr) {
		logger.Error("job failed on invariant violation", "invariant", true, "error", jobErr)
	} else {
		logger.Error("job failed", "error", jobErr, "retry_count", job.RetryCount)
	}
	p.appendEvent(ctx, logger, job, audit.JobFailed{
		JobID:      job.ID,
		JobType:    job.JobType,
		Reason:     public,
		RetryCount: job.RetryCount,
	})
	return OutcomeFailed
}

func (p *Pool) ownershipLost(logger *slog.Logger, job *governance.JobRecord, err error) {
	if errors.Is(err, governance.ErrNotClaimable) {
		logger.Warn("job ownership lost before completion, result discarded")
		return
	}
	logger.Error("failed to record job outcome", "error", err)
}

func (p *Pool) appendEvent(ctx context.Context, logger *slog.Logger, job *governance.JobRecord, d audit.Details) {
	if p.audit == nil {
		return
	}
	_, err := p.audit.Append(ctx, audit.Entry{
		Actor:         job.Actor,
		EngagementID:  job.EngagementID,
		CorrelationID: job.CorrelationID,
		Details:       d,
	})
	if err != nil {
		logger.Error("failed to append audit event", "event_type", d.EventType(), "error", err)
	}
}
