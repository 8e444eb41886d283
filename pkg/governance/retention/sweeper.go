package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/audit"
	"maturity-hq/steward/pkg/telemetry/tracing"
)

// DefaultBatchSize is the number of records deleted per DeleteExpired call.
const DefaultBatchSize = 500

// SystemActor is recorded on events of scheduled sweeps.
const SystemActor = "system:retention"

// Appender records audit events.
type Appender interface {
	Append(ctx context.Context, e audit.Entry) (string, error)
}

// Metrics receives per-category sweep outcomes.
type Metrics interface {
	SweepFinished(category string, deleted int64, duration time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) SweepFinished(string, int64, time.Duration, error) {}

// CategoryReport is the outcome of sweeping one category.
type CategoryReport struct {
	Category string    `json:"category"`
	Cutoff   time.Time `json:"cutoff,omitempty"`
	Deleted  int64     `json:"deleted"`
	Batches  int       `json:"batches"`
	Skipped  string    `json:"skipped,omitempty"` // why the category was not swept
	Error    string    `json:"error,omitempty"`
}

// Report is the outcome of one sweep.
type Report struct {
	CorrelationID string           `json:"correlation_id"`
	StartedAt     time.Time        `json:"started_at"`
	Duration      time.Duration    `json:"duration"`
	Categories    []CategoryReport `json:"categories"`
}

// Deleted returns the total deleted across categories.
func (r *Report) Deleted() int64 {
	var n int64
	for _, c := range r.Categories {
		n += c.Deleted
	}
	return n
}

// Sweeper deletes expired records of every swept category.
type Sweeper struct {
	registry  *Registry
	appender  Appender
	metrics   Metrics
	clock     governance.Clock
	batchSize int
	tracer    trace.Tracer
	logger    *slog.Logger

	mu      sync.RWMutex
	targets map[string]governance.Sweepable
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithClock sets the time source cutoffs are computed from.
func WithClock(clock governance.Clock) SweeperOption {
	return func(s *Sweeper) {
		s.clock = clock
	}
}

// WithBatchSize sets the per-call delete limit.
func WithBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) SweeperOption {
	return func(s *Sweeper) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewSweeper creates a sweeper. Categories are swept only once a target is
// registered for them.
func NewSweeper(registry *Registry, appender Appender, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		registry:  registry,
		appender:  appender,
		metrics:   noopMetrics{},
		clock:     governance.SystemClock,
		batchSize: DefaultBatchSize,
		tracer:    otel.Tracer("steward/retention"),
		logger:    slog.Default().With("component", "retention.sweeper"),
		targets:   make(map[string]governance.Sweepable),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register sets the store swept for a category. Primary business data
// cannot be registered.
func (s *Sweeper) Register(category string, target governance.Sweepable) error {
	if governance.IsPrimaryBusinessData(category) {
		return governance.NewValidationError("category",
			fmt.Sprintf("%s is primary business data and cannot be swept", category))
	}
	if target == nil {
		return fmt.Errorf("nil sweep target for %s", category)
	}
	s.mu.Lock()
	s.targets[category] = target
	s.mu.Unlock()
	return nil
}

// Run identifies who triggered a sweep.
type Run struct {
	Actor         string
	CorrelationID string
}

// Sweep sweeps the named categories, or every registered category when none
// are named, as a scheduled system run.
func (s *Sweeper) Sweep(ctx context.Context, categories ...string) (*Report, error) {
	return s.SweepAs(ctx, Run{}, categories...)
}

// SweepAs sweeps on behalf of run. Failures of individual categories do not
// stop the others; they are joined into the returned error.
func (s *Sweeper) SweepAs(ctx context.Context, run Run, categories ...string) (*Report, error) {
	if run.Actor == "" {
		run.Actor = SystemActor
	}
	if run.CorrelationID == "" {
		run.CorrelationID = uuid.New().String()
	}

	if len(categories) == 0 {
		for _, p := range s.registry.Policies() {
			categories = append(categories, p.Category)
		}
	} else {
		categories = slices.Clone(categories)
		slices.Sort(categories)
		categories = slices.Compact(categories)
	}

	start := s.clock()
	report := &Report{CorrelationID: run.CorrelationID, StartedAt: start}
	var errs []error
	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		cr, err := s.sweepCategory(ctx, run, category)
		report.Categories = append(report.Categories, cr)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", category, err))
		}
	}
	report.Duration = s.clock().Sub(start)

	s.logger.Info("retention sweep finished",
		"correlation_id", run.CorrelationID,
		"deleted", report.Deleted(),
		"failed", len(errs),
	)
	return report, errors.Join(errs...)
}

func (s *Sweeper) sweepCategory(ctx context.Context, run Run, category string) (CategoryReport, error) {
	cr := CategoryReport{Category: category}

	policy, ok := s.registry.Get(category)
	switch {
	case !ok:
		cr.Skipped = "no policy"
		return cr, nil
	case !policy.Sweepable():
		cr.Skipped = "disabled"
		return cr, nil
	}
	s.mu.RLock()
	target, ok := s.targets[category]
	s.mu.RUnlock()
	if !ok {
		cr.Skipped = "no target"
		return cr, nil
	}

	ctx, span := s.tracer.Start(ctx, "retention.sweep")
	defer span.End()

	// A record is expired once its age reaches the TTL.
	cr.Cutoff = s.clock().Add(-policy.TTL)
	started := time.Now()
	var sweepErr error
	for {
		n, err := target.DeleteExpired(ctx, cr.Cutoff, s.batchSize)
		cr.Deleted += n
		if err != nil {
			sweepErr = err
			break
		}
		cr.Batches++
		if n < int64(s.batchSize) {
			break
		}
		if err := ctx.Err(); err != nil {
			sweepErr = err
			break
		}
	}
	s.metrics.SweepFinished(category, cr.Deleted, time.Since(started), sweepErr)
	tracing.SetSweepAttributes(span, category, cr.Deleted)
	tracing.SetStatus(span, sweepErr)

	if sweepErr != nil {
		cr.Error = sweepErr.Error()
		s.logger.Error("retention sweep failed",
			"category", category,
			"deleted", cr.Deleted,
			"error", sweepErr,
		)
		s.record(ctx, run, audit.TTLSweepFailed{
			Category: category,
			Deleted:  cr.Deleted,
			Reason:   governance.PublicMessage(governance.JobTypeTTLCleanup, sweepErr),
		})
		return cr, sweepErr
	}

	if cr.Deleted > 0 {
		s.logger.Info("retention sweep completed",
			"category", category,
			"deleted", cr.Deleted,
			"batches", cr.Batches,
			"cutoff", cr.Cutoff,
		)
		s.record(ctx, run, audit.TTLSweepCompleted{
			Category:   category,
			Deleted:    cr.Deleted,
			Batches:    cr.Batches,
			Cutoff:     cr.Cutoff.UTC().Format(time.RFC3339Nano),
			TTLSeconds: policy.TTLSeconds(),
		})
	}
	return cr, nil
}

func (s *Sweeper) record(ctx context.Context, run Run, d audit.Details) {
	_, err := s.appender.Append(context.WithoutCancel(ctx), audit.Entry{
		Actor:         run.Actor,
		CorrelationID: run.CorrelationID,
		Details:       d,
	})
	if err != nil {
		s.logger.Error("failed to record sweep event", "event_type", d.EventType(), "error", err)
	}
}
