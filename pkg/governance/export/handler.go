package export

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"maturity-hq/steward/pkg/blob"
	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/audit"
	"maturity-hq/steward/pkg/governance/jobs"
	"maturity-hq/steward/pkg/telemetry/tracing"
)

// Handler executes export jobs.
type Handler struct {
	business governance.BusinessStore
	sink     governance.BlobSink
	appender jobs.AuditAppender
	clock    governance.Clock
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock sets the time source stamped on bundles.
func WithClock(clock governance.Clock) Option {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler creates an export handler.
func NewHandler(business governance.BusinessStore, sink governance.BlobSink, appender jobs.AuditAppender, opts ...Option) *Handler {
	h := &Handler{
		business: business,
		sink:     sink,
		appender: appender,
		clock:    governance.SystemClock,
		tracer:   otel.Tracer("steward/export"),
		logger:   slog.Default().With("component", "export"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle implements jobs.Handler.
func (h *Handler) Handle(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
	ref, bundle, err := h.export(ctx, job)
	if err != nil {
		return nil, err
	}
	result := ref.Map()
	result["export_version"] = Version
	counts := make(map[string]any, len(bundle.Counts))
	for k, v := range bundle.Counts {
		counts[k] = v
	}
	result["counts"] = counts
	return result, nil
}

// Export builds the bundle of the job's engagement, writes it to the sink
// and records data_export_completed. Any failed read fails the export; no
// partial bundle is written.
func (h *Handler) Export(ctx context.Context, job *governance.JobRecord) (governance.ArtifactRef, error) {
	ref, _, err := h.export(ctx, job)
	return ref, err
}

func (h *Handler) export(ctx context.Context, job *governance.JobRecord) (governance.ArtifactRef, *Bundle, error) {
	if job.EngagementID == "" {
		return governance.ArtifactRef{}, nil, governance.NewValidationError("engagement_id", "export requires an engagement")
	}
	opts := OptionsFromJob(job)
	if err := opts.Validate(); err != nil {
		return governance.ArtifactRef{}, nil, err
	}

	ctx, span := h.tracer.Start(ctx, "export.bundle", trace.WithAttributes(
		attribute.String(tracing.AttrEngagementID, job.EngagementID),
		attribute.String(tracing.AttrJobID, job.ID),
	))
	defer span.End()

	bundle, err := h.collect(ctx, job, opts)
	if err != nil {
		return governance.ArtifactRef{}, nil, err
	}

	data, err := bundle.Encode()
	if err != nil {
		return governance.ArtifactRef{}, nil, fmt.Errorf("failed to encode export bundle: %w", err)
	}

	ref, err := h.sink.Put(ctx, blob.ExportPath(job.EngagementID, job.ID), data)
	if err != nil {
		return governance.ArtifactRef{}, nil, fmt.Errorf("failed to write export bundle: %w", err)
	}
	span.SetAttributes(attribute.Int64(tracing.AttrArtifactSize, ref.Size))

	_, err = h.appender.Append(ctx, audit.Entry{
		Actor:         job.Actor,
		EngagementID:  job.EngagementID,
		CorrelationID: job.CorrelationID,
		Details: audit.ExportCompleted{
			JobID:         job.ID,
			ExportVersion: Version,
			Size:          ref.Size,
			Checksum:      ref.Checksum,
			Counts:        bundle.Counts,
		},
	})
	if err != nil {
		return governance.ArtifactRef{}, nil, fmt.Errorf("failed to record export completion: %w", err)
	}

	h.logger.Info("export completed",
		"job_id", job.ID,
		"engagement_id", job.EngagementID,
		"location", ref.Location,
		"size", ref.Size,
	)
	return ref, bundle, nil
}

// collect reads every record set of the engagement concurrently.
func (h *Handler) collect(ctx context.Context, job *governance.JobRecord, opts Options) (*Bundle, error) {
	b := &Bundle{
		ExportVersion: Version,
		JobID:         job.ID,
		EngagementID:  job.EngagementID,
		GeneratedAt:   h.clock().UTC(),
		Options:       opts,
		Documents:     []governance.Document{},
	}
	eng := job.EngagementID

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		b.Engagement, err = h.business.GetEngagement(gctx, eng)
		return wrapRead("engagement", err)
	})
	g.Go(func() (err error) {
		b.Assessments, err = h.business.ListAssessments(gctx, eng)
		return wrapRead("assessments", err)
	})
	g.Go(func() (err error) {
		b.Answers, err = h.business.ListAnswers(gctx, eng)
		return wrapRead("answers", err)
	})
	g.Go(func() (err error) {
		b.Members, err = h.business.ListMembers(gctx, eng)
		return wrapRead("members", err)
	})
	g.Go(func() (err error) {
		b.Findings, err = h.business.ListFindings(gctx, eng)
		return wrapRead("findings", err)
	})
	if opts.IncludeDocuments {
		g.Go(func() (err error) {
			b.Documents, err = h.business.ListDocuments(gctx, eng)
			return wrapRead("documents", err)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b.Assessments = nonNil(b.Assessments)
	b.Answers = nonNil(b.Answers)
	b.Members = nonNil(b.Members)
	b.Findings = nonNil(b.Findings)
	b.Documents = nonNil(b.Documents)
	b.countRecords()
	return b, nil
}

func wrapRead(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to read %s: %w", what, err)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
