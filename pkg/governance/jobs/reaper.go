package jobs

import (
	"context"
	"time"

	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/audit"
)

// reapBatch bounds how many processing jobs one reaper pass inspects.
const reapBatch = 1000

func (p *Pool) runReaper(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Reap(ctx); err != nil {
				p.logger.Error("reaper pass failed", "error", err)
			}
		}
	}
}

// Reap requeues or fails processing jobs that have run longer than their
// job type allows, typically because their worker died. It returns the
// number of jobs reaped.
func (p *Pool) Reap(ctx context.Context) (int, error) {
	processing, err := p.store.ListByStatus(ctx, governance.JobStatusProcessing, reapBatch)
	if err != nil {
		return 0, err
	}

	now := p.clock()
	reaped := 0
	for _, job := range processing {
		if job.StartedAt == nil || !now.After(job.StartedAt.Add(p.cfg.Timeout(job.JobType))) {
			continue
		}
		if p.isInFlight(job.ID) {
			// The local worker enforces its own deadline.
			continue
		}
		if p.reapJob(ctx, job, now) {
			reaped++
		}
	}
	return reaped, nil
}

func (p *Pool) reapJob(ctx context.Context, job *governance.JobRecord, now time.Time) bool {
	logger := p.logger.With(
		"job_id", job.ID,
		"job_type", job.JobType,
		"worker_id", job.WorkerID,
		"started_at", job.StartedAt,
	)
	public := governance.PublicMessage(job.JobType, governance.ErrExecutionTimeout)

	var (
		update governance.JobUpdate
		event  audit.Details
	)
	if job.RetryCount < job.MaxRetries {
		update = governance.JobUpdate{
			Status:       governance.JobStatusPending,
			ErrorMessage: public,
			AvailableAt:  now.Add(p.cfg.Backoff(job.RetryCount)),
		}
		event = audit.JobRequeued{JobID: job.ID, JobType: job.JobType, RetryCount: job.RetryCount + 1}
	} else {
		update = governance.JobUpdate{
			Status:       governance.JobStatusFailed,
			ErrorMessage: public,
			At:           now,
		}
		event = audit.JobFailed{JobID: job.ID, JobType: job.JobType, Reason: public, RetryCount: job.RetryCount}
	}

	if err := p.store.Update(ctx, job.ID, job.ClaimID, update); err != nil {
		// The worker finished first.
		logger.Debug("reaper lost race for job", "error", err)
		return false
	}

	logger.Warn("reaped job exceeding maximum execution time", "new_status", update.Status)
	p.metrics.JobReaped(string(job.JobType))
	p.appendEvent(ctx, logger, job, event)
	return true
}

func (p *Pool) isInFlight(id string) bool {
	p.inFlightMu.Lock()
	defer p.inFlightMu.Unlock()
	_, ok := p.inFlight[id]
	return ok
}
