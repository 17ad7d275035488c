package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/core/ports"
)

// ForceCompleteNote marks operator intervention in the job's error message.
const ForceCompleteNote = "[Force-completed by admin]"

// JobAdminUseCase covers operator actions: forcing a stuck job into a
// terminal state and re-running categorization on a finished one.
type JobAdminUseCase struct {
	jobs  ports.JobStore
	queue ports.StageQueue
}

func NewJobAdminUseCase(jobs ports.JobStore, queue ports.StageQueue) *JobAdminUseCase {
	return &JobAdminUseCase{jobs: jobs, queue: queue}
}

// ForceComplete pushes a non-terminal job straight to completed or failed,
// bypassing transition validation. The note stays visible in error_message.
func (uc *JobAdminUseCase) ForceComplete(ctx context.Context, jobID string, status domain.JobStatus) (*domain.ImportJob, error) {
	if status != domain.StatusCompleted && status != domain.StatusFailed {
		return nil, domain.WrapError(domain.ErrInvalidInput, "force complete",
			fmt.Errorf("target status must be completed or failed, got %q", status))
	}

	job, err := uc.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch job by id: %w", err)
	}
	if job.Status.Terminal() {
		return nil, domain.WrapError(domain.ErrInvalidTransition, "force complete",
			fmt.Errorf("job already terminal in status %q", job.Status))
	}

	if err := uc.jobs.ForceStatus(ctx, jobID, status, ForceCompleteNote); err != nil {
		return nil, fmt.Errorf("force status: %w", err)
	}
	slog.Warn("job_force_completed", "job_id", jobID, "from", job.Status, "to", status)

	refreshed, err := uc.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch job by id: %w", err)
	}
	return refreshed, nil
}

// RetryCategorize re-runs the categorization stage for a finished job. The
// job is rewound to processing so the stage can claim it again; transactions
// that already have a category keep it.
func (uc *JobAdminUseCase) RetryCategorize(ctx context.Context, ownerID, jobID string) (*domain.ImportJob, error) {
	job, err := uc.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch job by id: %w", err)
	}
	if job.OwnerID != ownerID {
		return nil, domain.WrapError(domain.ErrJobNotFound, "retry categorize", errors.New("job belongs to another owner"))
	}
	if job.Status != domain.StatusCompleted && job.Status != domain.StatusPartiallyFailed {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retry categorize",
			fmt.Errorf("job must be completed or partially_failed, got %q", job.Status))
	}

	if err := uc.jobs.ForceStatus(ctx, jobID, domain.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("rewind job status: %w", err)
	}
	if err := uc.queue.DispatchCategorize(ctx, domain.StageHandoff{JobID: jobID, Status: domain.StatusProcessing}); err != nil {
		return nil, fmt.Errorf("dispatch categorize stage: %w", err)
	}
	slog.Info("categorize_retry_dispatched", "job_id", jobID, "previous_status", job.Status)

	refreshed, err := uc.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch job by id: %w", err)
	}
	return refreshed, nil
}
