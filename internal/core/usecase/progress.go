package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/core/ports"
)

const defaultPollInterval = 2 * time.Second

// JobReaderUseCase is the read model for job state: point lookups scoped to
// an owner, history, and a polling progress watch for live streams.
type JobReaderUseCase struct {
	jobs         ports.JobStore
	pollInterval time.Duration
}

func NewJobReaderUseCase(jobs ports.JobStore, pollInterval time.Duration) *JobReaderUseCase {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &JobReaderUseCase{jobs: jobs, pollInterval: pollInterval}
}

func (uc *JobReaderUseCase) GetJob(ctx context.Context, ownerID, id string) (*domain.ImportJob, error) {
	job, err := uc.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch job by id: %w", err)
	}
	// Foreign jobs read as absent, not as forbidden.
	if job.OwnerID != ownerID {
		return nil, domain.WrapError(domain.ErrJobNotFound, "fetch job by id", errors.New("job belongs to another owner"))
	}
	return job, nil
}

func (uc *JobReaderUseCase) History(ctx context.Context, ownerID string) ([]domain.ImportJob, error) {
	jobs, err := uc.jobs.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list jobs by owner: %w", err)
	}
	return jobs, nil
}

// Watch emits a snapshot every poll tick until the job reaches a terminal
// status or ctx is done, then closes the channel. The first snapshot is
// emitted immediately.
func (uc *JobReaderUseCase) Watch(ctx context.Context, jobID string) (<-chan domain.ProgressSnapshot, error) {
	job, err := uc.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch job by id: %w", err)
	}

	updates := make(chan domain.ProgressSnapshot, 1)
	go uc.watchLoop(ctx, job, updates)
	return updates, nil
}

func (uc *JobReaderUseCase) watchLoop(ctx context.Context, job *domain.ImportJob, updates chan<- domain.ProgressSnapshot) {
	defer close(updates)

	if !uc.emit(ctx, updates, job.Snapshot()) {
		return
	}
	if job.Status.Terminal() {
		return
	}

	ticker := time.NewTicker(uc.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current, err := uc.jobs.GetByID(ctx, job.ID)
		if err != nil {
			// The stream has no error channel; a vanished job ends it.
			return
		}
		if !uc.emit(ctx, updates, current.Snapshot()) {
			return
		}
		if current.Status.Terminal() {
			return
		}
	}
}

func (uc *JobReaderUseCase) emit(ctx context.Context, updates chan<- domain.ProgressSnapshot, snap domain.ProgressSnapshot) bool {
	select {
	case updates <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}
