package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/core/ports"
)

type IntakeStatementUseCase struct {
	jobs     ports.JobStore
	payloads ports.PayloadStore
	queue    ports.StageQueue
	parsers  ports.ParserResolver
}

func NewIntakeStatementUseCase(
	jobs ports.JobStore,
	payloads ports.PayloadStore,
	queue ports.StageQueue,
	parsers ports.ParserResolver,
) *IntakeStatementUseCase {
	return &IntakeStatementUseCase{
		jobs:     jobs,
		payloads: payloads,
		queue:    queue,
		parsers:  parsers,
	}
}

// Upload accepts a statement file, records a pending job and hands it to the
// processing stage. The parser check runs before any state is written so an
// unrecognized format is rejected without leaving a job behind; the worker
// re-resolves on its own because watch-folder jobs skip this path.
func (uc *IntakeStatementUseCase) Upload(ctx context.Context, ownerID, filename string, content []byte) (*domain.ImportJob, error) {
	if len(content) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload statement", errors.New("empty file"))
	}
	if ownerID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload statement", errors.New("missing owner"))
	}

	parser, err := uc.parsers.ResolveParser(content, filename)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &domain.ImportJob{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Filename:   filename,
		SourceType: parser.Name(),
		Origin:     domain.OriginUpload,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}

	if err := uc.payloads.Stash(ctx, job.ID, content); err != nil {
		uc.abandon(ctx, job.ID, err)
		return nil, fmt.Errorf("stash payload: %w", err)
	}

	if err := uc.queue.DispatchProcess(ctx, domain.StageHandoff{JobID: job.ID, Status: job.Status}); err != nil {
		uc.abandon(ctx, job.ID, err)
		return nil, fmt.Errorf("dispatch process stage: %w", err)
	}

	dispatchID := uuid.NewString()
	if err := uc.jobs.SetDispatchID(ctx, job.ID, dispatchID); err != nil {
		slog.Warn("dispatch_id_not_recorded", "job_id", job.ID, "error", err)
	} else {
		job.DispatchID = dispatchID
	}

	slog.Info("statement_upload_accepted",
		"job_id", job.ID,
		"filename", filename,
		"source_type", job.SourceType,
		"bytes", len(content),
	)
	return job, nil
}

// abandon fails a job that never reached the worker so it cannot sit in
// pending forever. MarkFailed only accepts processing jobs, so this goes
// through the unguarded setter.
func (uc *IntakeStatementUseCase) abandon(ctx context.Context, jobID string, cause error) {
	msg := domain.TruncateErrorMessage("upload aborted: " + cause.Error())
	if err := uc.jobs.ForceStatus(ctx, jobID, domain.StatusFailed, msg); err != nil {
		slog.Error("abandon_job_failed", "job_id", jobID, "error", err)
	}
}
