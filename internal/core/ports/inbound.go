package ports

import (
	"context"

	"github.com/hearthfin/hearth/internal/core/domain"
)

// StatementIntake is the inbound contract for starting an import.
type StatementIntake interface {
	Upload(ctx context.Context, ownerID, filename string, content []byte) (*domain.ImportJob, error)
}

// StageRunner is the inbound contract for asynchronous pipeline stages.
type StageRunner interface {
	Run(ctx context.Context, handoff domain.StageHandoff) error
}

// JobReader is the inbound read model for job state and progress.
type JobReader interface {
	GetJob(ctx context.Context, ownerID, id string) (*domain.ImportJob, error)
	History(ctx context.Context, ownerID string) ([]domain.ImportJob, error)
	Watch(ctx context.Context, jobID string) (<-chan domain.ProgressSnapshot, error)
}

// JobAdmin is the inbound contract for operator actions on jobs.
type JobAdmin interface {
	ForceComplete(ctx context.Context, jobID string, status domain.JobStatus) (*domain.ImportJob, error)
	RetryCategorize(ctx context.Context, ownerID, jobID string) (*domain.ImportJob, error)
}

// FinanceAnswerer is the inbound contract for free-text financial questions.
type FinanceAnswerer interface {
	Ask(ctx context.Context, ownerID, question string) (string, error)
}
