package domain

import "time"

type JobStatus string

const (
	StatusPending         JobStatus = "pending"
	StatusProcessing      JobStatus = "processing"
	StatusCategorizing    JobStatus = "categorizing"
	StatusCompleted       JobStatus = "completed"
	StatusFailed          JobStatus = "failed"
	StatusPartiallyFailed JobStatus = "partially_failed"
)

// Terminal reports whether no further automatic transition leaves s.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartiallyFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the pipeline may move a job from s to next.
// The graph is strict: pending feeds processing, processing feeds
// categorizing or failed, categorizing feeds completed or partially_failed.
// No skips, no backward moves. Administrative overrides bypass this check.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCategorizing || next == StatusFailed
	case StatusCategorizing:
		return next == StatusCompleted || next == StatusPartiallyFailed
	default:
		return false
	}
}

type JobOrigin string

const (
	OriginUpload JobOrigin = "upload"
	OriginWatch  JobOrigin = "watch"
)

// MaxErrorMessageLen bounds the error text persisted on a job.
const MaxErrorMessageLen = 1000

// TruncateErrorMessage trims msg to MaxErrorMessageLen bytes.
func TruncateErrorMessage(msg string) string {
	if len(msg) > MaxErrorMessageLen {
		return msg[:MaxErrorMessageLen]
	}
	return msg
}

// ImportJob is one import run for one statement file. Counters are
// monotonically non-decreasing and are written only by the stage that
// currently owns the job.
type ImportJob struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Filename   string    `json:"filename"`
	SourceType string    `json:"source_type"`
	Origin     JobOrigin `json:"origin"`
	Status     JobStatus `json:"status"`

	TotalRows         int `json:"total_rows"`
	ImportedRows      int `json:"imported_rows"`
	DuplicateRows     int `json:"duplicate_rows"`
	ProcessedRows     int `json:"processed_rows"`
	CategorizedRows   int `json:"categorized_rows"`
	UncategorizedRows int `json:"uncategorized_rows"`

	ErrorMessage string     `json:"error_message,omitempty"`
	DispatchID   string     `json:"dispatch_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Snapshot projects the job onto the progress boundary shape.
func (j *ImportJob) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{
		JobID:             j.ID,
		Status:            j.Status,
		TotalRows:         j.TotalRows,
		ImportedRows:      j.ImportedRows,
		DuplicateRows:     j.DuplicateRows,
		ProcessedRows:     j.ProcessedRows,
		CategorizedRows:   j.CategorizedRows,
		UncategorizedRows: j.UncategorizedRows,
		ErrorMessage:      j.ErrorMessage,
	}
}
