package domain

import "time"

// StageHandoff is the only information channel between pipeline stages.
// Stage 2 publishes one on success; stage 3 consumes it. Stages never share
// mutable memory. DispatchedAt is stamped by the queue on publish.
type StageHandoff struct {
	JobID            string    `json:"job_id"`
	Status           JobStatus `json:"status"`
	TotalRows        int       `json:"total_rows"`
	ImportedRows     int       `json:"imported_rows"`
	DuplicateRows    int       `json:"duplicate_rows"`
	UncategorizedIDs []string  `json:"uncategorized_ids,omitempty"`
	DispatchedAt     time.Time `json:"dispatched_at,omitzero"`
}

// ProgressSnapshot is one observation of a job's status and counters,
// produced by the progress publisher until a terminal status is seen.
type ProgressSnapshot struct {
	JobID             string    `json:"job_id"`
	Status            JobStatus `json:"status"`
	TotalRows         int       `json:"total_rows"`
	ImportedRows      int       `json:"imported_rows"`
	DuplicateRows     int       `json:"duplicate_rows"`
	ProcessedRows     int       `json:"processed_rows"`
	CategorizedRows   int       `json:"categorized_rows"`
	UncategorizedRows int       `json:"uncategorized_rows"`
	ErrorMessage      string    `json:"error_message,omitempty"`
}
