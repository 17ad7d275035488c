package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hearthfin/hearth/internal/core/domain"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026031001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS import_jobs (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	source_type TEXT NOT NULL DEFAULT '',
	origin TEXT NOT NULL,
	status TEXT NOT NULL,
	total_rows INTEGER NOT NULL DEFAULT 0,
	imported_rows INTEGER NOT NULL DEFAULT 0,
	duplicate_rows INTEGER NOT NULL DEFAULT 0,
	processed_rows INTEGER NOT NULL DEFAULT 0,
	categorized_rows INTEGER NOT NULL DEFAULT 0,
	uncategorized_rows INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	dispatch_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_import_jobs_owner ON import_jobs(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_import_jobs_status ON import_jobs(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_import_jobs_watch_file ON import_jobs(filename) WHERE origin = 'watch';
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, job *domain.ImportJob) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO import_jobs (
	id, owner_id, filename, source_type, origin, status,
	total_rows, imported_rows, duplicate_rows, processed_rows, categorized_rows, uncategorized_rows,
	error_message, dispatch_id, created_at, updated_at, completed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
		job.ID, job.OwnerID, job.Filename, job.SourceType, string(job.Origin), string(job.Status),
		job.TotalRows, job.ImportedRows, job.DuplicateRows, job.ProcessedRows, job.CategorizedRows, job.UncategorizedRows,
		job.ErrorMessage, job.DispatchID, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert import job: %w", err)
	}
	return nil
}

const jobColumns = `
id, owner_id, filename, source_type, origin, status,
total_rows, imported_rows, duplicate_rows, processed_rows, categorized_rows, uncategorized_rows,
error_message, dispatch_id, created_at, updated_at, completed_at
`

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ImportJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM import_jobs
WHERE id = $1
`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get import job", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan import job: %w", err)
	}
	return &job, nil
}

func (r *JobRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.ImportJob, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+jobColumns+`
FROM import_jobs
WHERE owner_id = $1
ORDER BY created_at DESC
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list import jobs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ImportJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import jobs: %w", err)
	}
	return out, nil
}

func (r *JobRepository) HasWatchJob(ctx context.Context, filename string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS(SELECT 1 FROM import_jobs WHERE origin = 'watch' AND filename = $1)
`, filename).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check watch job: %w", err)
	}
	return exists, nil
}

// transitionFrom maps a target status onto the single status the pipeline is
// allowed to leave. The compare-and-set in Transition uses it so two workers
// racing on one handoff cannot both claim the job.
func transitionFrom(next domain.JobStatus) (domain.JobStatus, bool) {
	switch next {
	case domain.StatusProcessing:
		return domain.StatusPending, true
	case domain.StatusCategorizing:
		return domain.StatusProcessing, true
	case domain.StatusFailed:
		return domain.StatusProcessing, true
	case domain.StatusCompleted, domain.StatusPartiallyFailed:
		return domain.StatusCategorizing, true
	default:
		return "", false
	}
}

func (r *JobRepository) Transition(ctx context.Context, id string, next domain.JobStatus) error {
	prior, ok := transitionFrom(next)
	if !ok {
		return domain.WrapError(domain.ErrInvalidTransition, "transition import job",
			fmt.Errorf("no transition leads to %q", next))
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE import_jobs
SET status = $2, updated_at = $3
WHERE id = $1 AND status = $4
`, id, string(next), time.Now().UTC(), string(prior))
	if err != nil {
		return fmt.Errorf("transition import job: %w", err)
	}
	return r.resolveGuardMiss(ctx, result, id, next, "transition import job")
}

func (r *JobRepository) MarkFailed(ctx context.Context, id, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE import_jobs
SET status = 'failed', error_message = $2, updated_at = $3, completed_at = $3
WHERE id = $1 AND status = 'processing'
`, id, errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark import job failed: %w", err)
	}
	return r.resolveGuardMiss(ctx, result, id, domain.StatusFailed, "mark import job failed")
}

func (r *JobRepository) Finalize(ctx context.Context, id string, status domain.JobStatus, errMessage string) error {
	if status != domain.StatusCompleted && status != domain.StatusPartiallyFailed {
		return domain.WrapError(domain.ErrInvalidTransition, "finalize import job",
			fmt.Errorf("finalize only accepts completed or partially_failed, got %q", status))
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE import_jobs
SET status = $2, error_message = $3, updated_at = $4, completed_at = $4
WHERE id = $1 AND status = 'categorizing'
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("finalize import job: %w", err)
	}
	return r.resolveGuardMiss(ctx, result, id, status, "finalize import job")
}

// ForceStatus writes any status without consulting the transition graph. A
// non-empty note is appended to the existing error message; terminal targets
// stamp completed_at, non-terminal ones clear it.
func (r *JobRepository) ForceStatus(ctx context.Context, id string, status domain.JobStatus, note string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE import_jobs
SET status = $2,
	error_message = CASE
		WHEN $3 = '' THEN error_message
		WHEN error_message = '' THEN $3
		ELSE error_message || ' ' || $3
	END,
	updated_at = $4,
	completed_at = CASE
		WHEN $2 IN ('completed', 'failed', 'partially_failed') THEN $4
		ELSE NULL
	END
WHERE id = $1
`, id, string(status), note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("force import job status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("force import job status rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrJobNotFound, "force import job status", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (r *JobRepository) SetSourceType(ctx context.Context, id, sourceType string) error {
	return r.setColumn(ctx, id, "source_type", sourceType, "set source type")
}

func (r *JobRepository) SetDispatchID(ctx context.Context, id, dispatchID string) error {
	return r.setColumn(ctx, id, "dispatch_id", dispatchID, "set dispatch id")
}

func (r *JobRepository) SetTotalRows(ctx context.Context, id string, total int) error {
	return r.setColumn(ctx, id, "total_rows", total, "set total rows")
}

func (r *JobRepository) SetProcessedRows(ctx context.Context, id string, processed int) error {
	return r.setColumn(ctx, id, "processed_rows", processed, "set processed rows")
}

func (r *JobRepository) RecordImportTotals(ctx context.Context, id string, processed, imported, duplicates int) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE import_jobs
SET processed_rows = $2, imported_rows = $3, duplicate_rows = $4, updated_at = $5
WHERE id = $1
`, id, processed, imported, duplicates, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record import totals: %w", err)
	}
	return requireRow(result, id, "record import totals")
}

// AddCategorizeOutcome adds to both counters instead of overwriting so each
// batch lands exactly once and the totals never move backwards.
func (r *JobRepository) AddCategorizeOutcome(ctx context.Context, id string, categorized, uncategorized int) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE import_jobs
SET categorized_rows = categorized_rows + $2,
	uncategorized_rows = uncategorized_rows + $3,
	updated_at = $4
WHERE id = $1
`, id, categorized, uncategorized, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add categorize outcome: %w", err)
	}
	return requireRow(result, id, "add categorize outcome")
}

func (r *JobRepository) setColumn(ctx context.Context, id, column string, value any, operation string) error {
	result, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE import_jobs SET %s = $2, updated_at = $3 WHERE id = $1`, column),
		id, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return requireRow(result, id, operation)
}

// resolveGuardMiss turns a zero-row CAS update into the right semantic error:
// the job either does not exist or sits in a status the move is not allowed
// from.
func (r *JobRepository) resolveGuardMiss(ctx context.Context, result sql.Result, id string, next domain.JobStatus, operation string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM import_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrJobNotFound, operation, fmt.Errorf("id=%s", id))
	}
	if err != nil {
		return fmt.Errorf("%s status lookup: %w", operation, err)
	}
	return domain.WrapError(domain.ErrInvalidTransition, operation,
		fmt.Errorf("job %s is %s, cannot move to %s", id, current, next))
}

func requireRow(result sql.Result, id, operation string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrJobNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

type jobScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row jobScanner) (domain.ImportJob, error) {
	var job domain.ImportJob
	var origin, status string
	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Filename,
		&job.SourceType,
		&origin,
		&status,
		&job.TotalRows,
		&job.ImportedRows,
		&job.DuplicateRows,
		&job.ProcessedRows,
		&job.CategorizedRows,
		&job.UncategorizedRows,
		&job.ErrorMessage,
		&job.DispatchID,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return domain.ImportJob{}, err
	}
	job.Origin = domain.JobOrigin(origin)
	job.Status = domain.JobStatus(status)
	return job, nil
}
