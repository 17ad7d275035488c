package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hearthfin/hearth/internal/core/dedup"
	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/core/ports"
	"github.com/hearthfin/hearth/internal/infrastructure/resilience"
)

const defaultFlushEvery = 100

// ProcessStageUseCase runs the parse-and-persist stage: it claims a pending
// job, decodes the payload, writes rows into the ledger and hands the job to
// the categorization stage.
type ProcessStageUseCase struct {
	jobs       ports.JobStore
	ledger     ports.LedgerStore
	payloads   ports.PayloadStore
	queue      ports.StageQueue
	parsers    ports.ParserResolver
	matcher    dedup.Matcher
	executor   *resilience.Executor
	flushEvery int
}

func NewProcessStageUseCase(
	jobs ports.JobStore,
	ledger ports.LedgerStore,
	payloads ports.PayloadStore,
	queue ports.StageQueue,
	parsers ports.ParserResolver,
	matcher dedup.Matcher,
	executor *resilience.Executor,
	flushEvery int,
) *ProcessStageUseCase {
	if flushEvery <= 0 {
		flushEvery = defaultFlushEvery
	}
	if matcher == nil {
		matcher = dedup.ExactMatcher{}
	}
	return &ProcessStageUseCase{
		jobs:       jobs,
		ledger:     ledger,
		payloads:   payloads,
		queue:      queue,
		parsers:    parsers,
		matcher:    matcher,
		executor:   executor,
		flushEvery: flushEvery,
	}
}

type importTally struct {
	processed        int
	imported         int
	duplicates       int
	uncategorizedIDs []string
}

func (uc *ProcessStageUseCase) Run(ctx context.Context, handoff domain.StageHandoff) error {
	if handoff.JobID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "process stage", errors.New("handoff without job id"))
	}
	jobID := handoff.JobID
	started := time.Now()

	// Claiming pending->processing first makes every later failure a valid
	// processing->failed exit and drops redelivered handoffs.
	if err := uc.begin(ctx, jobID); err != nil {
		if domain.IsKind(err, domain.ErrInvalidTransition) || domain.IsKind(err, domain.ErrJobNotFound) {
			slog.Warn("process_handoff_dropped", "job_id", jobID, "error", err)
			return nil
		}
		return fmt.Errorf("set status=processing: %w", err)
	}

	job, err := uc.loadJob(ctx, jobID)
	if err != nil {
		return uc.fail(ctx, jobID, err)
	}
	defer uc.discardPayload(ctx, jobID)

	payload, err := uc.payloads.Fetch(ctx, job)
	if err != nil {
		if domain.IsKind(err, domain.ErrPayloadUnavailable) {
			return uc.fail(ctx, jobID, errors.New("file content not found for job; the payload expired or was never stored, re-upload required"))
		}
		return uc.fail(ctx, jobID, fmt.Errorf("fetch payload: %w", err))
	}

	parser, err := uc.parsers.ResolveParser(payload, job.Filename)
	if err != nil {
		return uc.fail(ctx, jobID, errors.New("no parser found for this file format"))
	}
	if err := uc.recordSourceType(ctx, job, parser.Name()); err != nil {
		return uc.fail(ctx, jobID, err)
	}

	rows, err := parser.Parse(payload)
	if err != nil {
		// Parse errors are deterministic; the job fails without retry.
		return uc.fail(ctx, jobID, err)
	}
	if err := runStore(ctx, uc.executor, "jobs.set_total_rows", func(c context.Context) error {
		return uc.jobs.SetTotalRows(c, jobID, len(rows))
	}); err != nil {
		return uc.fail(ctx, jobID, fmt.Errorf("record total rows: %w", err))
	}

	tally, err := uc.importRows(ctx, job, rows)
	if err != nil {
		return uc.fail(ctx, jobID, err)
	}

	if err := runStore(ctx, uc.executor, "jobs.record_import_totals", func(c context.Context) error {
		return uc.jobs.RecordImportTotals(c, jobID, tally.processed, tally.imported, tally.duplicates)
	}); err != nil {
		return uc.fail(ctx, jobID, fmt.Errorf("record import totals: %w", err))
	}

	next := domain.StageHandoff{
		JobID:            jobID,
		Status:           domain.StatusProcessing,
		TotalRows:        len(rows),
		ImportedRows:     tally.imported,
		DuplicateRows:    tally.duplicates,
		UncategorizedIDs: tally.uncategorizedIDs,
	}
	if err := uc.dispatchCategorize(ctx, next); err != nil {
		return uc.fail(ctx, jobID, fmt.Errorf("dispatch categorize stage: %w", err))
	}

	slog.Info("process_stage_done",
		"job_id", jobID,
		"source_type", parser.Name(),
		"total_rows", len(rows),
		"imported", tally.imported,
		"duplicates", tally.duplicates,
		"uncategorized", len(tally.uncategorizedIDs),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

func (uc *ProcessStageUseCase) begin(ctx context.Context, jobID string) error {
	return runStore(ctx, uc.executor, "jobs.transition_processing", func(c context.Context) error {
		return uc.jobs.Transition(c, jobID, domain.StatusProcessing)
	})
}

func (uc *ProcessStageUseCase) loadJob(ctx context.Context, jobID string) (*domain.ImportJob, error) {
	var job *domain.ImportJob
	err := runStore(ctx, uc.executor, "jobs.get_by_id", func(c context.Context) error {
		var loadErr error
		job, loadErr = uc.jobs.GetByID(c, jobID)
		return loadErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch job by id: %w", err)
	}
	return job, nil
}

func (uc *ProcessStageUseCase) recordSourceType(ctx context.Context, job *domain.ImportJob, sourceType string) error {
	if job.SourceType == sourceType {
		return nil
	}
	err := runStore(ctx, uc.executor, "jobs.set_source_type", func(c context.Context) error {
		return uc.jobs.SetSourceType(c, job.ID, sourceType)
	})
	if err != nil {
		return fmt.Errorf("record source type: %w", err)
	}
	job.SourceType = sourceType
	return nil
}

func (uc *ProcessStageUseCase) importRows(ctx context.Context, job *domain.ImportJob, rows []domain.StatementRow) (importTally, error) {
	var tally importTally
	institutionIDs := make(map[string]string)
	accountIDs := make(map[string]string)
	categoryIDs := make(map[string]string)

	for i := range rows {
		if err := uc.importRow(ctx, job, rows[i], institutionIDs, accountIDs, categoryIDs, &tally); err != nil {
			return tally, fmt.Errorf("import row %d: %w", i+1, err)
		}
		tally.processed++
		if tally.processed%uc.flushEvery == 0 {
			if err := runStore(ctx, uc.executor, "jobs.set_processed_rows", func(c context.Context) error {
				return uc.jobs.SetProcessedRows(c, job.ID, tally.processed)
			}); err != nil {
				return tally, fmt.Errorf("flush processed rows: %w", err)
			}
		}
	}
	return tally, nil
}

func (uc *ProcessStageUseCase) importRow(
	ctx context.Context,
	job *domain.ImportJob,
	row domain.StatementRow,
	institutionIDs, accountIDs, categoryIDs map[string]string,
	tally *importTally,
) error {
	institutionName := row.InstitutionName
	if institutionName == "" {
		institutionName = "Unknown Institution"
	}
	institutionID, ok := institutionIDs[institutionName]
	if !ok {
		if err := runStore(ctx, uc.executor, "ledger.ensure_institution", func(c context.Context) error {
			id, callErr := uc.ledger.EnsureInstitution(c, institutionName)
			if callErr != nil {
				return callErr
			}
			institutionID = id
			return nil
		}); err != nil {
			return fmt.Errorf("ensure institution: %w", err)
		}
		institutionIDs[institutionName] = institutionID
	}

	accountName := row.AccountName
	if accountName == "" {
		accountName = "Imported"
	}
	accountKey := institutionID + "|" + accountName + "|" + row.AccountLast4
	accountID, ok := accountIDs[accountKey]
	if !ok {
		if err := runStore(ctx, uc.executor, "ledger.ensure_account", func(c context.Context) error {
			id, callErr := uc.ledger.EnsureAccount(c, domain.Account{
				OwnerID:       job.OwnerID,
				InstitutionID: institutionID,
				Name:          accountName,
				Type:          row.AccountType,
				NumberLast4:   row.AccountLast4,
			})
			if callErr != nil {
				return callErr
			}
			accountID = id
			return nil
		}); err != nil {
			return fmt.Errorf("ensure account: %w", err)
		}
		accountIDs[accountKey] = accountID
	}

	var isDuplicate bool
	if err := runStore(ctx, uc.executor, "ledger.find_match", func(c context.Context) error {
		var err error
		isDuplicate, err = uc.matcher.Match(c, uc.ledger, accountID, row.Date, row.AmountCents, row.Description)
		return err
	}); err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if isDuplicate {
		tally.duplicates++
		return nil
	}

	categoryID := ""
	if row.CategoryName != "" {
		id, ok := categoryIDs[row.CategoryName]
		if !ok {
			if err := runStore(ctx, uc.executor, "ledger.ensure_category", func(c context.Context) error {
				ensured, callErr := uc.ledger.EnsureCategory(c, row.CategoryName)
				if callErr != nil {
					return callErr
				}
				id = ensured
				return nil
			}); err != nil {
				return fmt.Errorf("ensure category: %w", err)
			}
			categoryIDs[row.CategoryName] = id
		}
		categoryID = id
	}

	txn := &domain.Transaction{
		ID:                  uuid.NewString(),
		AccountID:           accountID,
		Date:                row.Date,
		OriginalDate:        row.OriginalDate,
		AmountCents:         row.AmountCents,
		Description:         row.Description,
		OriginalDescription: row.Description,
		MerchantName:        row.MerchantName,
		CategoryID:          categoryID,
		CustomName:          row.CustomName,
		Note:                row.Note,
		IsTransfer:          row.IsTransfer,
		TaxDeductible:       row.TaxDeductible,
		Tags:                row.Tags,
		ImportJobID:         job.ID,
		CreatedAt:           time.Now().UTC(),
	}
	if err := runStore(ctx, uc.executor, "ledger.insert_transaction", func(c context.Context) error {
		return uc.ledger.InsertTransaction(c, txn)
	}); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	tally.imported++
	if categoryID == "" {
		tally.uncategorizedIDs = append(tally.uncategorizedIDs, txn.ID)
	}
	return nil
}

func (uc *ProcessStageUseCase) dispatchCategorize(ctx context.Context, handoff domain.StageHandoff) error {
	return runStore(ctx, uc.executor, "queue.dispatch_categorize", func(c context.Context) error {
		return uc.queue.DispatchCategorize(c, handoff)
	})
}

// fail moves the job from processing to failed with a truncated message. The
// handoff is consumed either way, so the handler reports success unless even
// the failure write is refused.
func (uc *ProcessStageUseCase) fail(ctx context.Context, jobID string, cause error) error {
	msg := domain.TruncateErrorMessage(cause.Error())
	if err := uc.jobs.MarkFailed(ctx, jobID, msg); err != nil {
		return fmt.Errorf("%w; mark failed status: %v", cause, err)
	}
	slog.Warn("process_stage_failed", "job_id", jobID, "error", cause)
	return nil
}

func (uc *ProcessStageUseCase) discardPayload(ctx context.Context, jobID string) {
	if err := uc.payloads.Discard(ctx, jobID); err != nil {
		slog.Warn("payload_discard_failed", "job_id", jobID, "error", err)
	}
}
