package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/core/ports"
	"github.com/hearthfin/hearth/internal/infrastructure/resilience"
)

const (
	defaultBatchSize       = 20
	maxWarningBatchSamples = 5
)

// CategorizeStageUseCase runs the final stage: transactions that left the
// import without a category get one from the provider, in isolated batches.
// A batch failure never fails the job, it surfaces as partially_failed with a
// warning summary.
type CategorizeStageUseCase struct {
	jobs      ports.JobStore
	ledger    ports.LedgerStore
	provider  ports.CategorizationProvider
	executor  *resilience.Executor
	batchSize int
}

func NewCategorizeStageUseCase(
	jobs ports.JobStore,
	ledger ports.LedgerStore,
	provider ports.CategorizationProvider,
	executor *resilience.Executor,
	batchSize int,
) *CategorizeStageUseCase {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &CategorizeStageUseCase{
		jobs:      jobs,
		ledger:    ledger,
		provider:  provider,
		executor:  executor,
		batchSize: batchSize,
	}
}

func (uc *CategorizeStageUseCase) Run(ctx context.Context, handoff domain.StageHandoff) error {
	if handoff.JobID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "categorize stage", errors.New("handoff without job id"))
	}
	jobID := handoff.JobID
	started := time.Now()

	if err := uc.begin(ctx, jobID); err != nil {
		if domain.IsKind(err, domain.ErrInvalidTransition) || domain.IsKind(err, domain.ErrJobNotFound) {
			slog.Warn("categorize_handoff_dropped", "job_id", jobID, "error", err)
			return nil
		}
		return fmt.Errorf("set status=categorizing: %w", err)
	}

	ids := handoff.UncategorizedIDs
	if len(ids) == 0 {
		// Retry dispatches carry no ids; re-derive them from the ledger.
		var err error
		if ids, err = uc.pendingTransactionIDs(ctx, jobID); err != nil {
			return uc.finalizeError(ctx, jobID, err)
		}
	}

	taxonomy, fallbackID, err := uc.loadTaxonomy(ctx)
	if err != nil {
		return uc.finalizeError(ctx, jobID, err)
	}

	var failedBatches int
	var warnings []string
	for start := 0; start < len(ids); start += uc.batchSize {
		end := min(start+uc.batchSize, len(ids))
		batchNo := start/uc.batchSize + 1

		categorized, uncategorized, batchErr := uc.processBatch(ctx, ids[start:end], taxonomy, fallbackID)
		if batchErr != nil {
			failedBatches++
			if len(warnings) < maxWarningBatchSamples {
				warnings = append(warnings, fmt.Sprintf("batch %d: %v", batchNo, batchErr))
			}
			slog.Warn("categorize_batch_failed", "job_id", jobID, "batch", batchNo, "error", batchErr)
		}
		if err := runStore(ctx, uc.executor, "jobs.add_categorize_outcome", func(c context.Context) error {
			return uc.jobs.AddCategorizeOutcome(c, jobID, categorized, uncategorized)
		}); err != nil {
			return uc.finalizeError(ctx, jobID, fmt.Errorf("record batch outcome: %w", err))
		}
	}

	status := domain.StatusCompleted
	message := ""
	if failedBatches > 0 {
		status = domain.StatusPartiallyFailed
		message = domain.TruncateErrorMessage(fmt.Sprintf(
			"Categorization warnings (%d batches): %s", failedBatches, strings.Join(warnings, "; ")))
	}
	if err := uc.finalize(ctx, jobID, status, message); err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}

	slog.Info("categorize_stage_done",
		"job_id", jobID,
		"status", status,
		"transactions", len(ids),
		"failed_batches", failedBatches,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

// processBatch returns how many transactions received a real category and how
// many ended uncategorized. A non-nil error means the batch failed as a unit.
func (uc *CategorizeStageUseCase) processBatch(
	ctx context.Context,
	ids []string,
	taxonomy map[string]domain.Category,
	fallbackID string,
) (categorized, uncategorized int, err error) {
	var batch []domain.Transaction
	if err := runStore(ctx, uc.executor, "ledger.transactions_by_ids", func(c context.Context) error {
		loaded, callErr := uc.ledger.TransactionsByIDs(c, ids)
		if callErr != nil {
			return callErr
		}
		batch = loaded
		return nil
	}); err != nil {
		return 0, len(ids), fmt.Errorf("load batch: %w", err)
	}
	if len(batch) == 0 {
		return 0, 0, nil
	}

	suggestions, err := uc.provider.CategorizeBatch(ctx, batch)
	if err != nil {
		return 0, len(batch), fmt.Errorf("provider: %w", err)
	}
	byTxn := make(map[string]domain.CategorySuggestion, len(suggestions))
	for _, s := range suggestions {
		byTxn[s.TransactionID] = s
	}

	for i := range batch {
		txn := &batch[i]
		categoryID := fallbackID
		merchant := ""

		if s, ok := byTxn[txn.ID]; ok {
			if cat, ok := taxonomy[normalizeCategoryName(s.CategoryName)]; ok {
				categoryID = cat.ID
			}
			if txn.MerchantName != "" {
				merchant = s.NormalizedMerchant
			}
		}

		if err := runStore(ctx, uc.executor, "ledger.assign_category", func(c context.Context) error {
			return uc.ledger.AssignCategory(c, txn.ID, categoryID, merchant)
		}); err != nil {
			uncategorized += len(batch) - i
			return categorized, uncategorized, fmt.Errorf("assign category: %w", err)
		}
		if categoryID != fallbackID {
			categorized++
		} else {
			uncategorized++
		}
	}
	return categorized, uncategorized, nil
}

func (uc *CategorizeStageUseCase) begin(ctx context.Context, jobID string) error {
	return runStore(ctx, uc.executor, "jobs.transition_categorizing", func(c context.Context) error {
		return uc.jobs.Transition(c, jobID, domain.StatusCategorizing)
	})
}

func (uc *CategorizeStageUseCase) pendingTransactionIDs(ctx context.Context, jobID string) ([]string, error) {
	var ids []string
	err := runStore(ctx, uc.executor, "ledger.uncategorized_by_job", func(c context.Context) error {
		loaded, callErr := uc.ledger.UncategorizedByJob(c, jobID)
		if callErr != nil {
			return callErr
		}
		ids = loaded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list uncategorized transactions: %w", err)
	}
	return ids, nil
}

// loadTaxonomy returns the known categories keyed by normalized name and the
// id of the Uncategorized fallback, creating it on a fresh database.
func (uc *CategorizeStageUseCase) loadTaxonomy(ctx context.Context) (map[string]domain.Category, string, error) {
	var fallbackID string
	if err := runStore(ctx, uc.executor, "ledger.ensure_category", func(c context.Context) error {
		id, callErr := uc.ledger.EnsureCategory(c, domain.UncategorizedName)
		if callErr != nil {
			return callErr
		}
		fallbackID = id
		return nil
	}); err != nil {
		return nil, "", fmt.Errorf("ensure fallback category: %w", err)
	}

	var categories []domain.Category
	if err := runStore(ctx, uc.executor, "ledger.categories", func(c context.Context) error {
		loaded, callErr := uc.ledger.Categories(c)
		if callErr != nil {
			return callErr
		}
		categories = loaded
		return nil
	}); err != nil {
		return nil, "", fmt.Errorf("load categories: %w", err)
	}

	taxonomy := make(map[string]domain.Category, len(categories))
	for _, cat := range categories {
		taxonomy[normalizeCategoryName(cat.Name)] = cat
	}
	return taxonomy, fallbackID, nil
}

func (uc *CategorizeStageUseCase) finalize(ctx context.Context, jobID string, status domain.JobStatus, message string) error {
	return runStore(ctx, uc.executor, "jobs.finalize", func(c context.Context) error {
		return uc.jobs.Finalize(c, jobID, status, message)
	})
}

// finalizeError closes the job as partially_failed when the stage itself
// breaks mid-flight; batch isolation already happened, so completed would
// overstate what was done.
func (uc *CategorizeStageUseCase) finalizeError(ctx context.Context, jobID string, cause error) error {
	msg := domain.TruncateErrorMessage("Categorization aborted: " + cause.Error())
	if err := uc.finalize(ctx, jobID, domain.StatusPartiallyFailed, msg); err != nil {
		return fmt.Errorf("%w; finalize partially_failed: %v", cause, err)
	}
	slog.Warn("categorize_stage_aborted", "job_id", jobID, "error", cause)
	return nil
}

// normalizeCategoryName lowercases and collapses runs of whitespace so
// "dining  & drinks" still matches "Dining & Drinks".
func normalizeCategoryName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
