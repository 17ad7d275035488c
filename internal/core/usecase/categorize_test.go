package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hearthfin/hearth/internal/core/domain"
)

func processingJob(id, owner string) *domain.ImportJob {
	job := pendingJob(id, owner)
	job.Status = domain.StatusProcessing
	return job
}

func insertUncategorized(ledger *ledgerStoreFake, jobID string, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		txn := &domain.Transaction{
			ID:           fmt.Sprintf("txn-%d", i+1),
			AccountID:    "acct-1",
			Date:         time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			AmountCents:  -100 * int64(i+1),
			Description:  fmt.Sprintf("ROW %d", i+1),
			MerchantName: "Vendor",
			ImportJobID:  jobID,
			CreatedAt:    time.Now().UTC(),
		}
		ledger.inserted = append(ledger.inserted, txn)
		ids = append(ids, txn.ID)
	}
	return ids
}

func seedTaxonomy(t *testing.T, ledger *ledgerStoreFake, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := ledger.EnsureCategory(context.Background(), name); err != nil {
			t.Fatalf("seed category %s: %v", name, err)
		}
	}
}

func TestCategorizeRunCompletes(t *testing.T) {
	jobs := newJobStoreFake(processingJob("job-1", "owner-1"))
	ledger := newLedgerStoreFake()
	seedTaxonomy(t, ledger, "Dining & Drinks", "Groceries")
	ids := insertUncategorized(ledger, "job-1", 3)
	provider := &providerFake{responses: []func([]domain.Transaction) ([]domain.CategorySuggestion, error){
		suggestAll("Dining & Drinks"),
	}}
	uc := NewCategorizeStageUseCase(jobs, ledger, provider, nil, 0)

	err := uc.Run(context.Background(), domain.StageHandoff{
		JobID: "job-1", Status: domain.StatusProcessing, UncategorizedIDs: ids,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job := jobs.jobs["job-1"]
	if job.Status != domain.StatusCompleted {
		t.Fatalf("expected status completed, got %s", job.Status)
	}
	if job.CategorizedRows != 3 {
		t.Fatalf("expected 3 categorized rows, got %d", job.CategorizedRows)
	}
	if job.UncategorizedRows != 0 {
		t.Fatalf("expected 0 uncategorized rows, got %d", job.UncategorizedRows)
	}
	if job.CompletedAt == nil {
		t.Fatalf("expected completed_at set")
	}
	diningID := ledger.categories["Dining & Drinks"].ID
	for _, id := range ids {
		got, ok := ledger.assigned[id]
		if !ok {
			t.Fatalf("expected assignment for %s", id)
		}
		if got[0] != diningID {
			t.Fatalf("expected category %s for %s, got %s", diningID, id, got[0])
		}
	}
}

func TestCategorizeRunBatchFailureIsPartial(t *testing.T) {
	jobs := newJobStoreFake(processingJob("job-1", "owner-1"))
	ledger := newLedgerStoreFake()
	seedTaxonomy(t, ledger, "Groceries")
	ids := insertUncategorized(ledger, "job-1", 5)
	provider := &providerFake{responses: []func([]domain.Transaction) ([]domain.CategorySuggestion, error){
		suggestAll("Groceries"),
		func([]domain.Transaction) ([]domain.CategorySuggestion, error) {
			return nil, errors.New("model timeout")
		},
	}}
	uc := NewCategorizeStageUseCase(jobs, ledger, provider, nil, 3)

	err := uc.Run(context.Background(), domain.StageHandoff{
		JobID: "job-1", Status: domain.StatusProcessing, UncategorizedIDs: ids,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job := jobs.jobs["job-1"]
	if job.Status != domain.StatusPartiallyFailed {
		t.Fatalf("expected status partially_failed, got %s", job.Status)
	}
	if job.CategorizedRows != 3 {
		t.Fatalf("expected 3 categorized rows from first batch, got %d", job.CategorizedRows)
	}
	if job.UncategorizedRows != 2 {
		t.Fatalf("expected 2 uncategorized rows from failed batch, got %d", job.UncategorizedRows)
	}
	if !strings.Contains(job.ErrorMessage, "Categorization warnings (1 batches)") {
		t.Fatalf("expected warning summary, got %q", job.ErrorMessage)
	}
	if !strings.Contains(job.ErrorMessage, "model timeout") {
		t.Fatalf("expected batch cause in summary, got %q", job.ErrorMessage)
	}
}

func TestCategorizeRunNormalizesCategoryNames(t *testing.T) {
	jobs := newJobStoreFake(processingJob("job-1", "owner-1"))
	ledger := newLedgerStoreFake()
	seedTaxonomy(t, ledger, "Dining & Drinks")
	ids := insertUncategorized(ledger, "job-1", 1)
	provider := &providerFake{responses: []func([]domain.Transaction) ([]domain.CategorySuggestion, error){
		suggestAll("DINING  &  DRINKS"),
	}}
	uc := NewCategorizeStageUseCase(jobs, ledger, provider, nil, 0)

	if err := uc.Run(context.Background(), domain.StageHandoff{JobID: "job-1", UncategorizedIDs: ids}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := ledger.assigned[ids[0]][0]; got != ledger.categories["Dining & Drinks"].ID {
		t.Fatalf("expected fuzzy name to resolve, got category %s", got)
	}
	if jobs.jobs["job-1"].CategorizedRows != 1 {
		t.Fatalf("expected 1 categorized row, got %d", jobs.jobs["job-1"].CategorizedRows)
	}
}

func TestCategorizeRunUnknownCategoryFallsBack(t *testing.T) {
	jobs := newJobStoreFake(processingJob("job-1", "owner-1"))
	ledger := newLedgerStoreFake()
	ids := insertUncategorized(ledger, "job-1", 2)
	provider := &providerFake{responses: []func([]domain.Transaction) ([]domain.CategorySuggestion, error){
		suggestAll("Cryptocurrency Winnings"),
	}}
	uc := NewCategorizeStageUseCase(jobs, ledger, provider, nil, 0)

	if err := uc.Run(context.Background(), domain.StageHandoff{JobID: "job-1", UncategorizedIDs: ids}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job := jobs.jobs["job-1"]
	if job.Status != domain.StatusCompleted {
		t.Fatalf("expected status completed, got %s", job.Status)
	}
	if job.CategorizedRows != 0 {
		t.Fatalf("expected 0 categorized rows, got %d", job.CategorizedRows)
	}
	if job.UncategorizedRows != 2 {
		t.Fatalf("expected 2 uncategorized rows, got %d", job.UncategorizedRows)
	}
	fallbackID := ledger.categories[domain.UncategorizedName].ID
	if fallbackID == "" {
		t.Fatalf("expected fallback category created")
	}
	for _, id := range ids {
		if got := ledger.assigned[id][0]; got != fallbackID {
			t.Fatalf("expected fallback for %s, got %s", id, got)
		}
	}
}

func TestCategorizeRunZeroUncategorized(t *testing.T) {
	jobs := newJobStoreFake(processingJob("job-1", "owner-1"))
	ledger := newLedgerStoreFake()
	provider := &providerFake{}
	uc := NewCategorizeStageUseCase(jobs, ledger, provider, nil, 0)

	err := uc.Run(context.Background(), domain.StageHandoff{JobID: "job-1", Status: domain.StatusProcessing})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	job := jobs.jobs["job-1"]
	if job.Status != domain.StatusCompleted {
		t.Fatalf("expected status completed, got %s", job.Status)
	}
	if provider.calls != 0 {
		t.Fatalf("expected no provider calls, got %d", provider.calls)
	}
}

func TestCategorizeRunRetryPathRederivesIDs(t *testing.T) {
	jobs := newJobStoreFake(processingJob("job-1", "owner-1"))
	ledger := newLedgerStoreFake()
	seedTaxonomy(t, ledger, "Groceries")
	insertUncategorized(ledger, "job-1", 2)
	provider := &providerFake{responses: []func([]domain.Transaction) ([]domain.CategorySuggestion, error){
		suggestAll("Groceries"),
	}}
	uc := NewCategorizeStageUseCase(jobs, ledger, provider, nil, 0)

	// A retry dispatch carries no ids; the stage re-derives them.
	if err := uc.Run(context.Background(), domain.StageHandoff{JobID: "job-1", Status: domain.StatusProcessing}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", provider.calls)
	}
	if jobs.jobs["job-1"].CategorizedRows != 2 {
		t.Fatalf("expected 2 categorized rows, got %d", jobs.jobs["job-1"].CategorizedRows)
	}
}

func TestCategorizeRunPropagatesMerchant(t *testing.T) {
	jobs := newJobStoreFake(processingJob("job-1", "owner-1"))
	ledger := newLedgerStoreFake()
	seedTaxonomy(t, ledger, "Shopping")
	ids := insertUncategorized(ledger, "job-1", 1)
	provider := &providerFake{responses: []func([]domain.Transaction) ([]domain.CategorySuggestion, error){
		func(batch []domain.Transaction) ([]domain.CategorySuggestion, error) {
			return []domain.CategorySuggestion{{
				TransactionID:      batch[0].ID,
				CategoryName:       "Shopping",
				Confidence:         0.8,
				NormalizedMerchant: "Amazon",
			}}, nil
		},
	}}
	uc := NewCategorizeStageUseCase(jobs, ledger, provider, nil, 0)

	if err := uc.Run(context.Background(), domain.StageHandoff{JobID: "job-1", UncategorizedIDs: ids}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := ledger.assigned[ids[0]][1]; got != "Amazon" {
		t.Fatalf("expected normalized merchant Amazon, got %q", got)
	}
}

func TestCategorizeRunDropsRedeliveredHandoff(t *testing.T) {
	job := pendingJob("job-1", "owner-1")
	job.Status = domain.StatusCompleted
	jobs := newJobStoreFake(job)
	uc := NewCategorizeStageUseCase(jobs, newLedgerStoreFake(), &providerFake{}, nil, 0)

	if err := uc.Run(context.Background(), domain.StageHandoff{JobID: "job-1"}); err != nil {
		t.Fatalf("Run() error = %v, redelivery must be dropped", err)
	}
	if jobs.jobs["job-1"].Status != domain.StatusCompleted {
		t.Fatalf("expected status untouched, got %s", jobs.jobs["job-1"].Status)
	}
}

func TestCategorizeRunTaxonomyFailureAborts(t *testing.T) {
	jobs := newJobStoreFake(processingJob("job-1", "owner-1"))
	ledger := newLedgerStoreFake()
	ledger.failOn["Categories"] = errors.New("db down")
	insertUncategorized(ledger, "job-1", 1)
	uc := NewCategorizeStageUseCase(jobs, ledger, &providerFake{}, nil, 0)

	if err := uc.Run(context.Background(), domain.StageHandoff{JobID: "job-1"}); err != nil {
		t.Fatalf("Run() error = %v, abort must consume the handoff", err)
	}
	job := jobs.jobs["job-1"]
	if job.Status != domain.StatusPartiallyFailed {
		t.Fatalf("expected status partially_failed, got %s", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "Categorization aborted") {
		t.Fatalf("expected abort message, got %q", job.ErrorMessage)
	}
}

func TestCategorizeRunMissingSuggestionFallsBack(t *testing.T) {
	jobs := newJobStoreFake(processingJob("job-1", "owner-1"))
	ledger := newLedgerStoreFake()
	seedTaxonomy(t, ledger, "Groceries")
	ids := insertUncategorized(ledger, "job-1", 2)
	provider := &providerFake{responses: []func([]domain.Transaction) ([]domain.CategorySuggestion, error){
		func(batch []domain.Transaction) ([]domain.CategorySuggestion, error) {
			// Verdict for the first transaction only.
			return []domain.CategorySuggestion{{
				TransactionID: batch[0].ID,
				CategoryName:  "Groceries",
			}}, nil
		},
	}}
	uc := NewCategorizeStageUseCase(jobs, ledger, provider, nil, 0)

	if err := uc.Run(context.Background(), domain.StageHandoff{JobID: "job-1", UncategorizedIDs: ids}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	job := jobs.jobs["job-1"]
	if job.CategorizedRows != 1 {
		t.Fatalf("expected 1 categorized row, got %d", job.CategorizedRows)
	}
	if job.UncategorizedRows != 1 {
		t.Fatalf("expected 1 uncategorized row, got %d", job.UncategorizedRows)
	}
	fallbackID := ledger.categories[domain.UncategorizedName].ID
	if got := ledger.assigned[ids[1]][0]; got != fallbackID {
		t.Fatalf("expected fallback for unanswered transaction, got %s", got)
	}
}
