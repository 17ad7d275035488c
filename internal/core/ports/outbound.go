package ports

import (
	"context"
	"time"

	"github.com/hearthfin/hearth/internal/core/domain"
)

// JobStore persists import job state. Transition and the counter setters
// enforce the status state graph; ForceStatus is the administrative escape
// hatch that bypasses it.
type JobStore interface {
	Create(ctx context.Context, job *domain.ImportJob) error
	GetByID(ctx context.Context, id string) (*domain.ImportJob, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.ImportJob, error)
	HasWatchJob(ctx context.Context, filename string) (bool, error)

	Transition(ctx context.Context, id string, next domain.JobStatus) error
	MarkFailed(ctx context.Context, id, errMessage string) error
	Finalize(ctx context.Context, id string, status domain.JobStatus, errMessage string) error
	ForceStatus(ctx context.Context, id string, status domain.JobStatus, note string) error

	SetSourceType(ctx context.Context, id, sourceType string) error
	SetDispatchID(ctx context.Context, id, dispatchID string) error
	SetTotalRows(ctx context.Context, id string, total int) error
	SetProcessedRows(ctx context.Context, id string, processed int) error
	RecordImportTotals(ctx context.Context, id string, processed, imported, duplicates int) error
	AddCategorizeOutcome(ctx context.Context, id string, categorized, uncategorized int) error
}

// LedgerStore is the persistence boundary for institutions, accounts,
// categories and transactions. The Ensure methods are safe under concurrent
// jobs (unique constraint plus retry-on-conflict, no global lock).
type LedgerStore interface {
	EnsureInstitution(ctx context.Context, name string) (string, error)
	EnsureAccount(ctx context.Context, account domain.Account) (string, error)
	EnsureCategory(ctx context.Context, name string) (string, error)
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error
	FindMatch(ctx context.Context, accountID string, date time.Time, amountCents int64, description string) (string, bool, error)

	TransactionsByIDs(ctx context.Context, ids []string) ([]domain.Transaction, error)
	UncategorizedByJob(ctx context.Context, jobID string) ([]string, error)
	Categories(ctx context.Context) ([]domain.Category, error)
	AssignCategory(ctx context.Context, txnID, categoryID, normalizedMerchant string) error
	SeedCategories(ctx context.Context, names []string) (int, error)

	FinancialContext(ctx context.Context, ownerID string, recentLimit int) (*domain.FinancialContext, error)
}

// StageQueue moves typed handoffs between pipeline stages across processes.
// Consume blocks until ctx is done.
type StageQueue interface {
	DispatchProcess(ctx context.Context, handoff domain.StageHandoff) error
	DispatchCategorize(ctx context.Context, handoff domain.StageHandoff) error
	ConsumeProcess(ctx context.Context, handler func(context.Context, domain.StageHandoff) error) error
	ConsumeCategorize(ctx context.Context, handler func(context.Context, domain.StageHandoff) error) error
}

// PayloadStore is the file intake boundary: a function from job to bytes.
// Upload payloads live in a TTL-bounded keyed cache; watch payloads are read
// from the watched directory. Discard is idempotent.
type PayloadStore interface {
	Stash(ctx context.Context, jobID string, data []byte) error
	Fetch(ctx context.Context, job *domain.ImportJob) ([]byte, error)
	Discard(ctx context.Context, jobID string) error
}

// StatementParser decodes one statement file format into transaction
// candidates. Detect must be cheap; Parse reads the whole payload once.
type StatementParser interface {
	Name() string
	Detect(data []byte, filename string) bool
	Parse(data []byte) ([]domain.StatementRow, error)
}

// ParserResolver picks the parser claiming a payload.
type ParserResolver interface {
	ResolveParser(data []byte, filename string) (StatementParser, error)
}

// ProviderResolver returns a registered categorization provider by name.
type ProviderResolver interface {
	ResolveProvider(name string) (CategorizationProvider, error)
}

// CategorizationProvider assigns categories to transactions and answers
// free-text questions over a financial context.
type CategorizationProvider interface {
	Name() string
	CategorizeBatch(ctx context.Context, batch []domain.Transaction) ([]domain.CategorySuggestion, error)
	AnswerQuery(ctx context.Context, question string, fc *domain.FinancialContext) (string, error)
}
