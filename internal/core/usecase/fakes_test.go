package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/core/ports"
)

// jobStoreFake keeps jobs in memory and enforces the same transition rules
// the real repository does.
type jobStoreFake struct {
	mu               sync.Mutex
	jobs             map[string]*domain.ImportJob
	failOn           map[string]error
	processedFlushes []int
}

func newJobStoreFake(jobs ...*domain.ImportJob) *jobStoreFake {
	f := &jobStoreFake{
		jobs:   make(map[string]*domain.ImportJob),
		failOn: make(map[string]error),
	}
	for _, job := range jobs {
		copied := *job
		f.jobs[job.ID] = &copied
	}
	return f
}

func (f *jobStoreFake) get(id string) (*domain.ImportJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrJobNotFound, "fake job store", fmt.Errorf("job %s", id))
	}
	return job, nil
}

func (f *jobStoreFake) Create(_ context.Context, job *domain.ImportJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["Create"]; err != nil {
		return err
	}
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *jobStoreFake) GetByID(_ context.Context, id string) (*domain.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["GetByID"]; err != nil {
		return nil, err
	}
	job, err := f.get(id)
	if err != nil {
		return nil, err
	}
	copied := *job
	return &copied, nil
}

func (f *jobStoreFake) ListByOwner(_ context.Context, ownerID string) ([]domain.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["ListByOwner"]; err != nil {
		return nil, err
	}
	var out []domain.ImportJob
	for _, job := range f.jobs {
		if job.OwnerID == ownerID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *jobStoreFake) HasWatchJob(_ context.Context, filename string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["HasWatchJob"]; err != nil {
		return false, err
	}
	for _, job := range f.jobs {
		if job.Origin == domain.OriginWatch && job.Filename == filename {
			return true, nil
		}
	}
	return false, nil
}

func (f *jobStoreFake) Transition(_ context.Context, id string, next domain.JobStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["Transition"]; err != nil {
		return err
	}
	job, err := f.get(id)
	if err != nil {
		return err
	}
	if !job.Status.CanTransition(next) {
		return domain.WrapError(domain.ErrInvalidTransition, "fake job store",
			fmt.Errorf("%s -> %s", job.Status, next))
	}
	job.Status = next
	return nil
}

func (f *jobStoreFake) MarkFailed(_ context.Context, id, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["MarkFailed"]; err != nil {
		return err
	}
	job, err := f.get(id)
	if err != nil {
		return err
	}
	if job.Status != domain.StatusProcessing {
		return domain.WrapError(domain.ErrInvalidTransition, "fake job store",
			fmt.Errorf("%s -> failed", job.Status))
	}
	job.Status = domain.StatusFailed
	job.ErrorMessage = errMessage
	return nil
}

func (f *jobStoreFake) Finalize(_ context.Context, id string, status domain.JobStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["Finalize"]; err != nil {
		return err
	}
	job, err := f.get(id)
	if err != nil {
		return err
	}
	if !job.Status.CanTransition(status) {
		return domain.WrapError(domain.ErrInvalidTransition, "fake job store",
			fmt.Errorf("%s -> %s", job.Status, status))
	}
	now := time.Now().UTC()
	job.Status = status
	job.ErrorMessage = errMessage
	job.CompletedAt = &now
	return nil
}

func (f *jobStoreFake) ForceStatus(_ context.Context, id string, status domain.JobStatus, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["ForceStatus"]; err != nil {
		return err
	}
	job, err := f.get(id)
	if err != nil {
		return err
	}
	job.Status = status
	if note != "" {
		if job.ErrorMessage == "" {
			job.ErrorMessage = note
		} else {
			job.ErrorMessage = job.ErrorMessage + " " + note
		}
	}
	return nil
}

func (f *jobStoreFake) SetSourceType(_ context.Context, id, sourceType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["SetSourceType"]; err != nil {
		return err
	}
	job, err := f.get(id)
	if err != nil {
		return err
	}
	job.SourceType = sourceType
	return nil
}

func (f *jobStoreFake) SetDispatchID(_ context.Context, id, dispatchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["SetDispatchID"]; err != nil {
		return err
	}
	job, err := f.get(id)
	if err != nil {
		return err
	}
	job.DispatchID = dispatchID
	return nil
}

func (f *jobStoreFake) SetTotalRows(_ context.Context, id string, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, err := f.get(id)
	if err != nil {
		return err
	}
	job.TotalRows = total
	return nil
}

func (f *jobStoreFake) SetProcessedRows(_ context.Context, id string, processed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, err := f.get(id)
	if err != nil {
		return err
	}
	job.ProcessedRows = processed
	f.processedFlushes = append(f.processedFlushes, processed)
	return nil
}

func (f *jobStoreFake) RecordImportTotals(_ context.Context, id string, processed, imported, duplicates int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["RecordImportTotals"]; err != nil {
		return err
	}
	job, err := f.get(id)
	if err != nil {
		return err
	}
	job.ProcessedRows = processed
	job.ImportedRows = imported
	job.DuplicateRows = duplicates
	return nil
}

func (f *jobStoreFake) AddCategorizeOutcome(_ context.Context, id string, categorized, uncategorized int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["AddCategorizeOutcome"]; err != nil {
		return err
	}
	job, err := f.get(id)
	if err != nil {
		return err
	}
	job.CategorizedRows += categorized
	job.UncategorizedRows += uncategorized
	return nil
}

// ledgerStoreFake records ensure/insert/assign traffic for assertions.
type ledgerStoreFake struct {
	mu           sync.Mutex
	seq          int
	institutions map[string]string
	accounts     map[string]string
	categories   map[string]domain.Category
	existing     map[string]string
	inserted     []*domain.Transaction
	assigned     map[string][2]string
	finContext   *domain.FinancialContext
	failOn       map[string]error
}

func newLedgerStoreFake() *ledgerStoreFake {
	return &ledgerStoreFake{
		institutions: make(map[string]string),
		accounts:     make(map[string]string),
		categories:   make(map[string]domain.Category),
		existing:     make(map[string]string),
		assigned:     make(map[string][2]string),
		failOn:       make(map[string]error),
	}
}

func (f *ledgerStoreFake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func matchKey(accountID string, date time.Time, amountCents int64, description string) string {
	return fmt.Sprintf("%s|%s|%d|%s", accountID, date.Format("2006-01-02"), amountCents, description)
}

func (f *ledgerStoreFake) EnsureInstitution(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["EnsureInstitution"]; err != nil {
		return "", err
	}
	if id, ok := f.institutions[name]; ok {
		return id, nil
	}
	id := f.nextID("inst")
	f.institutions[name] = id
	return id, nil
}

func (f *ledgerStoreFake) EnsureAccount(_ context.Context, account domain.Account) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["EnsureAccount"]; err != nil {
		return "", err
	}
	key := account.InstitutionID + "|" + account.Name + "|" + account.NumberLast4
	if id, ok := f.accounts[key]; ok {
		return id, nil
	}
	id := f.nextID("acct")
	f.accounts[key] = id
	return id, nil
}

func (f *ledgerStoreFake) EnsureCategory(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["EnsureCategory"]; err != nil {
		return "", err
	}
	if cat, ok := f.categories[name]; ok {
		return cat.ID, nil
	}
	cat := domain.Category{ID: f.nextID("cat"), Name: name}
	f.categories[name] = cat
	return cat.ID, nil
}

func (f *ledgerStoreFake) InsertTransaction(_ context.Context, txn *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["InsertTransaction"]; err != nil {
		return err
	}
	copied := *txn
	f.inserted = append(f.inserted, &copied)
	f.existing[matchKey(txn.AccountID, txn.Date, txn.AmountCents, txn.Description)] = txn.ID
	return nil
}

func (f *ledgerStoreFake) FindMatch(_ context.Context, accountID string, date time.Time, amountCents int64, description string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["FindMatch"]; err != nil {
		return "", false, err
	}
	id, ok := f.existing[matchKey(accountID, date, amountCents, description)]
	return id, ok, nil
}

func (f *ledgerStoreFake) TransactionsByIDs(_ context.Context, ids []string) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["TransactionsByIDs"]; err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Transaction
	for _, txn := range f.inserted {
		if want[txn.ID] {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func (f *ledgerStoreFake) UncategorizedByJob(_ context.Context, jobID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["UncategorizedByJob"]; err != nil {
		return nil, err
	}
	var out []string
	for _, txn := range f.inserted {
		if txn.ImportJobID == jobID && txn.CategoryID == "" {
			if _, ok := f.assigned[txn.ID]; !ok {
				out = append(out, txn.ID)
			}
		}
	}
	return out, nil
}

func (f *ledgerStoreFake) Categories(_ context.Context) ([]domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["Categories"]; err != nil {
		return nil, err
	}
	var out []domain.Category
	for _, cat := range f.categories {
		out = append(out, cat)
	}
	return out, nil
}

func (f *ledgerStoreFake) AssignCategory(_ context.Context, txnID, categoryID, normalizedMerchant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["AssignCategory"]; err != nil {
		return err
	}
	f.assigned[txnID] = [2]string{categoryID, normalizedMerchant}
	return nil
}

func (f *ledgerStoreFake) SeedCategories(_ context.Context, names []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["SeedCategories"]; err != nil {
		return 0, err
	}
	created := 0
	for _, name := range names {
		if _, ok := f.categories[name]; ok {
			continue
		}
		f.categories[name] = domain.Category{ID: f.nextID("cat"), Name: name, IsSystem: true}
		created++
	}
	return created, nil
}

func (f *ledgerStoreFake) FinancialContext(_ context.Context, _ string, _ int) (*domain.FinancialContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["FinancialContext"]; err != nil {
		return nil, err
	}
	if f.finContext != nil {
		return f.finContext, nil
	}
	return &domain.FinancialContext{}, nil
}

type queueFake struct {
	mu          sync.Mutex
	process     []domain.StageHandoff
	categorize  []domain.StageHandoff
	dispatchErr error
}

func (f *queueFake) DispatchProcess(_ context.Context, handoff domain.StageHandoff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispatchErr != nil {
		return f.dispatchErr
	}
	f.process = append(f.process, handoff)
	return nil
}

func (f *queueFake) DispatchCategorize(_ context.Context, handoff domain.StageHandoff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispatchErr != nil {
		return f.dispatchErr
	}
	f.categorize = append(f.categorize, handoff)
	return nil
}

func (f *queueFake) ConsumeProcess(context.Context, func(context.Context, domain.StageHandoff) error) error {
	return errors.New("not implemented")
}

func (f *queueFake) ConsumeCategorize(context.Context, func(context.Context, domain.StageHandoff) error) error {
	return errors.New("not implemented")
}

type payloadFake struct {
	mu       sync.Mutex
	payloads map[string][]byte
	discards int
	stashErr error
	fetchErr error
}

func newPayloadFake() *payloadFake {
	return &payloadFake{payloads: make(map[string][]byte)}
}

func (f *payloadFake) Stash(_ context.Context, jobID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stashErr != nil {
		return f.stashErr
	}
	f.payloads[jobID] = data
	return nil
}

func (f *payloadFake) Fetch(_ context.Context, job *domain.ImportJob) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data, ok := f.payloads[job.ID]
	if !ok {
		return nil, domain.WrapError(domain.ErrPayloadUnavailable, "fake payload store", fmt.Errorf("job %s", job.ID))
	}
	return data, nil
}

func (f *payloadFake) Discard(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.payloads, jobID)
	f.discards++
	return nil
}

// parserFake parses every payload into a fixed row set.
type parserFake struct {
	name     string
	rows     []domain.StatementRow
	parseErr error
}

func (p *parserFake) Name() string { return p.name }

func (p *parserFake) Detect([]byte, string) bool { return true }

func (p *parserFake) Parse([]byte) ([]domain.StatementRow, error) {
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	return p.rows, nil
}

type resolverFake struct {
	parser ports.StatementParser
}

func (f *resolverFake) ResolveParser(data []byte, filename string) (ports.StatementParser, error) {
	if f.parser == nil {
		return nil, domain.WrapError(domain.ErrNoParserMatched, "fake resolver", fmt.Errorf("no parser claims %q", filename))
	}
	return f.parser, nil
}

// providerFake answers each CategorizeBatch call from a scripted queue.
type providerFake struct {
	mu        sync.Mutex
	calls     int
	responses []func(batch []domain.Transaction) ([]domain.CategorySuggestion, error)
	answer    string
	answerErr error
}

func (f *providerFake) Name() string { return "fake" }

func (f *providerFake) CategorizeBatch(_ context.Context, batch []domain.Transaction) ([]domain.CategorySuggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	if call < len(f.responses) {
		return f.responses[call](batch)
	}
	return nil, nil
}

func (f *providerFake) AnswerQuery(_ context.Context, _ string, _ *domain.FinancialContext) (string, error) {
	if f.answerErr != nil {
		return "", f.answerErr
	}
	return f.answer, nil
}

// suggestAll maps every transaction in the batch onto one category name.
func suggestAll(category string) func(batch []domain.Transaction) ([]domain.CategorySuggestion, error) {
	return func(batch []domain.Transaction) ([]domain.CategorySuggestion, error) {
		out := make([]domain.CategorySuggestion, 0, len(batch))
		for _, txn := range batch {
			out = append(out, domain.CategorySuggestion{
				TransactionID: txn.ID,
				CategoryName:  category,
				Confidence:    0.9,
			})
		}
		return out, nil
	}
}

func pendingJob(id, owner string) *domain.ImportJob {
	now := time.Now().UTC()
	return &domain.ImportJob{
		ID:        id,
		OwnerID:   owner,
		Filename:  "statement.csv",
		Origin:    domain.OriginUpload,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
