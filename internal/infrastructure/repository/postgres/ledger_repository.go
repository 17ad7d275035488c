package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hearthfin/hearth/internal/core/domain"
)

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026031002)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS institutions (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL DEFAULT '',
	institution_id TEXT NOT NULL REFERENCES institutions(id),
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	number_last4 TEXT NOT NULL DEFAULT '',
	balance_cents BIGINT NOT NULL DEFAULT 0,
	UNIQUE (institution_id, name, number_last4)
);

CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	is_system BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	posted_at TIMESTAMPTZ NOT NULL,
	original_date TIMESTAMPTZ,
	amount_cents BIGINT NOT NULL,
	description TEXT NOT NULL,
	original_description TEXT NOT NULL DEFAULT '',
	merchant_name TEXT NOT NULL DEFAULT '',
	category_id TEXT REFERENCES categories(id),
	custom_name TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL DEFAULT '',
	is_transfer BOOLEAN NOT NULL DEFAULT FALSE,
	is_tax_deductible BOOLEAN NOT NULL DEFAULT FALSE,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	import_job_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_match ON transactions(account_id, posted_at, amount_cents);
CREATE INDEX IF NOT EXISTS idx_transactions_uncategorized ON transactions(import_job_id) WHERE category_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_transactions_category ON transactions(category_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// EnsureInstitution resolves a name to an id, inserting on first sight. The
// unique constraint arbitrates concurrent imports; the loser of the insert
// race re-reads the winner's row.
func (r *LedgerRepository) EnsureInstitution(ctx context.Context, name string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
INSERT INTO institutions (id, name)
VALUES ($1, $2)
ON CONFLICT (name) DO NOTHING
RETURNING id
`, uuid.NewString(), name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("insert institution: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `SELECT id FROM institutions WHERE name = $1`, name).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("select institution: %w", err)
	}
	return id, nil
}

func (r *LedgerRepository) EnsureAccount(ctx context.Context, account domain.Account) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
INSERT INTO accounts (id, owner_id, institution_id, name, type, number_last4, balance_cents)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (institution_id, name, number_last4) DO NOTHING
RETURNING id
`, uuid.NewString(), account.OwnerID, account.InstitutionID, account.Name,
		string(account.Type), account.NumberLast4, account.BalanceCents).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("insert account: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
SELECT id FROM accounts
WHERE institution_id = $1 AND name = $2 AND number_last4 = $3
`, account.InstitutionID, account.Name, account.NumberLast4).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("select account: %w", err)
	}
	return id, nil
}

func (r *LedgerRepository) EnsureCategory(ctx context.Context, name string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
INSERT INTO categories (id, name)
VALUES ($1, $2)
ON CONFLICT (name) DO NOTHING
RETURNING id
`, uuid.NewString(), name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("insert category: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = $1`, name).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("select category: %w", err)
	}
	return id, nil
}

func (r *LedgerRepository) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	tagsJSON, err := json.Marshal(txn.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO transactions (
	id, account_id, posted_at, original_date, amount_cents,
	description, original_description, merchant_name, category_id,
	custom_name, note, is_transfer, is_tax_deductible, tags, import_job_id, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`,
		txn.ID, txn.AccountID, txn.Date, txn.OriginalDate, txn.AmountCents,
		txn.Description, txn.OriginalDescription, txn.MerchantName, nullIfEmpty(txn.CategoryID),
		txn.CustomName, txn.Note, txn.IsTransfer, txn.TaxDeductible, tagsJSON, txn.ImportJobID, txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *LedgerRepository) FindMatch(ctx context.Context, accountID string, date time.Time, amountCents int64, description string) (string, bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
SELECT id FROM transactions
WHERE account_id = $1 AND posted_at = $2 AND amount_cents = $3 AND description = $4
LIMIT 1
`, accountID, date, amountCents, description).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find matching transaction: %w", err)
	}
	return id, true, nil
}

const transactionColumns = `
id, account_id, posted_at, original_date, amount_cents,
description, original_description, merchant_name, category_id,
custom_name, note, is_transfer, is_tax_deductible, tags, import_job_id, created_at
`

func (r *LedgerRepository) TransactionsByIDs(ctx context.Context, ids []string) ([]domain.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT `+transactionColumns+`
FROM transactions
WHERE id IN (`+strings.Join(placeholders, ",")+`)
ORDER BY created_at
`, args...)
	if err != nil {
		return nil, fmt.Errorf("select transactions by ids: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0, len(ids))
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *LedgerRepository) UncategorizedByJob(ctx context.Context, jobID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id FROM transactions
WHERE import_job_id = $1 AND category_id IS NULL
ORDER BY created_at
`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list uncategorized transactions: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan transaction id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction ids: %w", err)
	}
	return out, nil
}

func (r *LedgerRepository) Categories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, is_system FROM categories ORDER BY name
`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Category, 0)
	for rows.Next() {
		var cat domain.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.IsSystem); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

func (r *LedgerRepository) AssignCategory(ctx context.Context, txnID, categoryID, normalizedMerchant string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE transactions
SET category_id = $2,
	merchant_name = CASE WHEN $3 = '' THEN merchant_name ELSE $3 END
WHERE id = $1
`, txnID, categoryID, normalizedMerchant)
	if err != nil {
		return fmt.Errorf("assign category: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign category rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction not found: id=%s", txnID)
	}
	return nil
}

func (r *LedgerRepository) SeedCategories(ctx context.Context, names []string) (int, error) {
	created := 0
	for _, name := range names {
		result, err := r.db.ExecContext(ctx, `
INSERT INTO categories (id, name, is_system)
VALUES ($1, $2, TRUE)
ON CONFLICT (name) DO NOTHING
`, uuid.NewString(), name)
		if err != nil {
			return created, fmt.Errorf("seed category %q: %w", name, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return created, fmt.Errorf("seed category rows affected: %w", err)
		}
		created += int(rows)
	}
	return created, nil
}

func (r *LedgerRepository) FinancialContext(ctx context.Context, ownerID string, recentLimit int) (*domain.FinancialContext, error) {
	fc := &domain.FinancialContext{}

	rows, err := r.db.QueryContext(ctx, `
SELECT t.posted_at, t.description, t.merchant_name, t.amount_cents, COALESCE(c.name, 'Uncategorized')
FROM transactions t
JOIN accounts a ON a.id = t.account_id
LEFT JOIN categories c ON c.id = t.category_id
WHERE a.owner_id = $1
ORDER BY t.posted_at DESC
LIMIT $2
`, ownerID, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("select recent transactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var postedAt time.Time
		var item domain.ContextTransaction
		if err := rows.Scan(&postedAt, &item.Description, &item.MerchantName, &item.AmountCents, &item.Category); err != nil {
			return nil, fmt.Errorf("scan recent transaction: %w", err)
		}
		item.Date = postedAt.Format("2006-01-02")
		fc.RecentTransactions = append(fc.RecentTransactions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent transactions: %w", err)
	}

	spendRows, err := r.db.QueryContext(ctx, `
SELECT COALESCE(c.name, 'Uncategorized'), SUM(-t.amount_cents), COUNT(*)
FROM transactions t
JOIN accounts a ON a.id = t.account_id
LEFT JOIN categories c ON c.id = t.category_id
WHERE a.owner_id = $1 AND t.amount_cents < 0 AND NOT t.is_transfer
GROUP BY 1
ORDER BY 2 DESC
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select spending by category: %w", err)
	}
	defer spendRows.Close()
	for spendRows.Next() {
		var item domain.CategorySpend
		if err := spendRows.Scan(&item.Category, &item.TotalCents, &item.Count); err != nil {
			return nil, fmt.Errorf("scan category spend: %w", err)
		}
		fc.SpendingByCategory = append(fc.SpendingByCategory, item)
	}
	if err := spendRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category spend: %w", err)
	}

	balanceRows, err := r.db.QueryContext(ctx, `
SELECT name, type, balance_cents FROM accounts WHERE owner_id = $1 ORDER BY name
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select account balances: %w", err)
	}
	defer balanceRows.Close()
	for balanceRows.Next() {
		var item domain.AccountBalance
		var accType string
		if err := balanceRows.Scan(&item.Name, &accType, &item.BalanceCents); err != nil {
			return nil, fmt.Errorf("scan account balance: %w", err)
		}
		item.Type = domain.AccountType(accType)
		fc.AccountBalances = append(fc.AccountBalances, item)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account balances: %w", err)
	}

	return fc, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type transactionScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row transactionScanner) (domain.Transaction, error) {
	var txn domain.Transaction
	var categoryID sql.NullString
	var tagsRaw []byte
	err := row.Scan(
		&txn.ID,
		&txn.AccountID,
		&txn.Date,
		&txn.OriginalDate,
		&txn.AmountCents,
		&txn.Description,
		&txn.OriginalDescription,
		&txn.MerchantName,
		&categoryID,
		&txn.CustomName,
		&txn.Note,
		&txn.IsTransfer,
		&txn.TaxDeductible,
		&tagsRaw,
		&txn.ImportJobID,
		&txn.CreatedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &txn.Tags); err != nil {
			return domain.Transaction{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	txn.CategoryID = categoryID.String
	return txn, nil
}
