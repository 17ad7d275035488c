package domain

import "time"

type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountBrokerage  AccountType = "brokerage"
	AccountRetirement AccountType = "retirement"
	AccountLoan       AccountType = "loan"
	AccountCash       AccountType = "cash"
)

// ParseAccountType maps a raw type label onto a known account type,
// defaulting to checking for anything unrecognized.
func ParseAccountType(raw string) AccountType {
	switch AccountType(raw) {
	case AccountChecking, AccountSavings, AccountCreditCard, AccountBrokerage, AccountRetirement, AccountLoan, AccountCash:
		return AccountType(raw)
	default:
		return AccountChecking
	}
}

type Institution struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Account struct {
	ID            string      `json:"id"`
	OwnerID       string      `json:"owner_id"`
	InstitutionID string      `json:"institution_id"`
	Name          string      `json:"name"`
	Type          AccountType `json:"type"`
	NumberLast4   string      `json:"number_last4,omitempty"`
	BalanceCents  int64       `json:"balance_cents"`
}

type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsSystem bool   `json:"is_system"`
}

// UncategorizedName is the sentinel category assigned to rows the pipeline
// could not classify.
const UncategorizedName = "Uncategorized"

// BuiltinCategories is the seed taxonomy. Providers prompt against it and
// fresh databases are seeded from it.
var BuiltinCategories = []string{
	"Dining & Drinks", "Software & Tech", "Shopping", "Entertainment & Rec.",
	"Auto & Transport", "Groceries", "Bills & Utilities", "Health & Wellness",
	"Home & Garden", "Income", "Travel & Vacation", "Medical", "Personal Care",
	"Education", "Pets", "Business", "Fees & Charges", "Legal",
	"Gifts & Donations", "Taxes", "Insurance", "Kids", "Cash & ATM",
	"Investments", "Savings Transfer", "Credit Card Payment",
	"Internal Transfers", "Subscriptions", UncategorizedName,
}

// StatementRow is one transaction candidate produced by a parser. It is
// transient: it either becomes a Transaction or is dropped as a duplicate.
type StatementRow struct {
	Date            time.Time
	OriginalDate    *time.Time
	AccountType     AccountType
	AccountName     string
	AccountLast4    string
	InstitutionName string
	MerchantName    string
	CustomName      string
	AmountCents     int64
	Description     string
	CategoryName    string
	Note            string
	IsTransfer      bool
	TaxDeductible   bool
	Tags            []string
}

type Transaction struct {
	ID                  string     `json:"id"`
	AccountID           string     `json:"account_id"`
	Date                time.Time  `json:"date"`
	OriginalDate        *time.Time `json:"original_date,omitempty"`
	AmountCents         int64      `json:"amount_cents"`
	Description         string     `json:"description"`
	OriginalDescription string     `json:"original_description,omitempty"`
	MerchantName        string     `json:"merchant_name,omitempty"`
	CategoryID          string     `json:"category_id,omitempty"`
	CustomName          string     `json:"custom_name,omitempty"`
	Note                string     `json:"note,omitempty"`
	IsTransfer          bool       `json:"is_transfer"`
	TaxDeductible       bool       `json:"is_tax_deductible"`
	Tags                []string   `json:"tags,omitempty"`
	ImportJobID         string     `json:"import_job_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// CategorySuggestion is one provider verdict for a transaction in a batch.
type CategorySuggestion struct {
	TransactionID      string  `json:"transaction_id"`
	CategoryName       string  `json:"category"`
	Confidence         float64 `json:"confidence"`
	NormalizedMerchant string  `json:"merchant_normalized,omitempty"`
}

// FinancialContext is the aggregate snapshot handed to a provider when
// answering free-text questions.
type FinancialContext struct {
	RecentTransactions []ContextTransaction `json:"recent_transactions"`
	SpendingByCategory []CategorySpend      `json:"spending_by_category"`
	AccountBalances    []AccountBalance     `json:"account_balances"`
}

type ContextTransaction struct {
	Date         string `json:"date"`
	Description  string `json:"description"`
	MerchantName string `json:"merchant_name,omitempty"`
	AmountCents  int64  `json:"amount_cents"`
	Category     string `json:"category"`
}

type CategorySpend struct {
	Category   string `json:"category"`
	TotalCents int64  `json:"total_cents"`
	Count      int    `json:"count"`
}

type AccountBalance struct {
	Name         string      `json:"name"`
	Type         AccountType `json:"type"`
	BalanceCents int64       `json:"balance_cents"`
}
