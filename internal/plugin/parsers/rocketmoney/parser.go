package rocketmoney

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearthfin/hearth/internal/core/domain"
)

const Name = "rocket_money"

const dateLayout = "2006-01-02"

// expectedColumns is the Rocket Money CSV export header. Detection
// fingerprints the first six columns so renamed trailing columns in newer
// exports do not break recognition.
var expectedColumns = []string{
	"Date", "Original Date", "Account Type", "Account Name", "Account Number",
	"Institution Name", "Name", "Custom Name", "Amount", "Description",
	"Category", "Note", "Ignored From", "Tax Deductible", "Transaction Tags",
}

var accountTypes = map[string]domain.AccountType{
	"Cash":        domain.AccountChecking,
	"Credit Card": domain.AccountCreditCard,
	"Savings":     domain.AccountSavings,
	"Brokerage":   domain.AccountBrokerage,
	"Retirement":  domain.AccountRetirement,
	"Loan":        domain.AccountLoan,
}

// transferCategories mark rows that move money between the holder's own
// accounts rather than spend it.
var transferCategories = map[string]bool{
	"Credit Card Payment": true,
	"Internal Transfers":  true,
	"Savings Transfer":    true,
}

type Parser struct{}

func New() *Parser { return &Parser{} }

func (p *Parser) Name() string { return Name }

func (p *Parser) Detect(data []byte, filename string) bool {
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return false
	}
	line, _, _ := bytes.Cut(data, []byte("\n"))
	fields := strings.Split(strings.TrimSpace(string(line)), ",")
	if len(fields) < 6 {
		return false
	}
	for i := 0; i < 6; i++ {
		if strings.TrimSpace(fields[i]) != expectedColumns[i] {
			return false
		}
	}
	return true
}

func (p *Parser) Parse(data []byte) ([]domain.StatementRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, domain.WrapError(domain.ErrParseFailed, "read rocket money csv", err)
	}
	if len(records) == 0 {
		return nil, domain.WrapError(domain.ErrParseFailed, "read rocket money csv", fmt.Errorf("empty file"))
	}

	col := headerIndex(records[0])
	rows := make([]domain.StatementRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		row, err := parseRecord(col, rec)
		if err != nil {
			return nil, domain.WrapError(domain.ErrParseFailed, "parse rocket money csv", fmt.Errorf("row %d: %w", i+2, err))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	return idx
}

func field(col map[string]int, rec []string, name string) string {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseRecord(col map[string]int, rec []string) (domain.StatementRow, error) {
	date, err := time.Parse(dateLayout, field(col, rec, "Date"))
	if err != nil {
		return domain.StatementRow{}, fmt.Errorf("parsing date %q: %w", field(col, rec, "Date"), err)
	}

	var originalDate *time.Time
	if raw := field(col, rec, "Original Date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return domain.StatementRow{}, fmt.Errorf("parsing original date %q: %w", raw, err)
		}
		originalDate = &parsed
	}

	// Unparseable amounts become zero instead of failing the whole file.
	// Rocket Money occasionally exports blank amounts for pending rows.
	var amountCents int64
	if raw := field(col, rec, "Amount"); raw != "" {
		if amount, err := decimal.NewFromString(raw); err == nil {
			amountCents = amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
		}
	}

	accountType, ok := accountTypes[field(col, rec, "Account Type")]
	if !ok {
		accountType = domain.AccountChecking
	}

	var tags []string
	if raw := field(col, rec, "Transaction Tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	var taxDeductible bool
	switch strings.ToLower(field(col, rec, "Tax Deductible")) {
	case "true", "yes", "1":
		taxDeductible = true
	}

	category := field(col, rec, "Category")
	return domain.StatementRow{
		Date:            date,
		OriginalDate:    originalDate,
		AccountType:     accountType,
		AccountName:     field(col, rec, "Account Name"),
		AccountLast4:    last4(field(col, rec, "Account Number")),
		InstitutionName: field(col, rec, "Institution Name"),
		MerchantName:    field(col, rec, "Name"),
		CustomName:      field(col, rec, "Custom Name"),
		AmountCents:     amountCents,
		Description:     field(col, rec, "Description"),
		CategoryName:    category,
		Note:            field(col, rec, "Note"),
		IsTransfer:      transferCategories[category],
		TaxDeductible:   taxDeductible,
		Tags:            tags,
	}, nil
}

func last4(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}
