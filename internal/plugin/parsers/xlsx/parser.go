package xlsx

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	excelize "github.com/xuri/excelize/v2"

	"github.com/hearthfin/hearth/internal/core/domain"
)

const Name = "xlsx_table"

// zipMagic is the local-file-header signature every xlsx starts with.
var zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	"2006-01-02 15:04:05",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// headerAliases maps the fields we extract to the spreadsheet column names
// that commonly carry them. Matching is case-insensitive.
var headerAliases = map[string][]string{
	"date":        {"date", "transaction date", "posted date", "posting date"},
	"description": {"description", "details", "memo", "transaction"},
	"amount":      {"amount", "debit/credit", "value"},
	"merchant":    {"merchant", "payee", "name", "vendor"},
	"account":     {"account", "account name"},
	"institution": {"institution", "bank", "institution name"},
	"category":    {"category"},
	"note":        {"note", "notes"},
}

type Parser struct{}

func New() *Parser { return &Parser{} }

func (p *Parser) Name() string { return Name }

func (p *Parser) Detect(data []byte, filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xlsx") && bytes.HasPrefix(data, zipMagic)
}

func (p *Parser) Parse(data []byte) ([]domain.StatementRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrParseFailed, "open xlsx", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.WrapError(domain.ErrParseFailed, "open xlsx", errors.New("workbook has no sheets"))
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, domain.WrapError(domain.ErrParseFailed, "read xlsx sheet", err)
	}
	if len(records) < 2 {
		return nil, domain.WrapError(domain.ErrParseFailed, "read xlsx sheet", errors.New("sheet has no data rows"))
	}

	col := mapHeader(records[0])
	for _, required := range []string{"date", "description", "amount"} {
		if _, ok := col[required]; !ok {
			return nil, domain.WrapError(domain.ErrParseFailed, "read xlsx sheet",
				fmt.Errorf("header is missing a %s column, got %v", required, records[0]))
		}
	}

	rows := make([]domain.StatementRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if blankRecord(rec) {
			continue
		}
		row, err := parseRecord(col, rec)
		if err != nil {
			return nil, domain.WrapError(domain.ErrParseFailed, "parse xlsx sheet", fmt.Errorf("row %d: %w", i+2, err))
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, domain.WrapError(domain.ErrParseFailed, "parse xlsx sheet", errors.New("no data rows"))
	}
	return rows, nil
}

func mapHeader(header []string) map[string]int {
	col := make(map[string]int)
	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		for target, aliases := range headerAliases {
			if _, taken := col[target]; taken {
				continue
			}
			for _, alias := range aliases {
				if name == alias {
					col[target] = i
					break
				}
			}
		}
	}
	return col
}

func blankRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cell(col map[string]int, rec []string, name string) string {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseRecord(col map[string]int, rec []string) (domain.StatementRow, error) {
	date, err := parseDate(cell(col, rec, "date"))
	if err != nil {
		return domain.StatementRow{}, err
	}
	amountCents, err := parseAmount(cell(col, rec, "amount"))
	if err != nil {
		return domain.StatementRow{}, err
	}

	institution := cell(col, rec, "institution")
	if institution == "" {
		institution = "Manual Import"
	}
	account := cell(col, rec, "account")
	if account == "" {
		account = "Imported"
	}

	return domain.StatementRow{
		Date:            date,
		AccountType:     domain.AccountChecking,
		AccountName:     account,
		InstitutionName: institution,
		MerchantName:    cell(col, rec, "merchant"),
		AmountCents:     amountCents,
		Description:     cell(col, rec, "description"),
		CategoryName:    cell(col, rec, "category"),
		Note:            cell(col, rec, "note"),
	}, nil
}

// parseDate tries the layouts excelize produces for formatted date cells.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("parsing date: empty cell")
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q: unrecognized format", raw)
}

func parseAmount(raw string) (int64, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(raw)
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + strings.Trim(cleaned, "()")
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", raw, err)
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
