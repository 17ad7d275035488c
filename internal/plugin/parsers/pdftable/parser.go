package pdftable

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/shopspring/decimal"

	"github.com/hearthfin/hearth/internal/core/domain"
)

const Name = "pdf_table"

var pdfMagic = []byte("%PDF-")

// linePattern matches one statement line: a date, free-form description and a
// trailing amount. Covers the common US bank statement layouts.
var linePattern = regexp.MustCompile(
	`^(\d{2}/\d{2}/\d{4}|\d{4}-\d{2}-\d{2})\s+(.+?)\s+(\(?-?\$?[\d,]+\.\d{2}\)?)$`)

var dateLayouts = []string{"01/02/2006", "2006-01-02"}

type Parser struct{}

func New() *Parser { return &Parser{} }

func (p *Parser) Name() string { return Name }

func (p *Parser) Detect(data []byte, filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf") && bytes.HasPrefix(data, pdfMagic)
}

func (p *Parser) Parse(data []byte) (rows []domain.StatementRow, err error) {
	// The pdf library panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = domain.WrapError(domain.ErrParseFailed, "read pdf", fmt.Errorf("malformed document: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrParseFailed, "read pdf", err)
	}
	text, err := reader.GetPlainText()
	if err != nil {
		return nil, domain.WrapError(domain.ErrParseFailed, "extract pdf text", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, text); err != nil {
		return nil, domain.WrapError(domain.ErrParseFailed, "extract pdf text", err)
	}

	rows, err = scanLines(buf.String())
	if err != nil {
		return nil, domain.WrapError(domain.ErrParseFailed, "parse pdf statement", err)
	}
	return rows, nil
}

func scanLines(text string) ([]domain.StatementRow, error) {
	var rows []domain.StatementRow
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		date, err := parseDate(m[1])
		if err != nil {
			continue
		}
		amountCents, err := parseAmount(m[3])
		if err != nil {
			continue
		}
		rows = append(rows, domain.StatementRow{
			Date:            date,
			AccountType:     domain.AccountChecking,
			AccountName:     "PDF Statement",
			InstitutionName: "Manual Import",
			AmountCents:     amountCents,
			Description:     strings.Join(strings.Fields(m[2]), " "),
		})
	}
	if len(rows) == 0 {
		return nil, errors.New("no transaction lines recognized")
	}
	return rows, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q: unrecognized format", raw)
}

func parseAmount(raw string) (int64, error) {
	negative := strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")")
	cleaned := strings.NewReplacer("(", "", ")", "", "$", "", ",", "").Replace(raw)
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", raw, err)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
