package ofx

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearthfin/hearth/internal/core/domain"
)

const Name = "ofx"

// OFX 1.x is SGML, not XML: tags are uppercase, the value follows the opening
// tag on the same line and closing tags are optional. encoding/xml chokes on
// that, so the parser walks the tag soup directly and collects STMTTRN blocks.

type Parser struct{}

func New() *Parser { return &Parser{} }

func (p *Parser) Name() string { return Name }

func (p *Parser) Detect(data []byte, filename string) bool {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".ofx") || strings.HasSuffix(lower, ".qfx") {
		return true
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(head, []byte("OFXHEADER")) || bytes.Contains(head, []byte("<OFX>"))
}

func (p *Parser) Parse(data []byte) ([]domain.StatementRow, error) {
	doc := string(data)

	institution := tagValue(doc, "ORG")
	if institution == "" {
		institution = "Unknown Institution"
	}
	acctLast4 := last4(tagValue(doc, "ACCTID"))
	acctType := accountType(doc)

	blocks := transactionBlocks(doc)
	if len(blocks) == 0 {
		return nil, domain.WrapError(domain.ErrParseFailed, "parse ofx", errors.New("no STMTTRN records found"))
	}

	accountName := accountLabel(acctType, acctLast4)
	rows := make([]domain.StatementRow, 0, len(blocks))
	for i, block := range blocks {
		row, err := parseTransaction(block)
		if err != nil {
			return nil, domain.WrapError(domain.ErrParseFailed, "parse ofx", fmt.Errorf("record %d: %w", i+1, err))
		}
		row.InstitutionName = institution
		row.AccountName = accountName
		row.AccountLast4 = acctLast4
		row.AccountType = acctType
		rows = append(rows, row)
	}
	return rows, nil
}

func accountType(doc string) domain.AccountType {
	if strings.Contains(doc, "<CCSTMTRS>") || strings.Contains(doc, "<CCACCTFROM>") {
		return domain.AccountCreditCard
	}
	switch strings.ToUpper(tagValue(doc, "ACCTTYPE")) {
	case "SAVINGS":
		return domain.AccountSavings
	case "CREDITLINE":
		return domain.AccountCreditCard
	default:
		return domain.AccountChecking
	}
}

func accountLabel(t domain.AccountType, l4 string) string {
	var label string
	switch t {
	case domain.AccountCreditCard:
		label = "Credit Card"
	case domain.AccountSavings:
		label = "Savings"
	default:
		label = "Checking"
	}
	if l4 == "" {
		return label
	}
	return fmt.Sprintf("%s ****%s", label, l4)
}

func parseTransaction(block string) (domain.StatementRow, error) {
	posted := tagValue(block, "DTPOSTED")
	if len(posted) < 8 {
		return domain.StatementRow{}, fmt.Errorf("parsing date %q: too short", posted)
	}
	date, err := time.Parse("20060102", posted[:8])
	if err != nil {
		return domain.StatementRow{}, fmt.Errorf("parsing date %q: %w", posted, err)
	}

	rawAmount := tagValue(block, "TRNAMT")
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return domain.StatementRow{}, fmt.Errorf("parsing amount %q: %w", rawAmount, err)
	}

	name := tagValue(block, "NAME")
	memo := tagValue(block, "MEMO")
	description := name
	if memo != "" && !strings.EqualFold(memo, name) {
		if description == "" {
			description = memo
		} else {
			description = description + " " + memo
		}
	}

	return domain.StatementRow{
		Date:         date,
		MerchantName: name,
		AmountCents:  amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Description:  description,
		IsTransfer:   strings.EqualFold(tagValue(block, "TRNTYPE"), "XFER"),
	}, nil
}

// transactionBlocks returns the content between each <STMTTRN> and its
// closing tag. Files without closing tags split on the next opening tag.
func transactionBlocks(doc string) []string {
	var blocks []string
	rest := doc
	for {
		start := strings.Index(rest, "<STMTTRN>")
		if start < 0 {
			return blocks
		}
		rest = rest[start+len("<STMTTRN>"):]
		end := strings.Index(rest, "</STMTTRN>")
		next := strings.Index(rest, "<STMTTRN>")
		if end < 0 || (next >= 0 && next < end) {
			end = next
		}
		if end < 0 {
			blocks = append(blocks, rest)
			return blocks
		}
		blocks = append(blocks, rest[:end])
		rest = rest[end:]
	}
}

// tagValue returns the text after the first <TAG> up to the next tag or end
// of line, trimmed.
func tagValue(doc, tag string) string {
	open := "<" + tag + ">"
	start := strings.Index(doc, open)
	if start < 0 {
		return ""
	}
	rest := doc[start+len(open):]
	end := len(rest)
	if i := strings.IndexAny(rest, "<\r\n"); i >= 0 {
		end = i
	}
	return strings.TrimSpace(rest[:end])
}

func last4(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}
