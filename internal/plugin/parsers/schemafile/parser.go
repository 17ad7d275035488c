package schemafile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/hearthfin/hearth/internal/core/domain"
)

const Name = "schema_file"

const defaultDateLayout = "2006-01-02"

// Schema describes one bank's statement format declaratively. Dropping a
// YAML file into the schema directory teaches the importer a new format
// without a rebuild.
type Schema struct {
	Name      string            `yaml:"name"`
	Detect    DetectRules       `yaml:"detect"`
	Columns   map[string]string `yaml:"columns"`
	Transform TransformRules    `yaml:"transform"`
	Defaults  map[string]string `yaml:"defaults"`

	headerRe   *regexp.Regexp
	filenameRe *regexp.Regexp
}

// DetectRules are ANDed: every configured rule must pass. At least one must
// be configured or the schema is rejected at load time.
type DetectRules struct {
	FileExtensions  []string `yaml:"file_extension"`
	HeaderContains  []string `yaml:"header_contains"`
	HeaderPattern   string   `yaml:"header_pattern"`
	FilenamePattern string   `yaml:"filename_pattern"`
}

type TransformRules struct {
	Delimiter        string `yaml:"delimiter"`
	DateLayout       string `yaml:"date_layout"`
	AmountMultiplier int64  `yaml:"amount_multiplier"`
}

type Parser struct {
	schemas []*Schema
}

// New loads every .yaml/.yml schema under dir. A schema that fails to load
// is logged and skipped so one bad file does not disable the rest.
func New(dir string) (*Parser, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}

	p := &Parser{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		schema, err := loadSchema(path)
		if err != nil {
			slog.Warn("statement_schema_skipped", "path", path, "error", err)
			continue
		}
		p.schemas = append(p.schemas, schema)
	}
	return p, nil
}

func loadSchema(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Schema
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.Detect.HeaderPattern != "" {
		if s.headerRe, err = regexp.Compile(s.Detect.HeaderPattern); err != nil {
			return nil, fmt.Errorf("header_pattern: %w", err)
		}
	}
	if s.Detect.FilenamePattern != "" {
		if s.filenameRe, err = regexp.Compile("(?i)" + s.Detect.FilenamePattern); err != nil {
			return nil, fmt.Errorf("filename_pattern: %w", err)
		}
	}
	return &s, nil
}

func (s *Schema) validate() error {
	if s.Name == "" {
		return errors.New("schema has no name")
	}
	d := s.Detect
	if len(d.FileExtensions) == 0 && len(d.HeaderContains) == 0 && d.HeaderPattern == "" && d.FilenamePattern == "" {
		return errors.New("schema has no detection rules")
	}
	for _, required := range []string{"date", "description", "amount"} {
		if s.Columns[required] == "" {
			return fmt.Errorf("columns is missing the %s mapping", required)
		}
	}
	return nil
}

func (p *Parser) Name() string { return Name }

func (p *Parser) SchemaNames() []string {
	names := make([]string, len(p.schemas))
	for i, s := range p.schemas {
		names[i] = s.Name
	}
	return names
}

func (p *Parser) Detect(data []byte, filename string) bool {
	for _, s := range p.schemas {
		if s.matches(data, filename) {
			return true
		}
	}
	return false
}

func (s *Schema) matches(data []byte, filename string) bool {
	if len(s.Detect.FileExtensions) > 0 {
		lower := strings.ToLower(filename)
		ok := false
		for _, ext := range s.Detect.FileExtensions {
			if strings.HasSuffix(lower, strings.ToLower(ext)) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if s.filenameRe != nil && !s.filenameRe.MatchString(filepath.Base(filename)) {
		return false
	}
	return s.matchesContent(data)
}

func (s *Schema) matchesContent(data []byte) bool {
	header, _, _ := bytes.Cut(data, []byte("\n"))
	line := strings.TrimSpace(string(header))
	for _, want := range s.Detect.HeaderContains {
		if !strings.Contains(line, want) {
			return false
		}
	}
	if s.headerRe != nil && !s.headerRe.MatchString(line) {
		return false
	}
	return true
}

// Parse selects a schema by content rules alone since the filename is gone by
// parse time, then applies its column mapping.
func (p *Parser) Parse(data []byte) ([]domain.StatementRow, error) {
	var lastErr error
	for _, s := range p.schemas {
		if !s.matchesContent(data) {
			continue
		}
		rows, err := s.parse(data)
		if err != nil {
			lastErr = err
			continue
		}
		return rows, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, domain.WrapError(domain.ErrParseFailed, "parse with schema", errors.New("no schema matched the file content"))
}

func (s *Schema) parse(data []byte) ([]domain.StatementRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	if s.Transform.Delimiter != "" {
		reader.Comma = rune(s.Transform.Delimiter[0])
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, domain.WrapError(domain.ErrParseFailed, "read csv for schema "+s.Name, err)
	}
	if len(records) < 2 {
		return nil, domain.WrapError(domain.ErrParseFailed, "read csv for schema "+s.Name, errors.New("no data rows"))
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[strings.TrimSpace(name)] = i
	}
	rows := make([]domain.StatementRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		row, err := s.parseRecord(col, rec)
		if err != nil {
			return nil, domain.WrapError(domain.ErrParseFailed, "parse with schema "+s.Name, fmt.Errorf("row %d: %w", i+2, err))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Schema) value(col map[string]int, rec []string, field string) string {
	name, mapped := s.Columns[field]
	if mapped {
		if i, ok := col[name]; ok && i < len(rec) {
			if v := strings.TrimSpace(rec[i]); v != "" {
				return v
			}
		}
	}
	return s.Defaults[field]
}

func (s *Schema) parseRecord(col map[string]int, rec []string) (domain.StatementRow, error) {
	layout := s.Transform.DateLayout
	if layout == "" {
		layout = defaultDateLayout
	}

	rawDate := s.value(col, rec, "date")
	date, err := parseDate(rawDate, layout)
	if err != nil {
		return domain.StatementRow{}, err
	}

	var originalDate *time.Time
	if raw := s.value(col, rec, "original_date"); raw != "" {
		parsed, err := parseDate(raw, layout)
		if err != nil {
			return domain.StatementRow{}, err
		}
		originalDate = &parsed
	}

	amountCents, err := s.parseAmount(s.value(col, rec, "amount"))
	if err != nil {
		return domain.StatementRow{}, err
	}

	return domain.StatementRow{
		Date:            date,
		OriginalDate:    originalDate,
		AccountType:     domain.ParseAccountType(s.value(col, rec, "account_type")),
		AccountName:     s.value(col, rec, "account_name"),
		AccountLast4:    last4(s.value(col, rec, "account_last4")),
		InstitutionName: s.value(col, rec, "institution_name"),
		MerchantName:    s.value(col, rec, "merchant"),
		CustomName:      s.value(col, rec, "custom_name"),
		AmountCents:     amountCents,
		Description:     s.value(col, rec, "description"),
		CategoryName:    s.value(col, rec, "category"),
		Note:            s.value(col, rec, "note"),
	}, nil
}

func (s *Schema) parseAmount(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.New("parsing amount: empty cell")
	}
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(raw)
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", raw, err)
	}
	multiplier := s.Transform.AmountMultiplier
	if multiplier == 0 {
		multiplier = 100
	}
	return amount.Mul(decimal.NewFromInt(multiplier)).Round(0).IntPart(), nil
}

func parseDate(raw, layout string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("parsing date: empty cell")
	}
	if d, err := time.Parse(layout, raw); err == nil {
		return d, nil
	}
	if d, err := time.Parse(defaultDateLayout, raw); err == nil {
		return d, nil
	}
	return time.Time{}, fmt.Errorf("parsing date %q with layout %q", raw, layout)
}

func last4(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}
