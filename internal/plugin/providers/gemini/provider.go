package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hearthfin/hearth/internal/core/domain"
)

const Name = "gemini"

const defaultModel = "gemini-2.0-flash"

type Provider struct {
	client *genai.Client
	model  string
}

// New builds a Gemini-backed provider. The SDK reads GEMINI_API_KEY from the
// environment when apiKey is empty.
func New(ctx context.Context, apiKey, model string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: "v1",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = defaultModel
	}
	return &Provider{client: client, model: model}, nil
}

func (p *Provider) Name() string { return Name }

func (p *Provider) CategorizeBatch(ctx context.Context, batch []domain.Transaction) ([]domain.CategorySuggestion, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	raw, err := p.generate(ctx, buildBatchPrompt(batch))
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderFailed, "categorize batch", err)
	}
	suggestions, err := decodeSuggestions(raw, batch)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderFailed, "categorize batch", err)
	}
	return suggestions, nil
}

func (p *Provider) AnswerQuery(ctx context.Context, question string, fc *domain.FinancialContext) (string, error) {
	contextJSON, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return "", domain.WrapError(domain.ErrProviderFailed, "answer query", err)
	}
	prompt := fmt.Sprintf(`You are a personal finance assistant. Answer the user's question using only the financial data below. Amounts are in cents. Be concise and concrete. If the data cannot answer the question, say so directly.

Financial data:
%s

Question:
%s`, contextJSON, question)

	answer, err := p.generate(ctx, prompt)
	if err != nil {
		return "", domain.WrapError(domain.ErrProviderFailed, "answer query", err)
	}
	return strings.TrimSpace(answer), nil
}

func (p *Provider) generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("generate content: empty response")
	}
	return text, nil
}

func buildBatchPrompt(batch []domain.Transaction) string {
	var lines strings.Builder
	for i, txn := range batch {
		lines.WriteString(fmt.Sprintf("%d. description=%q merchant=%q amount_cents=%d\n",
			i, txn.Description, txn.MerchantName, txn.AmountCents))
	}

	return fmt.Sprintf(`You are a financial transaction categorizer. Categorize each transaction into exactly one of these categories:

%s

Transactions:
%s
Respond with a JSON array, one object per transaction:
[{"index": <number>, "category": "<category name>", "confidence": <0.0-1.0>, "merchant_normalized": "<cleaned merchant name>"}]

Rules:
- Use ONLY categories from the list above
- confidence reflects how certain you are
- merchant_normalized is the cleaned-up merchant name (e.g. "AMZN MKTP US*12345" becomes "Amazon")
- Respond with ONLY the JSON array, no other text`,
		strings.Join(domain.BuiltinCategories, ", "), lines.String())
}

type suggestionItem struct {
	Index              int     `json:"index"`
	Category           string  `json:"category"`
	Confidence         float64 `json:"confidence"`
	MerchantNormalized string  `json:"merchant_normalized"`
}

func decodeSuggestions(raw string, batch []domain.Transaction) ([]domain.CategorySuggestion, error) {
	var items []suggestionItem
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &items); err != nil {
		return nil, fmt.Errorf("parse suggestions json: %w", err)
	}

	suggestions := make([]domain.CategorySuggestion, 0, len(items))
	for _, item := range items {
		if item.Index < 0 || item.Index >= len(batch) {
			continue
		}
		suggestions = append(suggestions, domain.CategorySuggestion{
			TransactionID:      batch[item.Index].ID,
			CategoryName:       normalizeCategory(item.Category),
			Confidence:         item.Confidence,
			NormalizedMerchant: strings.TrimSpace(item.MerchantNormalized),
		})
	}
	return suggestions, nil
}

func normalizeCategory(name string) string {
	trimmed := strings.TrimSpace(name)
	for _, known := range domain.BuiltinCategories {
		if strings.EqualFold(trimmed, known) {
			return known
		}
	}
	return domain.UncategorizedName
}

// cleanModelJSON strips the markdown fences Gemini wraps JSON in and trims
// prose around the outermost array.
func cleanModelJSON(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		if i := strings.Index(cleaned, "\n"); i >= 0 {
			cleaned = cleaned[i+1:]
		}
		if i := strings.LastIndex(cleaned, "```"); i >= 0 {
			cleaned = cleaned[:i]
		}
		cleaned = strings.TrimSpace(cleaned)
	}
	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start >= 0 && end > start {
		return cleaned[start : end+1]
	}
	return cleaned
}
