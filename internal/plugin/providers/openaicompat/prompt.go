package openaicompat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hearthfin/hearth/internal/core/domain"
)

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

func buildQueryPrompt(question string, fc *domain.FinancialContext) (string, error) {
	contextJSON, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal financial context: %w", err)
	}

	return fmt.Sprintf(`You are a personal finance assistant. Answer the user's question using only the financial data below. Amounts are in cents. Be concise and concrete. If the data cannot answer the question, say so directly.

Financial data:
%s

Question:
%s`, contextJSON, question), nil
}

type suggestionItem struct {
	Index              int     `json:"index"`
	Category           string  `json:"category"`
	Confidence         float64 `json:"confidence"`
	MerchantNormalized string  `json:"merchant_normalized"`
}

// decodeSuggestions parses the model reply and drops items the model
// hallucinated: out-of-range indexes and unknown categories fall back rather
// than fail the batch.
func decodeSuggestions(raw string, batch []domain.Transaction) ([]domain.CategorySuggestion, error) {
	cleaned := extractJSONArray(raw)
	var items []suggestionItem
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
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

// normalizeCategory maps a model answer onto the builtin taxonomy, case
// insensitively. Anything outside it becomes Uncategorized.
func normalizeCategory(name string) string {
	trimmed := strings.TrimSpace(name)
	for _, known := range domain.BuiltinCategories {
		if strings.EqualFold(trimmed, known) {
			return known
		}
	}
	return domain.UncategorizedName
}

// extractJSONArray strips markdown code fences and any prose around the
// outermost JSON array.
func extractJSONArray(raw string) string {
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
