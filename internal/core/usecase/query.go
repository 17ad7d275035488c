package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/core/ports"
)

const defaultRecentLimit = 20

// FinanceQueryUseCase answers free-text questions about an owner's finances
// by assembling a context snapshot and delegating to the provider.
type FinanceQueryUseCase struct {
	ledger      ports.LedgerStore
	provider    ports.CategorizationProvider
	recentLimit int
}

func NewFinanceQueryUseCase(ledger ports.LedgerStore, provider ports.CategorizationProvider, recentLimit int) *FinanceQueryUseCase {
	if recentLimit <= 0 {
		recentLimit = defaultRecentLimit
	}
	return &FinanceQueryUseCase{
		ledger:      ledger,
		provider:    provider,
		recentLimit: recentLimit,
	}
}

func (uc *FinanceQueryUseCase) Ask(ctx context.Context, ownerID, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "answer finance question", errors.New("empty question"))
	}
	if ownerID == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "answer finance question", errors.New("missing owner"))
	}

	fc, err := uc.ledger.FinancialContext(ctx, ownerID, uc.recentLimit)
	if err != nil {
		return "", fmt.Errorf("assemble financial context: %w", err)
	}

	answer, err := uc.provider.AnswerQuery(ctx, question, fc)
	if err != nil {
		return "", fmt.Errorf("answer question: %w", err)
	}
	return answer, nil
}
