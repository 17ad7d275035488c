package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hearthfin/hearth/internal/core/domain"
)

func TestFinanceQueryAsk(t *testing.T) {
	ledger := newLedgerStoreFake()
	ledger.finContext = &domain.FinancialContext{
		SpendingByCategory: []domain.CategorySpend{{Category: "Groceries", TotalCents: 42000, Count: 7}},
	}
	provider := &providerFake{answer: "You spent $420.00 on groceries."}
	uc := NewFinanceQueryUseCase(ledger, provider, 0)

	answer, err := uc.Ask(context.Background(), "owner-1", "How much did I spend on groceries?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer != "You spent $420.00 on groceries." {
		t.Fatalf("unexpected answer %q", answer)
	}
}

func TestFinanceQueryAskEmptyQuestion(t *testing.T) {
	uc := NewFinanceQueryUseCase(newLedgerStoreFake(), &providerFake{}, 0)

	_, err := uc.Ask(context.Background(), "owner-1", "   ")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestFinanceQueryAskMissingOwner(t *testing.T) {
	uc := NewFinanceQueryUseCase(newLedgerStoreFake(), &providerFake{}, 0)

	_, err := uc.Ask(context.Background(), "", "where did my money go")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestFinanceQueryAskContextFailure(t *testing.T) {
	ledger := newLedgerStoreFake()
	ledger.failOn["FinancialContext"] = errors.New("db down")
	uc := NewFinanceQueryUseCase(ledger, &providerFake{}, 0)

	_, err := uc.Ask(context.Background(), "owner-1", "question")
	if err == nil || !strings.Contains(err.Error(), "assemble financial context") {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestFinanceQueryAskProviderFailure(t *testing.T) {
	provider := &providerFake{answerErr: errors.New("model offline")}
	uc := NewFinanceQueryUseCase(newLedgerStoreFake(), provider, 0)

	_, err := uc.Ask(context.Background(), "owner-1", "question")
	if err == nil || !strings.Contains(err.Error(), "answer question") {
		t.Fatalf("expected provider error, got %v", err)
	}
}
