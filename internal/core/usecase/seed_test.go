package usecase

import (
	"context"
	"testing"

	"github.com/hearthfin/hearth/internal/core/domain"
)

func TestSeedCategoriesDefaults(t *testing.T) {
	ledger := newLedgerStoreFake()
	uc := NewSeedCategoriesUseCase(ledger)

	created, err := uc.Seed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if created != len(domain.BuiltinCategories) {
		t.Fatalf("expected %d created, got %d", len(domain.BuiltinCategories), created)
	}

	again, err := uc.Seed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if again != 0 {
		t.Fatalf("expected reseed to create nothing, got %d", again)
	}
}

func TestSeedCategoriesCustomNames(t *testing.T) {
	ledger := newLedgerStoreFake()
	uc := NewSeedCategoriesUseCase(ledger)

	created, err := uc.Seed(context.Background(), []string{"Hobbies", "Hobbies", "Garden"})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 created, got %d", created)
	}
}

func TestSeedCategoriesBlankName(t *testing.T) {
	uc := NewSeedCategoriesUseCase(newLedgerStoreFake())

	_, err := uc.Seed(context.Background(), []string{"Hobbies", ""})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
