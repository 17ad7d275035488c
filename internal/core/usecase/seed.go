package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/core/ports"
)

// SeedCategoriesUseCase installs the category taxonomy. Existing names are
// left untouched, so reseeding is safe.
type SeedCategoriesUseCase struct {
	ledger ports.LedgerStore
}

func NewSeedCategoriesUseCase(ledger ports.LedgerStore) *SeedCategoriesUseCase {
	return &SeedCategoriesUseCase{ledger: ledger}
}

// Seed inserts the given names, falling back to the builtin taxonomy when
// names is empty. Returns how many were newly created.
func (uc *SeedCategoriesUseCase) Seed(ctx context.Context, names []string) (int, error) {
	if len(names) == 0 {
		names = domain.BuiltinCategories
	}
	for _, name := range names {
		if name == "" {
			return 0, domain.WrapError(domain.ErrInvalidInput, "seed categories", errors.New("blank category name"))
		}
	}

	created, err := uc.ledger.SeedCategories(ctx, names)
	if err != nil {
		return 0, fmt.Errorf("seed categories: %w", err)
	}
	slog.Info("categories_seeded", "requested", len(names), "created", created)
	return created, nil
}
