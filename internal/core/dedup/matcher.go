package dedup

import (
	"context"
	"time"
)

// TransactionIndex is the slice of storage a matcher consults.
type TransactionIndex interface {
	FindMatch(ctx context.Context, accountID string, date time.Time, amountCents int64, description string) (string, bool, error)
}

// Matcher decides whether an incoming row is a re-import of a transaction
// already on file.
type Matcher interface {
	Match(ctx context.Context, index TransactionIndex, accountID string, date time.Time, amountCents int64, description string) (bool, error)
}

// ExactMatcher treats equality on account, posted date, amount and
// description as a duplicate. Two genuinely distinct same-day purchases with
// identical amounts and descriptions therefore collapse into one row; formats
// that carry a bank reference should map it into the description to keep such
// rows apart.
type ExactMatcher struct{}

func (ExactMatcher) Match(ctx context.Context, index TransactionIndex, accountID string, date time.Time, amountCents int64, description string) (bool, error) {
	_, found, err := index.FindMatch(ctx, accountID, date, amountCents, description)
	return found, err
}
