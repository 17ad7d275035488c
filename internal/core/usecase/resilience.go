package usecase

import (
	"context"
	"errors"

	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/infrastructure/resilience"
)

// classifyStoreError treats unknown storage errors as transient connection
// trouble and semantic kinds as permanent.
func classifyStoreError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}
	for _, kind := range []error{
		domain.ErrJobNotFound,
		domain.ErrInvalidInput,
		domain.ErrInvalidTransition,
		domain.ErrParseFailed,
		domain.ErrNoParserMatched,
		domain.ErrPayloadUnavailable,
	} {
		if domain.IsKind(err, kind) {
			return resilience.ErrorClassification{
				Retryable:     false,
				RecordFailure: false,
			}
		}
	}
	return resilience.ErrorClassification{
		Retryable:     true,
		RecordFailure: true,
	}
}

// runStore executes a storage call under the retry/breaker executor when one
// is configured.
func runStore(ctx context.Context, executor *resilience.Executor, operation string, fn func(context.Context) error) error {
	if executor == nil {
		return fn(ctx)
	}
	return executor.Execute(ctx, operation, fn, classifyStoreError)
}
