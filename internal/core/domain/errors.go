package domain

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound        = errors.New("import job not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrParseFailed        = errors.New("statement parse failed")
	ErrNoParserMatched    = errors.New("no parser matched")
	ErrPayloadUnavailable = errors.New("payload unavailable")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrProviderFailed     = errors.New("provider call failed")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
