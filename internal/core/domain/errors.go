package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTaxReturnNotFound = errors.New("tax return not found")
	ErrExtractionMissing = errors.New("document extraction not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrTemporary         = errors.New("temporary failure")
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

// ExtractionCallError reports a failed call to the AI provider for a single
// document. The orchestrator records it on the extraction row and moves on.
type ExtractionCallError struct {
	Provider string
	Err      error
}

func (e *ExtractionCallError) Error() string {
	if e == nil || e.Err == nil {
		return "extraction call failed"
	}
	if e.Provider == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s extraction call: %v", e.Provider, e.Err)
}

func (e *ExtractionCallError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewExtractionCallError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var existing *ExtractionCallError
	if errors.As(err, &existing) {
		return err
	}
	return &ExtractionCallError{Provider: provider, Err: err}
}
