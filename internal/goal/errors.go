package goal

import (
	"errors"
	"fmt"

	"github.com/saulo-duarte/chronos-goals/internal/hierarchy"
)

var (
	ErrNotFound         = errors.New("goal not found")
	ErrValidation       = errors.New("invalid goal")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrCycle            = hierarchy.ErrCycle
)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

var ErrInvalidTarget = &ValidationError{Field: "target_value", Reason: "must be greater than zero"}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func invalidOp(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, reason)
}
