package engine

import (
	"errors"
	"fmt"
)

// EvaluationError represents an error detected while evaluating a
// specification.
type EvaluationError struct {
	// Code identifies the error category.
	Code EvaluationErrorCode

	// Message is a human-readable description.
	Message string

	// Specification is the hash of the affected specification.
	Specification string
}

// EvaluationErrorCode categorizes evaluation errors.
type EvaluationErrorCode string

const (
	// ErrCodeGivenArity indicates the number of givens does not match the
	// specification.
	ErrCodeGivenArity EvaluationErrorCode = "GIVEN_ARITY"

	// ErrCodeRowLimit indicates the evaluation exceeded its row budget.
	ErrCodeRowLimit EvaluationErrorCode = "ROW_LIMIT"
)

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	if e.Specification != "" {
		return fmt.Sprintf("%s: %s (specification=%s)", e.Code, e.Message, e.Specification)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRowLimitError returns true if the error is a row limit error.
// Uses errors.As to handle wrapped errors.
func IsRowLimitError(err error) bool {
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeRowLimit
	}
	return false
}

// IsArityError returns true if the error is a given arity error.
func IsArityError(err error) bool {
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeGivenArity
	}
	return false
}
