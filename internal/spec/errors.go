package spec

import (
	"errors"
	"fmt"
)

// UnboundLabelError reports a condition or projection that names a label
// not bound by an earlier given or match.
type UnboundLabelError struct {
	Label   string
	Context string
}

func (e *UnboundLabelError) Error() string {
	return fmt.Sprintf("%s: label %q is not bound", e.Context, e.Label)
}

// TypeMismatchError reports a role step or given whose declared type
// disagrees with the type it meets.
type TypeMismatchError struct {
	Context  string
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected type %q, got %q", e.Context, e.Expected, e.Actual)
}

// UnknownRoleError reports a role the model does not declare for a type.
type UnknownRoleError struct {
	Type string
	Role string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("type %q has no role %q", e.Type, e.Role)
}

// InvalidError reports any other malformed specification.
type InvalidError struct {
	Context string
	Message string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("%s: %s", e.Context, e.Message)
}

// IsUnboundLabel returns true if err is or wraps an UnboundLabelError.
func IsUnboundLabel(err error) bool {
	var ue *UnboundLabelError
	return errors.As(err, &ue)
}

// IsTypeMismatch returns true if err is or wraps a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var te *TypeMismatchError
	return errors.As(err, &te)
}
