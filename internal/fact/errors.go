package fact

import (
	"errors"
	"fmt"
)

// IntegrityError reports that a recomputed hash disagrees with the stated
// identity of a fact. It is always fatal to the operation that detected it.
type IntegrityError struct {
	// Reference is the identity the caller claimed.
	Reference Reference

	// Computed is the hash recomputed from the fact's content. It is empty
	// when the content has no canonical form.
	Computed string

	// Err is why the content could not be canonicalized, if it could not.
	Err error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("integrity: %s: content is not canonical: %v", e.Reference, e.Err)
	}
	return fmt.Sprintf("integrity: %s hashes to %s", e.Reference, e.Computed)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// IsIntegrityError returns true if err is or wraps an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// ValidationError represents a malformed fact with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
