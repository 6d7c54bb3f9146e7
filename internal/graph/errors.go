package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/factsync/internal/fact"
)

// DanglingPredecessorError reports an Add whose fact references predecessors
// absent from the graph. The graph is left unchanged; callers must fetch and
// add the predecessors first.
type DanglingPredecessorError struct {
	Fact    fact.Reference
	Missing []fact.Reference
}

func (e *DanglingPredecessorError) Error() string {
	missing := make([]string, len(e.Missing))
	for i, r := range e.Missing {
		missing[i] = r.String()
	}
	return fmt.Sprintf("dangling predecessor: %s references missing %s", e.Fact, strings.Join(missing, ", "))
}

// NotFoundError reports a lookup miss.
type NotFoundError struct {
	Reference fact.Reference
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fact not found: %s", e.Reference)
}

// IsDanglingPredecessor returns true if err is or wraps a DanglingPredecessorError.
func IsDanglingPredecessor(err error) bool {
	var de *DanglingPredecessorError
	return errors.As(err, &de)
}

// IsNotFound returns true if err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
