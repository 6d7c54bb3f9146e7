package engine

import (
	"fmt"
	"sync/atomic"
)

// rowQuota counts rows produced across an evaluation, nested collections
// included, and fails once a limit is exceeded. It guards against
// specifications whose joins explode on large graphs.
//
// Safe for concurrent use; nested collections are evaluated in parallel.
type rowQuota struct {
	limit   int64 // zero means unlimited
	current atomic.Int64
	spec    string
}

func newRowQuota(limit int, specHash string) *rowQuota {
	return &rowQuota{limit: int64(limit), spec: specHash}
}

// Check counts one row.
func (q *rowQuota) Check() error {
	n := q.current.Add(1)
	if q.limit > 0 && n > q.limit {
		return &EvaluationError{
			Code:          ErrCodeRowLimit,
			Message:       fmt.Sprintf("evaluation exceeded %d rows", q.limit),
			Specification: q.spec,
		}
	}
	return nil
}

// Current returns the rows counted so far.
func (q *rowQuota) Current() int64 {
	return q.current.Load()
}
