package batch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownJob is returned by RunJob for a name that was never registered.
var ErrUnknownJob = errors.New("batch: unknown job")

// ItemError ties a task failure to the backlog entry that produced it.
type ItemError struct {
	ID      string
	OrderNo string
	Err     error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s (order %s): %v", e.ID, e.OrderNo, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// BatchError collects every task failure of one run. It is returned once,
// after all results have been drained.
type BatchError struct {
	Job  string
	Errs []error
}

func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "batch %s: %d task(s) failed", e.Job, len(e.Errs))
	for i, err := range e.Errs {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Errs)-i)
			break
		}
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *BatchError) Unwrap() []error { return e.Errs }
