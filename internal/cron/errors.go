package cron

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("cron job not found")
	ErrNotStarted = errors.New("cron service not started")
)

// ExecutionError records a failed backend run. It is folded into the job's
// lastError and logged; it never reaches a facade caller.
type ExecutionError struct {
	JobID string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("cron job %s: execution failed: %v", e.JobID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
