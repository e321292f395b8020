package job

import (
	"errors"
	"fmt"
)

// ValidationError aggregates every problem found in a job definition.
// It is returned before anything is persisted.
type ValidationError struct {
	Errors []error `json:"errors"`
}

func (v *ValidationError) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

func (v *ValidationError) Addf(format string, args ...any) {
	v.Add(fmt.Errorf(format, args...))
}

func (v *ValidationError) HasError() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("invalid job: %v", errors.Join(v.Errors...))
}

func (v *ValidationError) Unwrap() []error { return v.Errors }

// errOrNil keeps a typed nil from escaping as a non-nil error interface.
func (v *ValidationError) errOrNil() error {
	if v == nil || !v.HasError() {
		return nil
	}
	return v
}
