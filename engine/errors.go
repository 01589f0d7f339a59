package engine

import (
	"fmt"

	"github.com/input-output-hk/catalyst-forge-pipeline/domain"
)

// StageError carries the failing stage and the failure classification.
type StageError struct {
	// Stage is the name of the failing stage. Empty for run-level errors.
	Stage string

	// Code classifies the failure.
	Code domain.ErrorCode

	// Err is the underlying error.
	Err error
}

// Error returns the string representation of the StageError.
func (e *StageError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("[%s] %v", e.Code, e.Err)
	}
	return fmt.Sprintf("stage %s: [%s] %v", e.Stage, e.Code, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Fail wraps err with an error code for the engine to record. Stages use it
// to classify their own failures.
func Fail(code domain.ErrorCode, err error) error {
	return &StageError{Code: code, Err: err}
}
