package errors

import (
	perrors "github.com/pkg/errors"
)

// ExitCodeError ties an error to an ExitCode so callers up the stack can
// classify a failure without string matching.
type ExitCodeError struct {
	code ExitCode
	error
}

func NewError(err error, exitCode ExitCode) *ExitCodeError {
	if err == nil {
		return nil
	}
	return &ExitCodeError{exitCode, err}
}

func (e *ExitCodeError) GetExitCode() ExitCode {
	if e == nil {
		return 0
	}
	return e.code
}

// GetExitCode classifies err, unwrapping pkg/errors wrapping as needed.
// Returns 0 for nil or for errors that carry no code.
func GetExitCode(err error) ExitCode {
	if err == nil {
		return 0
	}
	if ec, ok := err.(*ExitCodeError); ok {
		return ec.GetExitCode()
	}
	if ec, ok := perrors.Cause(err).(*ExitCodeError); ok {
		return ec.GetExitCode()
	}
	return 0
}
