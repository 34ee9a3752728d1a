package errors

import (
	"os/exec"

	"github.com/cockroachdb/errors"
)

// ExitCodeError carries a subprocess exit code through an error chain. Build
// one with WithExitCode; GetExitCode recovers the code at the top of main.
type ExitCodeError struct {
	Cause error
	Code  int
}

func (e *ExitCodeError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "command exited with a non-zero code"
}

func (e *ExitCodeError) Unwrap() error {
	return e.Cause
}

// WithExitCode attaches an exit code to an error.
// The exit code can be retrieved later using GetExitCode.
func WithExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &ExitCodeError{
		Cause: err,
		Code:  code,
	}
}

// GetExitCode extracts the exit code from an error chain.
// Returns 0 if err is nil, the attached code if one was recorded, the
// subprocess exit code for exec.ExitError, and 1 otherwise.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitCodeErr *ExitCodeError
	if errors.As(err, &exitCodeErr) {
		return exitCodeErr.Code
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return 1
}
