package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tOgg1/parley/internal/syncer"
)

// Exit codes.
const (
	ExitCodeFailure = 1
	ExitCodeUsage   = 2
	ExitCodeConfig  = 3
	ExitCodeAuth    = 4
)

// ExitError carries a process exit code.
type ExitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exitf builds an ExitError from a format string.
func Exitf(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// PreflightError is a failure detected before any request, with a hint on how to fix it.
type PreflightError struct {
	Message  string
	Hint     string
	NextStep string
}

func (e *PreflightError) Error() string {
	msg := e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	if e.NextStep != "" {
		msg += "\n  try:  " + e.NextStep
	}
	return msg
}

func usageError(cmd *cobra.Command, message string) error {
	return &ExitError{Code: ExitCodeUsage, Err: fmt.Errorf("%s (see %s --help)", message, cmd.CommandPath())}
}

// displayError shows the user-facing text of a wrapped error.
type displayError struct {
	text string
	err  error
}

func (e *displayError) Error() string { return e.text }
func (e *displayError) Unwrap() error { return e.err }

// failure wraps an engine error so the CLI prints its user-facing text.
func failure(err error) error {
	return &ExitError{Code: ExitCodeFailure, Err: &displayError{text: syncer.UserMessage(err), err: err}}
}
