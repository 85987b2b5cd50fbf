package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Deployment or scenario failure (failed, held or cancelled actions)
	ExitCommandError = 2 // Command error (bad module, journal unavailable, redefinition, etc.)
)

// Error codes carried in JSON output.
const (
	ErrCodeGeneric         = "E001"
	ErrCodeNotFound        = "E002" // module file or directory missing
	ErrCodeDecode          = "E003" // declaration could not be decoded
	ErrCodeBuild           = "E004" // graph build failed
	ErrCodeJournal         = "E005" // journal could not be opened or read
	ErrCodeRedefinition    = "E006" // recorded action shape differs from the declaration
	ErrCodeInfrastructure  = "E007" // run aborted by a journal or node failure
	ErrCodeDeployFailed    = "E008" // run finished with failed, held or cancelled actions
	ErrCodeInvalidFlag     = "E009"
	ErrCodeScenarioFailed  = "E010"
	ErrCodeUnresolvedRef   = "E011"
	ErrCodeCycle           = "E012"
	ErrCodeDuplicateAction = "E013"
	ErrCodeDuplicateModule = "E014"
	ErrCodeInvalidAction   = "E015"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure if the error is not an
// ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // payload, also set on error when partial results exist
	Error  *CLIError `json:"error,omitempty"` // error details
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}

	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Failure outputs a JSON error response that still carries a payload, e.g.
// the report of a run that finished with failed actions.
func (f *OutputFormatter) Failure(code, message string, data any) error {
	return f.encode(CLIResponse{
		Status: "error",
		Data:   data,
		Error:  &CLIError{Code: code, Message: message},
	})
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
