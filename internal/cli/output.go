package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes returned to the shell.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // program error (load failed, build failed, run aborted)
	ExitCommandError = 2 // CLI usage error (bad flags, unreadable arguments)
)

// ExitError carries an exit code alongside the error message so main can
// translate failures into shell status without string matching.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, defaulting to
// ExitFailure for unrecognized errors and ExitSuccess for nil.
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

// CLIResponse is the envelope for JSON output mode.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the structured error payload of a JSON response.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter renders command results as human-readable text or as
// JSON envelopes, selected by the persistent --format flag.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// NewOutputFormatter creates a formatter for the given format and writers.
func NewOutputFormatter(format string, w, ew io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: format, Writer: w, ErrWriter: ew}
}

// Success emits a result. In text mode data is printed with %v unless it
// is a string; in JSON mode it is wrapped in an ok envelope.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.writeJSON(CLIResponse{Status: "ok", Data: data})
	}
	switch v := data.(type) {
	case nil:
		return nil
	case string:
		_, err := fmt.Fprintln(f.Writer, v)
		return err
	default:
		_, err := fmt.Fprintf(f.Writer, "%v\n", v)
		return err
	}
}

// Failure emits a structured error. Text mode prints to ErrWriter; JSON
// mode wraps the code and message in an error envelope on Writer.
func (f *OutputFormatter) Failure(code, message string, details any) error {
	if f.Format == "json" {
		return f.writeJSON(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	if details != nil {
		_, err := fmt.Fprintf(f.ErrWriter, "error [%s]: %s (%v)\n", code, message, details)
		return err
	}
	_, err := fmt.Fprintf(f.ErrWriter, "error [%s]: %s\n", code, message)
	return err
}

// VerboseLog writes a progress line to ErrWriter when --verbose is set.
// Kept off Writer so JSON output stays machine-parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.ErrWriter, format+"\n", args...)
	}
}

func (f *OutputFormatter) writeJSON(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
