package engine

import (
	"errors"
	"fmt"
)

// BuildError is a structured construction-time diagnostic. Construction
// errors abort building the affected subgraph before any tick runs; they
// are never produced once the graph is live.
type BuildError struct {
	// Code identifies the error category.
	Code BuildErrorCode

	// Site is the construction site the error points at.
	Site Site

	// Message is a human-readable description.
	Message string
}

// BuildErrorCode categorizes construction-time errors.
type BuildErrorCode string

const (
	// ErrCodeUnmatchedPattern indicates a WHEN/WHILE without a final
	// irrefutable arm (wildcard or bare binding).
	ErrCodeUnmatchedPattern BuildErrorCode = "UNMATCHED_PATTERN"

	// ErrCodeLinkConnected indicates a second connection attempt on an
	// event-binding stub.
	ErrCodeLinkConnected BuildErrorCode = "LINK_ALREADY_CONNECTED"

	// ErrCodeNotALink indicates a link setter aimed at a binding that is
	// not an event-binding stub.
	ErrCodeNotALink BuildErrorCode = "NOT_A_LINK"

	// ErrCodeUnresolvedRef indicates a reference without a resolved
	// binding, including self-reference cycles not routed through a
	// state-carrying combinator.
	ErrCodeUnresolvedRef BuildErrorCode = "UNRESOLVED_REFERENCE"

	// ErrCodePipeRequired indicates a pipe-consuming construct built
	// without a piped upstream.
	ErrCodePipeRequired BuildErrorCode = "PIPE_REQUIRED"

	// ErrCodeUnknownBuiltin indicates a call to an unregistered builtin
	// path.
	ErrCodeUnknownBuiltin BuildErrorCode = "UNKNOWN_BUILTIN"

	// ErrCodeBadArgument indicates a call with missing, surplus, or
	// ill-typed arguments.
	ErrCodeBadArgument BuildErrorCode = "BAD_ARGUMENT"

	// ErrCodeListRequired indicates a list operation whose upstream is not
	// a list node.
	ErrCodeListRequired BuildErrorCode = "LIST_REQUIRED"
)

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Site.Construct != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.Site)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsBuildError reports whether err is (or wraps) a BuildError with the
// given code.
func IsBuildError(err error, code BuildErrorCode) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

func buildErrorf(code BuildErrorCode, site Site, format string, args ...any) *BuildError {
	return &BuildError{
		Code:    code,
		Site:    site,
		Message: fmt.Sprintf(format, args...),
	}
}
