// Package apperrors provides the structured error type used across the
// service, classified by kind so HTTP handlers and status reporters can
// map failures without inspecting messages.
package apperrors

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping and outcome reporting.
type Kind string

const (
	// KindClient marks malformed or unauthenticated webhook input.
	KindClient Kind = "client"
	// KindSubprocess marks a required external program failing.
	KindSubprocess Kind = "subprocess"
	// KindDeploy marks an exhausted publication retry budget.
	KindDeploy Kind = "deploy"
	// KindInternal marks everything else.
	KindInternal Kind = "internal"
)

// Label returns the human-facing class name of the kind, used in
// status reports and comments.
func (k Kind) Label() string {
	switch k {
	case KindClient:
		return "ClientError"
	case KindSubprocess:
		return "SubprocessError"
	case KindDeploy:
		return "DeployError"
	default:
		return "InternalError"
	}
}

// Error is the structured error carried through the pipeline.
type Error struct {
	Kind     Kind
	Message  string
	ExitCode int // exit status for subprocess errors, -1 otherwise
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Client creates a client-input error.
func Client(message string) *Error {
	return &Error{Kind: KindClient, Message: message, ExitCode: -1}
}

// Clientf creates a client-input error with formatting.
func Clientf(format string, args ...any) *Error {
	return Client(fmt.Sprintf(format, args...))
}

// Subprocess creates an error for a failed external program.
func Subprocess(message string, exitCode int, cause error) *Error {
	return &Error{Kind: KindSubprocess, Message: message, ExitCode: exitCode, Cause: cause}
}

// Deploy creates an error for an exhausted publication transaction.
func Deploy(message string, cause error) *Error {
	return &Error{Kind: KindDeploy, Message: message, ExitCode: -1, Cause: cause}
}

// Internal wraps an arbitrary failure.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, ExitCode: -1, Cause: cause}
}

// KindOf extracts the kind from an error chain, defaulting to internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// Tag derives the correlation tag for an error: the MD5 of its full
// formatted text. The same tag is logged server-side and returned in
// error envelopes so operators can grep for the details.
func Tag(err error) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%+v", err)))
	return hex.EncodeToString(sum[:])
}

// ExitCodeFor maps an error to a process exit code for the CLI.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindClient:
		return 2
	case KindSubprocess:
		return 3
	case KindDeploy:
		return 4
	default:
		return 1
	}
}
