// Package apperr defines a small typed error enum with a stable code
// and a client-safe message, used to classify failures that cross a
// process boundary.
package apperr

import "fmt"

// Code is one of the stable, wire-visible error codes.
type Code string

const (
	CodeQuotaExhausted    Code = "E001"
	CodeAuthentication    Code = "E002"
	CodePermissionDenied  Code = "E003"
	CodeDeadlineExceeded  Code = "E004"
	CodeNetwork           Code = "E005"
	CodeUnknown           Code = "E099"
)

var clientMessage = map[Code]string{
	CodeQuotaExhausted:   "Service temporarily unavailable",
	CodeAuthentication:   "Service configuration error [E002]",
	CodePermissionDenied: "Service configuration error [E003]",
	CodeDeadlineExceeded: "Timeout, try a smaller document",
	CodeNetwork:          "Network connection error",
	CodeUnknown:          "Unable to process document [E099]",
}

// retryable reports whether a retry loop should attempt another call
// after this code. Authentication, permission, and unknown/malformed
// classes are never retried.
var retryable = map[Code]bool{
	CodeQuotaExhausted:   true,
	CodeDeadlineExceeded: true,
	CodeNetwork:          true,
	CodeAuthentication:   false,
	CodePermissionDenied: false,
	CodeUnknown:          false,
}

// Kind names the outer-layer propagation category. It does not
// replace Code — Kind groups how a caller should react, Code is the
// stable wire-visible identifier.
type Kind string

const (
	KindInputRejected       Kind = "InputRejected"
	KindTransientUpstream   Kind = "TransientUpstream"
	KindConfigurationFault  Kind = "ConfigurationFault"
	KindValidationFault     Kind = "ValidationFault"
	KindPersistenceConflict Kind = "PersistenceConflict"
	KindDuplicateInProgress Kind = "DuplicateInProgress"
)

// Error is the classified failure type propagated out of the vision
// client and the orchestrator. Full detail (Cause) is for the log
// only; Message/Code are what may cross the process boundary.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the vision retry loop should attempt
// another call after this error.
func (e *Error) Retryable() bool {
	return retryable[e.Code]
}

// New builds a classified Error, filling in the stable client-facing
// message for the given code.
func New(kind Kind, code Code, cause error) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: clientMessage[code],
		Cause:   cause,
	}
}

// InputRejected builds an InputRejected error; these carry their own
// message verbatim rather than a code-table lookup.
func InputRejected(reason string) *Error {
	return &Error{Kind: KindInputRejected, Code: CodeUnknown, Message: reason}
}

// DuplicateInProgress signals that a duplicate-upload coalescing guard
// already has this content hash claimed.
func DuplicateInProgress(hash string) *Error {
	return &Error{
		Kind:    KindDuplicateInProgress,
		Code:    CodeUnknown,
		Message: fmt.Sprintf("an identical upload (hash %s) is already being processed", hash),
	}
}
