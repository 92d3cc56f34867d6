// Package apperr classifies workflow failures into the error kinds surfaced to
// clients: validation, permission denied, not found and provider (backing store)
// failures.
//
// Domain packages declare their sentinel errors with New so callers can keep
// matching on the specific sentinel while handlers match on the kind:
//
//	var ErrNameRequired = apperr.New(apperr.ErrValidation, "block name is required")
//
//	errors.Is(err, block.ErrNameRequired) // specific
//	errors.Is(err, apperr.ErrValidation)  // kind
package apperr

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error kinds.
var (
	ErrValidation       = errors.New("validation error")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrProvider         = errors.New("provider error")
)

// Error is a classified error. Its message is safe to show to end users.
type Error struct {
	kind    error
	message string
	cause   error
}

// New returns a classified error of the given kind.
func New(kind error, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Provider wraps a failure of the backing store or identity provider.
func Provider(cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{kind: ErrProvider, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

// Kind returns the kind sentinel of err, or ErrProvider for unclassified errors.
func Kind(err error) error {
	for _, kind := range []error{ErrValidation, ErrPermissionDenied, ErrNotFound, ErrProvider} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrProvider
}

// knownCodes maps PostgreSQL SQLSTATE codes to user-readable text.
var knownCodes = map[string]string{
	"23505": "This resource already exists.",
	"23503": "The operation failed. Please check your input and try again.",
	"23514": "The operation failed. Please check your input and try again.",
	"42501": "You don't have permission to perform this action.",
	"53300": "Operation rate limit exceeded. Please try again later.",
	"40001": "The operation conflicted with another request. Please try again.",
	"40P01": "The operation conflicted with another request. Please try again.",
	"57014": "The operation was cancelled.",
	"08000": "The service is temporarily unavailable. Please try again later.",
	"08001": "The service is temporarily unavailable. Please try again later.",
	"08006": "The service is temporarily unavailable. Please try again later.",
}

const unknownMessage = "An unknown error occurred. Please try again."

// Message returns the text to show a user for err. Known provider failures are
// translated; everything else passes through the classified message.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if msg, ok := knownCodes[pgErr.Code]; ok {
			return msg
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "The operation was cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "The operation timed out. Please try again."
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.kind == ErrProvider {
			return appErr.message
		}
		// Domain errors may be wrapped with detail such as the offending field.
		return err.Error()
	}
	return unknownMessage
}

// Code returns the SQLSTATE code carried by err, or "" if there is none.
func Code(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	return Code(err) == "23505"
}
