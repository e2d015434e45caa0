package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies an application error into the HTTP category it maps to.
type Kind int

const (
	// KindInternal is the fallback for unexpected failures (500).
	KindInternal Kind = iota
	// KindValidation covers missing or malformed input (400).
	KindValidation
	// KindUnauthenticated covers missing or invalid credentials (401).
	KindUnauthenticated
	// KindForbidden covers authenticated but not permitted (403).
	KindForbidden
	// KindNotFound covers missing entities (404).
	KindNotFound
	// KindConflict covers state changed concurrently or oversell (409).
	KindConflict
)

// Error is an application error carrying its category.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validation(message string) *Error      { return New(KindValidation, message) }
func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }
func Forbidden(message string) *Error       { return New(KindForbidden, message) }
func NotFound(message string) *Error        { return New(KindNotFound, message) }
func Conflict(message string) *Error        { return New(KindConflict, message) }
func Internal(message string) *Error        { return New(KindInternal, message) }

// StatusCode returns the HTTP status for an error. Non-app errors map to
// 500 so store failures never leak as success.
func StatusCode(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return fiber.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindUnauthenticated:
		return fiber.StatusUnauthorized
	case KindForbidden:
		return fiber.StatusForbidden
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// IsKind reports whether err is an application error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
