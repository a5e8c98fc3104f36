package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind discriminates the error taxonomy. The HTTP layer maps kinds to
// status codes; everything else propagates errors unmodified.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindNotImplemented
	KindTransient
)

// pgAdminShutdown is the Postgres error code emitted when an administrator
// terminates the backend; it is retryable.
const pgAdminShutdown = "57P01"

// Error is the application error type. Operational errors carry messages
// safe to show to clients; non-operational errors do not.
type Error struct {
	Kind        Kind
	Message     string
	Operational bool
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an operational error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Operational: true}
}

// Wrap creates an operational error of the given kind wrapping a cause
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Operational: true, Err: err}
}

// NotFound creates a not-found error
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a bad-input error
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Conflict creates an integrity-violation error
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// NotImplemented creates a not-implemented error
func NotImplemented(message string) *Error {
	return New(KindNotImplemented, message)
}

// KindOf returns the kind of err, or KindInternal for foreign errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsOperational reports whether err carries a client-visible message
func IsOperational(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Operational
	}
	return false
}

// HTTPStatus maps an error to its HTTP status code
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// IsTransient reports whether err is a retryable connection failure:
// OS-level connection errnos, the Postgres admin-shutdown code, or wire
// errors whose message indicates a dropped or starved connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) && e.Kind == KindTransient {
		return true
	}

	for _, errno := range []syscall.Errno{
		syscall.ECONNRESET,
		syscall.EPIPE,
		syscall.ETIMEDOUT,
		syscall.ECONNREFUSED,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgAdminShutdown {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection terminated",
		"connection closed",
		"connection reset",
		"timeout acquiring a connection",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
