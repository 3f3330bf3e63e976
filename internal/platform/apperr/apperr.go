// Package apperr defines the error kinds shared by the domain services and the
// mapping from those kinds to HTTP status codes.
package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an error for propagation to the caller.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindInvalidTransition
	KindNotFound
	KindForbidden
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindUpstream:
		return "upstream_failure"
	}
	return "unknown"
}

// Error is a classified error. Code is a stable, machine readable identifier
// such as "slot_unavailable"; it is empty on the per-kind sentinels.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind. A target without a code matches
// every error of its kind, so errors.Is(err, ErrConflict) holds for any
// conflict while errors.Is(err, ErrSlotUnavailable) needs the code too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Per-kind sentinels for errors.Is checks.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrUpstream          = &Error{Kind: KindUpstream}
)

func Validation(code, msg string) *Error { return &Error{Kind: KindValidation, Code: code, Message: msg} }
func Conflict(code, msg string) *Error   { return &Error{Kind: KindConflict, Code: code, Message: msg} }
func NotFound(code, msg string) *Error   { return &Error{Kind: KindNotFound, Code: code, Message: msg} }
func Forbidden(code, msg string) *Error  { return &Error{Kind: KindForbidden, Code: code, Message: msg} }

func InvalidTransition(code, msg string) *Error {
	return &Error{Kind: KindInvalidTransition, Code: code, Message: msg}
}

// Upstream wraps a failure of the store or of a remote provider.
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: "upstream_failure", Message: msg, Err: err}
}

// FromStore passes classified errors through and wraps anything else as an
// upstream failure described by msg.
func FromStore(msg string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != 0 {
		return err
	}
	return Upstream(msg, err)
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// HTTPStatus maps err to a response status. Unclassified errors are 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindInvalidTransition:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Body is the JSON error payload returned by API handlers.
type Body struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ToHTTP converts err into an *echo.HTTPError carrying a Body. Internal and
// upstream errors hide their cause from the client.
func ToHTTP(err error) *echo.HTTPError {
	status := HTTPStatus(err)
	body := Body{Error: http.StatusText(status), Message: err.Error()}

	var e *Error
	if errors.As(err, &e) {
		body.Code = e.Code
		body.Error = e.Kind.String()
		if e.Kind == KindUpstream {
			body.Message = e.Message
		}
	} else {
		body.Message = "internal server error"
	}

	he := echo.NewHTTPError(status, body)
	he.Internal = err
	return he
}
