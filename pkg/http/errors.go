package http

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// Kind identifies the HTTP error condition an Error maps to.
type Kind int

// Error kinds. The set is closed; every kind maps to exactly one status code.
const (
	KindBadRequest Kind = iota + 1
	KindNotFound
	KindMethodNotAllowed
	KindRequestTimeout
	KindGone
	KindContentTooLarge
	KindMisdirectedRequest
	KindInternalServerError
	KindNotImplemented
	KindVersionNotSupported
)

// Kinds lists every error kind.
var Kinds = []Kind{
	KindBadRequest,
	KindNotFound,
	KindMethodNotAllowed,
	KindRequestTimeout,
	KindGone,
	KindContentTooLarge,
	KindMisdirectedRequest,
	KindInternalServerError,
	KindNotImplemented,
	KindVersionNotSupported,
}

// Status returns the status code for k.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return 400
	case KindNotFound:
		return 404
	case KindMethodNotAllowed:
		return 405
	case KindRequestTimeout:
		return 408
	case KindGone:
		return 410
	case KindContentTooLarge:
		return 413
	case KindMisdirectedRequest:
		return 421
	case KindNotImplemented:
		return 501
	case KindVersionNotSupported:
		return 505
	default:
		return 500
	}
}

// String returns a lower-case description of k.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad request"
	case KindNotFound:
		return "not found"
	case KindMethodNotAllowed:
		return "method not allowed"
	case KindRequestTimeout:
		return "request timeout"
	case KindGone:
		return "gone"
	case KindContentTooLarge:
		return "content too large"
	case KindMisdirectedRequest:
		return "misdirected request"
	case KindInternalServerError:
		return "internal server error"
	case KindNotImplemented:
		return "not implemented"
	case KindVersionNotSupported:
		return "http version not supported"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsClientError reports whether k is a 4xx condition.
func (k Kind) IsClientError() bool { return k.Status() < 500 }

// IsServerError reports whether k is a 5xx condition.
func (k Kind) IsServerError() bool { return k.Status() >= 500 }

// Error is an HTTP-level failure. It determines the status code of the error
// response and whether the connection is closed after it is sent.
type Error struct {
	Kind            Kind
	CloseConnection bool
	Message         string
	Err             error
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := fmt.Sprintf("http: %d %s", e.Kind.Status(), e.Kind)
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels, so errors.Is(err, ErrBadRequest) holds for
// every bad-request Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for use with errors.Is.
var (
	ErrBadRequest          = &Error{Kind: KindBadRequest}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrMethodNotAllowed    = &Error{Kind: KindMethodNotAllowed}
	ErrRequestTimeout      = &Error{Kind: KindRequestTimeout}
	ErrGone                = &Error{Kind: KindGone}
	ErrContentTooLarge     = &Error{Kind: KindContentTooLarge}
	ErrMisdirectedRequest  = &Error{Kind: KindMisdirectedRequest}
	ErrInternalServerError = &Error{Kind: KindInternalServerError}
	ErrNotImplemented      = &Error{Kind: KindNotImplemented}
	ErrVersionNotSupported = &Error{Kind: KindVersionNotSupported}
)

// Diagnostic causes carried in Error.Err.
var (
	// ErrUnknownMethod marks a request line whose method token is not recognized.
	// It is reported with KindVersionNotSupported.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrMalformedRequestLine marks a request line without three SP-separated parts.
	ErrMalformedRequestLine = errors.New("malformed request line")
)

// NewError returns an Error of the given kind that closes the connection.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, CloseConnection: true, Message: msg}
}

// WrapError returns an Error of the given kind wrapping err.
func WrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, CloseConnection: true, Message: msg, Err: err}
}

func errorf(kind Kind, format string, args ...any) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

func badRequest(format string, args ...any) *Error {
	return errorf(KindBadRequest, format, args...)
}

// AsError returns err as an *Error. Errors of other types become
// internal-server-error, except timeouts which become request-timeout.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var he *Error
	if errors.As(err, &he) {
		return he
	}
	return ioError(err)
}

// ioError classifies a transport failure.
func ioError(err error) *Error {
	if IsTimeout(err) {
		return WrapError(KindRequestTimeout, "read timed out", err)
	}
	return WrapError(KindInternalServerError, "i/o failure", err)
}

// IsTimeout reports whether err is a deadline expiry on the connection.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
