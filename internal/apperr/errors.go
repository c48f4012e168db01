// Package apperr defines the error taxonomy shared by the request boundary,
// the connection lifecycle manager and the tool adapters.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an error for propagation and HTTP mapping.
type Kind string

const (
	KindBadRequest           Kind = "bad_request"
	KindUnauthorized         Kind = "unauthorized"
	KindForbidden            Kind = "forbidden"
	KindNotFound             Kind = "not_found"
	KindRateLimited          Kind = "rate_limit"
	KindNotConfigured        Kind = "not_configured"
	KindNoRedirectURL        Kind = "no_redirect_url"
	KindAuthInitiationFailed Kind = "auth_initiation_failed"
	KindConnectionTimeout    Kind = "connection_timeout"
	KindToolExecutionFailed  Kind = "tool_execution_failed"
	KindToolNotFound         Kind = "tool_not_found"
	KindToolTimeout          Kind = "tool_timeout"
	KindChannelUnavailable   Kind = "channel_unavailable"
	KindInternal             Kind = "internal"
)

// Error is a classified error with an optional user-facing message.
type Error struct {
	Kind Kind
	// Surface names the area that produced the error, e.g. "chat" or "auth".
	Surface string
	Message string
	Cause   error
}

// New creates an error of the given kind.
func New(kind Kind, surface, message string) *Error {
	return &Error{Kind: kind, Surface: surface, Message: message}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, surface string, cause error, message string) *Error {
	return &Error{Kind: kind, Surface: surface, Message: message, Cause: cause}
}

// Errorf creates an error of the given kind with a formatted message.
func Errorf(kind Kind, surface, format string, args ...any) *Error {
	return &Error{Kind: kind, Surface: surface, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessage(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Code returns the "<kind>:<surface>" identifier used in HTTP bodies.
func (e *Error) Code() string {
	if e.Surface == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ":" + e.Surface
}

// UserMessage returns the message suitable for end users.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return defaultMessage(e.Kind)
}

// KindOf returns the kind of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus maps a kind to its response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindBadRequest, KindNotConfigured, KindNoRedirectURL:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound, KindToolNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindConnectionTimeout, KindToolTimeout:
		return http.StatusGatewayTimeout
	case KindAuthInitiationFailed, KindToolExecutionFailed:
		return http.StatusBadGateway
	case KindChannelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller should ask the user to retry rather
// than treat the error as fatal.
func Retryable(kind Kind) bool {
	switch kind {
	case KindConnectionTimeout, KindToolTimeout, KindRateLimited, KindChannelUnavailable:
		return true
	default:
		return false
	}
}

func defaultMessage(kind Kind) string {
	switch kind {
	case KindBadRequest:
		return "The request couldn't be processed. Please check your input and try again."
	case KindUnauthorized:
		return "You need to sign in before continuing."
	case KindForbidden:
		return "This resource belongs to another account."
	case KindNotFound:
		return "The requested resource was not found."
	case KindRateLimited:
		return "You have exceeded your maximum number of messages for the day. Please try again later."
	case KindNotConfigured:
		return "This integration is not configured."
	case KindNoRedirectURL:
		return "The authorization service did not return a redirect URL."
	case KindAuthInitiationFailed:
		return "Failed to start the authorization flow."
	case KindConnectionTimeout:
		return "Timed out waiting for the connection to complete. Please try again."
	case KindToolExecutionFailed:
		return "The tool failed to run."
	case KindToolNotFound:
		return "The requested tool does not exist."
	case KindToolTimeout:
		return "The tool took too long to respond."
	case KindChannelUnavailable:
		return "Resumable streaming is unavailable."
	default:
		return "Something went wrong. Please try again later."
	}
}
