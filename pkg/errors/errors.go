// Package errors provides structured error types for the rawexec engine.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ErrorType represents the category of error that occurred.
type ErrorType string

const (
	// ErrorTypeInvalidURI represents an unusable request or redirect target
	ErrorTypeInvalidURI ErrorType = "invalid_uri"
	// ErrorTypeInvalidRequest represents a malformed CONNECT request
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	// ErrorTypeRedirectLimit represents an exhausted redirect budget
	ErrorTypeRedirectLimit ErrorType = "redirect_limit_exceeded"
	// ErrorTypeMissingLocation represents a redirect response without a location header
	ErrorTypeMissingLocation ErrorType = "missing_location"
	// ErrorTypeDNS represents DNS resolution errors
	ErrorTypeDNS ErrorType = "dns"
	// ErrorTypeConnection represents TCP connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeTLS represents TLS handshake errors
	ErrorTypeTLS ErrorType = "tls"
	// ErrorTypeTransmit represents failures while sending headers or body
	ErrorTypeTransmit ErrorType = "transmit"
	// ErrorTypeReceive represents failures while reading response headers
	ErrorTypeReceive ErrorType = "receive"
	// ErrorTypeTimeout represents deadline exhaustion
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeProtocol represents HTTP protocol errors
	ErrorTypeProtocol ErrorType = "protocol"
	// ErrorTypeIO represents I/O errors
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
)

// Error represents a structured error with context information.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Cause     error     `json:"cause,omitempty"`
	Host      string    `json:"host,omitempty"`
	Port      int       `json:"port,omitempty"`
	Code      string    `json:"code,omitempty"` // transport specific code, e.g. an HTTP/2 error code
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Code != "" {
		msg += " (code " + e.Code + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target type.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Type == t.Type
	}
	return false
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{
		Type:      t,
		Message:   message,
		Cause:     cause,
		Code:      CodeOf(cause),
		Timestamp: time.Now(),
	}
}

// NewInvalidURIError creates an error for a URI that cannot be turned into a request.
func NewInvalidURIError(uri, reason string, cause error) *Error {
	return newError(ErrorTypeInvalidURI, fmt.Sprintf("invalid URI %q: %s", uri, reason), cause)
}

// NewInvalidRequestError creates an error for a request shape violation.
func NewInvalidRequestError(message string) *Error {
	return newError(ErrorTypeInvalidRequest, message, nil)
}

// NewRedirectLimitError creates an error for an exhausted redirect budget.
func NewRedirectLimitError(location string) *Error {
	return newError(ErrorTypeRedirectLimit, fmt.Sprintf("redirect limit reached before following %q", location), nil)
}

// NewMissingLocationError creates an error for a redirect status without location.
func NewMissingLocationError(status int) *Error {
	return newError(ErrorTypeMissingLocation, fmt.Sprintf("status %d response carries no location header", status), nil)
}

// NewDNSError creates a DNS resolution error.
func NewDNSError(host string, cause error) *Error {
	e := newError(ErrorTypeDNS, fmt.Sprintf("DNS lookup failed for host %s", host), cause)
	e.Host = host
	return e
}

// NewConnectionError creates a connection error.
func NewConnectionError(host string, port int, cause error) *Error {
	e := newError(ErrorTypeConnection, fmt.Sprintf("failed to connect to %s:%d", host, port), cause)
	e.Host = host
	e.Port = port
	return e
}

// NewTLSError creates a TLS handshake error.
func NewTLSError(host string, port int, cause error) *Error {
	e := newError(ErrorTypeTLS, fmt.Sprintf("TLS handshake failed for %s:%d", host, port), cause)
	e.Host = host
	e.Port = port
	return e
}

// NewTransmitError creates an error for a failed send operation.
func NewTransmitError(operation string, cause error) *Error {
	return newError(ErrorTypeTransmit, fmt.Sprintf("sending %s failed", operation), cause)
}

// NewReceiveError creates an error for a failed receive operation.
func NewReceiveError(operation string, cause error) *Error {
	return newError(ErrorTypeReceive, fmt.Sprintf("receiving %s failed", operation), cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(operation string, timeout time.Duration) *Error {
	if timeout <= 0 {
		return newError(ErrorTypeTimeout, fmt.Sprintf("%s timed out", operation), nil)
	}
	return newError(ErrorTypeTimeout, fmt.Sprintf("%s timed out after %v", operation, timeout), nil)
}

// NewProtocolError creates a protocol error.
func NewProtocolError(message string, cause error) *Error {
	return newError(ErrorTypeProtocol, message, cause)
}

// NewStreamError creates a protocol error carrying a transport error code.
func NewStreamError(message, code string) *Error {
	e := newError(ErrorTypeProtocol, message, nil)
	e.Code = code
	return e
}

// NewIOError creates an I/O error.
func NewIOError(operation string, cause error) *Error {
	return newError(ErrorTypeIO, fmt.Sprintf("I/O error during %s", operation), cause)
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *Error {
	return newError(ErrorTypeValidation, message, nil)
}

// WithCause attaches cause to e and returns e.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	if e.Code == "" {
		e.Code = CodeOf(cause)
	}
	return e
}

// IsTimeoutError checks if an error is a timeout error.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) && e.Type == ErrorTypeTimeout {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// IsConnectError reports whether err belongs to the connect class (DNS, TCP, TLS).
func IsConnectError(err error) bool {
	switch GetErrorType(err) {
	case ErrorTypeDNS, ErrorTypeConnection, ErrorTypeTLS:
		return true
	}
	return false
}

// GetErrorType returns the error type if it's a structured error.
func GetErrorType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// CodeOf returns the transport code carried by the first structured error in the chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsContextCanceled checks if an error is due to context cancellation.
func IsContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsContextTimeout checks if an error is due to context deadline exceeded.
func IsContextTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
