package main

import (
	stderrors "errors"

	"github.com/WhileEndless/go-rawexec/pkg/errors"
)

// Exit codes for the rawexec CLI
const (
	// ExitSuccess indicates the request completed
	ExitSuccess = 0

	// ExitFailure indicates a transmit, receive or protocol failure
	ExitFailure = 1

	// ExitConfigError indicates the config file could not be loaded
	ExitConfigError = 3

	// ExitNetworkError indicates a DNS, connection or TLS error
	ExitNetworkError = 4

	// ExitTimeout indicates the overall timeout expired
	ExitTimeout = 5

	// ExitRedirectError indicates the redirect budget ran out or a location was missing
	ExitRedirectError = 6

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError pins an exit code on err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExit(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	var ee *exitError
	if stderrors.As(err, &ee) {
		return ee.code
	}
	switch {
	case errors.IsConnectError(err):
		return ExitNetworkError
	case errors.IsTimeoutError(err):
		return ExitTimeout
	}
	switch errors.GetErrorType(err) {
	case errors.ErrorTypeRedirectLimit, errors.ErrorTypeMissingLocation:
		return ExitRedirectError
	case errors.ErrorTypeInvalidURI, errors.ErrorTypeInvalidRequest, errors.ErrorTypeValidation:
		return ExitUsageError
	}
	return ExitFailure
}
