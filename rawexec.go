// Package rawexec executes HTTP requests over raw HTTP/1.1 and HTTP/2 streams with
// explicit control of 100-continue gating, redirects and a single overall deadline.
package rawexec

import (
	"context"
	"time"

	"github.com/WhileEndless/go-rawexec/pkg/client"
	"github.com/WhileEndless/go-rawexec/pkg/constants"
	"github.com/WhileEndless/go-rawexec/pkg/errors"
	"github.com/WhileEndless/go-rawexec/pkg/header"
	"github.com/WhileEndless/go-rawexec/pkg/request"
	"github.com/WhileEndless/go-rawexec/pkg/timing"
	"github.com/WhileEndless/go-rawexec/pkg/transport"
	"github.com/WhileEndless/go-rawexec/pkg/uri"
)

// Version is the current version of the rawexec library
const Version = constants.Version

// GetVersion returns the current version of the library
func GetVersion() string {
	return Version
}

// Re-export key types for easier usage
type (
	// Client executes requests.
	Client = client.Client

	// Options controls how a Client opens streams.
	Options = client.Options

	// Response is the final response of an execution.
	Response = client.Response

	// Request is one outbound request.
	Request = request.Request

	// Policy controls redirects and 100-continue handling.
	Policy = request.Policy

	// Body is a request body.
	Body = request.Body

	// Header is an ordered header collection including pseudo headers.
	Header = header.Header

	// TransportConfig holds dial settings.
	TransportConfig = transport.Config

	// Metrics captures per-phase timing.
	Metrics = timing.Metrics

	// Error represents a structured error with context information.
	Error = errors.Error
)

// Re-export error types for convenience
const (
	ErrorTypeInvalidURI      = errors.ErrorTypeInvalidURI
	ErrorTypeInvalidRequest  = errors.ErrorTypeInvalidRequest
	ErrorTypeRedirectLimit   = errors.ErrorTypeRedirectLimit
	ErrorTypeMissingLocation = errors.ErrorTypeMissingLocation
	ErrorTypeDNS             = errors.ErrorTypeDNS
	ErrorTypeConnection      = errors.ErrorTypeConnection
	ErrorTypeTLS             = errors.ErrorTypeTLS
	ErrorTypeTransmit        = errors.ErrorTypeTransmit
	ErrorTypeReceive         = errors.ErrorTypeReceive
	ErrorTypeTimeout         = errors.ErrorTypeTimeout
	ErrorTypeProtocol        = errors.ErrorTypeProtocol
	ErrorTypeIO              = errors.ErrorTypeIO
	ErrorTypeValidation      = errors.ErrorTypeValidation
)

// Body constructors.
var (
	NoBody     = request.NoBody
	BytesBody  = request.BytesBody
	StringBody = request.StringBody
	ReaderBody = request.ReaderBody
	FuncBody   = request.FuncBody
)

// New returns a Client.
func New(opts Options) *Client {
	return client.New(opts)
}

// NewRequest parses rawURL and builds a request with the given method.
func NewRequest(method, rawURL string) (*Request, error) {
	return request.NewRequest(method, rawURL)
}

// NewConnect builds a CONNECT request for authority sent to the proxy at proxyURL.
func NewConnect(proxyURL, authority string) (*Request, error) {
	u, err := uri.Parse(proxyURL)
	if err != nil {
		return nil, err
	}
	return request.BuildConnect(u, authority)
}

// AttachBody sets body on req with the matching content-length and expect headers.
func AttachBody(req *Request, body Body) {
	request.AttachBody(req, body)
}

// DefaultPolicy returns the default execution policy.
func DefaultPolicy() Policy {
	return request.DefaultPolicy()
}

// Execute runs req with a default Client.
func Execute(ctx context.Context, req *Request, timeout time.Duration) (*Response, error) {
	return client.New(Options{}).Execute(ctx, req, timeout)
}

// IsTimeoutError checks if an error is a timeout error.
func IsTimeoutError(err error) bool {
	return errors.IsTimeoutError(err)
}

// IsConnectError reports DNS, TCP and TLS failures.
func IsConnectError(err error) bool {
	return errors.IsConnectError(err)
}

// GetErrorType returns the error type if it's a structured error.
func GetErrorType(err error) string {
	return string(errors.GetErrorType(err))
}
