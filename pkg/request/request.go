// Package request holds the outbound request record and the operations that create
// and derive it: building from a URI, attaching a body and resolving redirects.
package request

import (
	"strings"
	"time"

	"github.com/WhileEndless/go-rawexec/pkg/constants"
	"github.com/WhileEndless/go-rawexec/pkg/header"
	"github.com/WhileEndless/go-rawexec/pkg/uri"
)

// Policy controls how a request is executed. It is copied by value into every request
// derived from a redirect.
type Policy struct {
	// ExpectContinueTimeout bounds the wait for "100 Continue" (default 1s).
	ExpectContinueTimeout time.Duration

	// FollowRedirects enables automatic redirect handling (default true).
	FollowRedirects bool

	// MaxRedirects is the remaining redirect budget (default 5).
	MaxRedirects int

	// Treat301AsPost keeps POST and its body on 301 (default false: downgrade to GET).
	Treat301AsPost bool

	// Treat302AsPost keeps POST and its body on 302 (default false: downgrade to GET).
	Treat302AsPost bool
}

// DefaultPolicy returns the documented defaults.
func DefaultPolicy() Policy {
	return Policy{
		ExpectContinueTimeout: constants.DefaultExpectContinueTimeout,
		FollowRedirects:       constants.DefaultFollowRedirects,
		MaxRedirects:          constants.DefaultMaxRedirects,
	}
}

// Request is one outbound request. Host, Port and UseTLS are the dial target and stay
// consistent with the :scheme and :authority pseudo headers.
type Request struct {
	Host   string
	Port   int
	UseTLS bool

	Header *header.Header
	Body   Body
	Policy Policy
}

// Method returns the :method pseudo header.
func (r *Request) Method() string {
	return r.Header.Method()
}

// IsConnect reports whether r has the CONNECT shape.
func (r *Request) IsConnect() bool {
	return r.Header.Method() == "CONNECT"
}

// Scheme returns the :scheme pseudo header.
func (r *Request) Scheme() string {
	return r.Header.Get(header.Scheme)
}

// Authority returns the :authority pseudo header.
func (r *Request) Authority() string {
	return r.Header.Get(header.Authority)
}

// Path returns the :path pseudo header, query included.
func (r *Request) Path() string {
	return r.Header.Get(header.Path)
}

// URL reconstructs the absolute URL from the pseudo headers. CONNECT requests have
// no URL form and return the authority.
func (r *Request) URL() string {
	if r.IsConnect() {
		return r.Authority()
	}
	return r.Scheme() + "://" + r.Authority() + r.Path()
}

// splitTarget separates the path and query parts of a :path value.
func splitTarget(target string) (path, query string, hasQuery bool) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:], true
	}
	return target, "", false
}

// targetURI returns the structured form of the request target.
func (r *Request) targetURI() *uri.URI {
	p, q, hasQ := splitTarget(r.Path())
	return &uri.URI{
		Scheme:   r.Scheme(),
		Host:     r.Host,
		Port:     r.Port,
		Path:     p,
		Query:    q,
		HasQuery: hasQ,
	}
}
