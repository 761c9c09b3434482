// Package uri parses request targets and redirect references into the structured form
// the request builder consumes, and implements the RFC 3986 helpers redirects need.
package uri

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-rawexec/pkg/errors"
	"golang.org/x/net/idna"
)

// URI is a parsed absolute URI or URI-reference. Path, Query and UserInfo hold the
// escaped form as written.
type URI struct {
	Scheme   string
	Host     string // without IPv6 brackets, ASCII (IDNA) form
	Port     int    // 0 when absent
	Path     string
	Query    string // without the leading '?'
	HasQuery bool   // true for "?" with an empty query too
	UserInfo string
}

var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
	"ws":    80,
	"wss":   443,
}

// DefaultPort returns the well-known port of scheme.
func DefaultPort(scheme string) (int, bool) {
	p, ok := defaultPorts[strings.ToLower(scheme)]
	return p, ok
}

// IsSecure reports whether scheme requires an encrypted transport.
func IsSecure(scheme string) bool {
	s := strings.ToLower(scheme)
	return s == "https" || s == "wss"
}

// Parse parses an absolute URI. A scheme is required; the host is not checked here.
func Parse(raw string) (*URI, error) {
	u, err := parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		return nil, errors.NewInvalidURIError(raw, "missing scheme", nil)
	}
	return u, nil
}

// ParseReference parses a URI-reference; scheme and host are optional.
func ParseReference(raw string) (*URI, error) {
	return parse(raw)
}

func parse(raw string) (*URI, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.NewInvalidURIError(raw, "unparsable", err)
	}
	if u.Opaque != "" {
		return nil, errors.NewInvalidURIError(raw, "opaque URIs are not supported", nil)
	}

	out := &URI{
		Scheme:   strings.ToLower(u.Scheme),
		Path:     u.EscapedPath(),
		Query:    u.RawQuery,
		HasQuery: u.ForceQuery || u.RawQuery != "",
	}
	if u.User != nil {
		out.UserInfo = u.User.String()
	}

	host := u.Hostname()
	if host != "" && !isASCII(host) {
		host, err = idna.Lookup.ToASCII(host)
		if err != nil {
			return nil, errors.NewInvalidURIError(raw, "invalid internationalized host", err)
		}
	}
	out.Host = host

	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return nil, errors.NewInvalidURIError(raw, "invalid port", err)
		}
		out.Port = n
	}
	return out, nil
}

// Authority returns the canonical host[:port] form for u.
func (u *URI) Authority() string {
	return JoinAuthority(u.Host, u.Port, u.Scheme)
}

// String reassembles u.
func (u *URI) String() string {
	var b strings.Builder
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteString(":")
	}
	if u.Host != "" {
		b.WriteString("//")
		if u.UserInfo != "" {
			b.WriteString(u.UserInfo)
			b.WriteString("@")
		}
		b.WriteString(u.Authority())
	}
	b.WriteString(u.Path)
	if u.HasQuery {
		b.WriteString("?")
		b.WriteString(u.Query)
	}
	return b.String()
}

// JoinAuthority formats host and port, leaving the port out when it is the scheme's
// default or zero. IPv6 literals are bracketed.
func JoinAuthority(host string, port int, scheme string) string {
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if def, ok := DefaultPort(scheme); port == 0 || (ok && port == def) {
		return host
	}
	return host + ":" + strconv.Itoa(port)
}

// SplitAuthority splits an authority into host and port. A missing port resolves to
// the default port of scheme.
func SplitAuthority(authority, scheme string) (string, int, error) {
	if i := strings.LastIndex(authority, "@"); i >= 0 {
		authority = authority[i+1:]
	}
	if authority == "" {
		return "", 0, errors.NewInvalidURIError(authority, "empty authority", nil)
	}

	host, portStr := authority, ""
	if strings.HasPrefix(authority, "[") {
		end := strings.Index(authority, "]")
		if end < 0 {
			return "", 0, errors.NewInvalidURIError(authority, "unterminated IPv6 literal", nil)
		}
		host = authority[1:end]
		rest := authority[end+1:]
		switch {
		case strings.HasPrefix(rest, ":"):
			portStr = rest[1:]
		case rest != "":
			return "", 0, errors.NewInvalidURIError(authority, "garbage after IPv6 literal", nil)
		}
	} else if i := strings.LastIndex(authority, ":"); i >= 0 {
		host, portStr = authority[:i], authority[i+1:]
	}
	if host == "" {
		return "", 0, errors.NewInvalidURIError(authority, "missing host", nil)
	}

	if portStr == "" {
		port, _ := DefaultPort(scheme)
		return host, port, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, errors.NewInvalidURIError(authority, "invalid port", err)
	}
	return host, port, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
