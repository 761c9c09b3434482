package request

import (
	"encoding/base64"
	"strings"

	"github.com/WhileEndless/go-rawexec/pkg/constants"
	"github.com/WhileEndless/go-rawexec/pkg/errors"
	"github.com/WhileEndless/go-rawexec/pkg/header"
	"github.com/WhileEndless/go-rawexec/pkg/uri"
)

// BuildFromURI turns a parsed URI into a request. h may be nil, in which case a GET is
// built; a supplied collection is used as is and marks a CONNECT request when its
// :method is CONNECT. For CONNECT, u is the proxy the tunnel is requested from.
func BuildFromURI(u *uri.URI, h *header.Header) (*Request, error) {
	if u == nil {
		return nil, errors.NewInvalidURIError("", "nil URI", nil)
	}
	defPort, ok := uri.DefaultPort(u.Scheme)
	if !ok {
		return nil, errors.NewInvalidURIError(u.String(), "unsupported scheme "+u.Scheme, nil)
	}
	if u.Host == "" {
		return nil, errors.NewInvalidURIError(u.String(), "missing host", nil)
	}

	if h == nil {
		h = header.New()
		h.Set(header.Method, "GET")
	}
	connect := h.Method() == "CONNECT"

	if connect {
		switch {
		case u.Path != "":
			return nil, errors.NewInvalidRequestError("CONNECT target must not carry a path")
		case u.HasQuery:
			return nil, errors.NewInvalidRequestError("CONNECT target must not carry a query")
		case !h.Has(header.Authority):
			return nil, errors.NewInvalidRequestError("CONNECT requires :authority")
		}
		h.Del(header.Path)
		h.Del(header.Scheme)
	} else {
		target := uri.EncodePath(u.Path)
		if target == "" {
			target = "/"
		}
		if u.HasQuery {
			target += "?" + uri.EncodeQuery(u.Query)
		}
		h.Set(header.Authority, uri.JoinAuthority(u.Host, u.Port, u.Scheme))
		h.Set(header.Path, target)
		h.Set(header.Scheme, u.Scheme)
	}

	if u.UserInfo != "" {
		name := "authorization"
		if connect {
			name = "proxy-authorization"
		}
		h.Set(name, "Basic "+base64.StdEncoding.EncodeToString([]byte(u.UserInfo)))
	}
	if !h.Has("user-agent") {
		h.Add("user-agent", constants.DefaultUserAgent)
	}

	port := u.Port
	if port == 0 {
		port = defPort
	}
	return &Request{
		Host:   u.Host,
		Port:   port,
		UseTLS: uri.IsSecure(u.Scheme),
		Header: h,
		Policy: DefaultPolicy(),
	}, nil
}

// BuildConnect builds a CONNECT request for authority (host:port of the tunnel target)
// sent to the proxy at u.
func BuildConnect(u *uri.URI, authority string) (*Request, error) {
	if authority == "" {
		return nil, errors.NewInvalidRequestError("CONNECT requires :authority")
	}
	_, port, err := uri.SplitAuthority(authority, "")
	if err != nil {
		return nil, err
	}
	if port == 0 {
		return nil, errors.NewInvalidRequestError("CONNECT authority needs a port: " + authority)
	}
	h := header.New()
	h.Add(header.Method, "CONNECT")
	h.Add(header.Authority, authority)
	return BuildFromURI(u, h)
}

// NewRequest parses rawURL and builds a request with the given method.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := uri.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	h := header.New()
	h.Add(header.Method, strings.ToUpper(method))
	if h.Method() == "CONNECT" {
		return nil, errors.NewInvalidRequestError("use BuildConnect for CONNECT requests")
	}
	return BuildFromURI(u, h)
}
