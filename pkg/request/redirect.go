package request

import (
	"strings"

	"github.com/WhileEndless/go-rawexec/pkg/errors"
	"github.com/WhileEndless/go-rawexec/pkg/header"
	"github.com/WhileEndless/go-rawexec/pkg/uri"
)

// Headers describing the body that a downgrade to GET removes.
var bodyHeaders = []string{
	"transfer-encoding",
	"content-length",
	"content-encoding",
	"content-language",
	"content-location",
	"content-type",
}

// Credentials that never follow a redirect to another host:port.
var credentialHeaders = []string{
	"authorization",
	"proxy-authorization",
	"cookie",
}

// IsRedirect reports whether status is in the 3xx class.
func IsRedirect(status int) bool {
	return status/100 == 3
}

// ResolveRedirect builds the follow-up request for a 3xx response to original. The
// result shares no header state with original; its redirect budget is one lower.
func ResolveRedirect(original *Request, resp *header.Header) (*Request, error) {
	location, hasLocation := resp.Lookup("location")
	if original.Policy.MaxRedirects <= 0 {
		return nil, errors.NewRedirectLimitError(location)
	}
	status := resp.StatusCode()
	if !hasLocation || strings.TrimSpace(location) == "" {
		return nil, errors.NewMissingLocationError(status)
	}

	ref, err := uri.ParseReference(location)
	if err != nil {
		return nil, err
	}
	target, err := resolveReference(original, ref)
	if err != nil {
		return nil, err
	}

	h := original.Header.Clone()
	if !strings.EqualFold(target.Host, original.Host) || targetPort(target) != original.Port {
		for _, name := range credentialHeaders {
			h.Del(name)
		}
	}

	next, err := BuildFromURI(target, h)
	if err != nil {
		return nil, err
	}

	next.Policy = original.Policy
	next.Policy.MaxRedirects = original.Policy.MaxRedirects - 1

	if original.UseTLS && !next.UseTLS {
		next.Header.Del("referer")
	} else {
		next.Header.Set("referer", original.URL())
	}

	next.Body = original.Body

	if original.Method() == "POST" && downgrades(status, original.Policy) {
		next.Header.Set(header.Method, "GET")
		for _, name := range bodyHeaders {
			next.Header.Del(name)
		}
		next.Header.DelFunc("expect", isContinue)
		next.Body = NoBody
	}
	return next, nil
}

// downgrades reports whether a POST answered with status turns into a bodiless GET.
func downgrades(status int, p Policy) bool {
	switch status {
	case 303:
		return true
	case 301:
		return !p.Treat301AsPost
	case 302:
		return !p.Treat302AsPost
	}
	return false
}

// resolveReference applies scheme, authority and path inheritance from original to ref.
func resolveReference(original *Request, ref *uri.URI) (*uri.URI, error) {
	base := original.targetURI()
	out := &uri.URI{
		Scheme:   ref.Scheme,
		Query:    ref.Query,
		HasQuery: ref.HasQuery,
	}
	if out.Scheme == "" {
		out.Scheme = base.Scheme
	}

	if ref.Host != "" {
		out.Host, out.Port, out.UserInfo = ref.Host, ref.Port, ref.UserInfo
		out.Path = uri.RemoveDotSegments(uri.EncodePath(ref.Path))
		return out, nil
	}

	host, port, err := uri.SplitAuthority(original.Authority(), base.Scheme)
	if err != nil {
		return nil, err
	}
	out.Host, out.Port = host, port

	switch {
	case ref.Path != "":
		out.Path = uri.MergePath(base.Path, uri.EncodePath(ref.Path))
	default:
		out.Path = base.Path
		if !ref.HasQuery {
			out.Query, out.HasQuery = base.Query, base.HasQuery
		}
	}
	return out, nil
}

func targetPort(u *uri.URI) int {
	if u.Port != 0 {
		return u.Port
	}
	p, _ := uri.DefaultPort(u.Scheme)
	return p
}
