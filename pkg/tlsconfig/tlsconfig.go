// Package tlsconfig provides named TLS version profiles for the network dialer.
package tlsconfig

import (
	"crypto/tls"
	"sort"
	"strings"

	"github.com/WhileEndless/go-rawexec/pkg/errors"
)

// Profile is a pre-configured TLS version range.
type Profile struct {
	Name         string
	Min          uint16
	Max          uint16
	CipherSuites []uint16 // nil lets crypto/tls choose
	Description  string
}

// TLS 1.2 suites with forward secrecy and AEAD.
var cipherSuitesTLS12Secure = []uint16{
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

var (
	// ProfileModern allows TLS 1.3 only.
	ProfileModern = Profile{
		Name:        "modern",
		Min:         tls.VersionTLS13,
		Max:         tls.VersionTLS13,
		Description: "TLS 1.3 only",
	}

	// ProfileSecure allows TLS 1.2 and 1.3. It is the default.
	ProfileSecure = Profile{
		Name:         "secure",
		Min:          tls.VersionTLS12,
		Max:          tls.VersionTLS13,
		CipherSuites: cipherSuitesTLS12Secure,
		Description:  "TLS 1.2+ with AEAD suites",
	}

	// ProfileCompatible also accepts the deprecated TLS 1.0 and 1.1.
	ProfileCompatible = Profile{
		Name:        "compatible",
		Min:         tls.VersionTLS10,
		Max:         tls.VersionTLS13,
		Description: "TLS 1.0+, includes deprecated versions",
	}
)

var profiles = map[string]Profile{
	ProfileModern.Name:     ProfileModern,
	ProfileSecure.Name:     ProfileSecure,
	ProfileCompatible.Name: ProfileCompatible,
}

// Lookup returns the profile called name. The empty name selects ProfileSecure.
func Lookup(name string) (Profile, error) {
	if name == "" {
		return ProfileSecure, nil
	}
	p, ok := profiles[strings.ToLower(name)]
	if !ok {
		return Profile{}, errors.NewValidationError("unknown TLS profile " + name + " (want one of " + strings.Join(Names(), ", ") + ")")
	}
	return p, nil
}

// Names lists the known profile names.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Config returns a fresh tls.Config restricted to the profile.
func (p Profile) Config() *tls.Config {
	return &tls.Config{
		MinVersion:   p.Min,
		MaxVersion:   p.Max,
		CipherSuites: p.CipherSuites,
	}
}

// VersionName returns a human-readable name for a TLS version.
func VersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "Unknown"
	}
}

// IsVersionDeprecated reports whether version is older than TLS 1.2.
func IsVersionDeprecated(version uint16) bool {
	return version < tls.VersionTLS12
}
