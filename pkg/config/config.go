// Package config loads rawexec settings from YAML and applies them to requests and
// the network dialer.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/WhileEndless/go-rawexec/pkg/constants"
	"github.com/WhileEndless/go-rawexec/pkg/errors"
	"github.com/WhileEndless/go-rawexec/pkg/request"
	"github.com/WhileEndless/go-rawexec/pkg/tlsconfig"
	"github.com/WhileEndless/go-rawexec/pkg/transport"
	"gopkg.in/yaml.v3"
)

// Config is the file representation of execution settings. Zero and nil fields keep
// the library defaults.
type Config struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout,omitempty"`
	DNSTimeout            time.Duration `yaml:"dns_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`

	FollowRedirects *bool `yaml:"follow_redirects,omitempty"`
	MaxRedirects    *int  `yaml:"max_redirects,omitempty"`
	Treat301AsPost  *bool `yaml:"treat_301_as_post,omitempty"`
	Treat302AsPost  *bool `yaml:"treat_302_as_post,omitempty"`

	Protocol    string `yaml:"protocol,omitempty"` // "", "http/1.1" or "http/2"
	InsecureTLS *bool  `yaml:"insecure_tls,omitempty"`
	TLSProfile  string `yaml:"tls_profile,omitempty"`
	SNI         string `yaml:"sni,omitempty"`
	ConnectIP   string `yaml:"connect_ip,omitempty"`

	// Proxy is an http:// or https:// proxy used by the connect command.
	Proxy string `yaml:"proxy,omitempty"`

	UserAgent string            `yaml:"user_agent,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// Filenames are searched, in order, by Find.
var Filenames = []string{
	".rawexec.yaml",
	".rawexec.yml",
	"rawexec.yaml",
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}

func getBool(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// GetFollowRedirects defaults to true.
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, constants.DefaultFollowRedirects)
}

// GetMaxRedirects defaults to 5.
func (c *Config) GetMaxRedirects() int {
	if c.MaxRedirects == nil {
		return constants.DefaultMaxRedirects
	}
	return *c.MaxRedirects
}

// GetExpectContinueTimeout defaults to one second.
func (c *Config) GetExpectContinueTimeout() time.Duration {
	if c.ExpectContinueTimeout <= 0 {
		return constants.DefaultExpectContinueTimeout
	}
	return c.ExpectContinueTimeout
}

// GetTreat301AsPost defaults to false.
func (c *Config) GetTreat301AsPost() bool {
	return getBool(c.Treat301AsPost, false)
}

// GetTreat302AsPost defaults to false.
func (c *Config) GetTreat302AsPost() bool {
	return getBool(c.Treat302AsPost, false)
}

// GetInsecureTLS defaults to false.
func (c *Config) GetInsecureTLS() bool {
	return getBool(c.InsecureTLS, false)
}

// GetUserAgent defaults to the library user agent.
func (c *Config) GetUserAgent() string {
	if c.UserAgent == "" {
		return constants.DefaultUserAgent
	}
	return c.UserAgent
}

// Load reads path, or searches the working directory when path is empty. A missing
// file in the search case yields an empty Config.
func Load(path string) (*Config, error) {
	if path != "" {
		return loadFile(path)
	}
	return Find(".")
}

// Find loads the first of Filenames present in dir.
func Find(dir string) (*Config, error) {
	for _, name := range Filenames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return loadFile(p)
		}
	}
	return &Config{}, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("reading config "+path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and validates the result.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.NewValidationError("invalid config").WithCause(err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks enumerated and ranged fields.
func (c *Config) Validate() error {
	switch c.Protocol {
	case transport.ProtocolAuto, transport.ProtocolHTTP1, transport.ProtocolHTTP2:
	default:
		return errors.NewValidationError("protocol must be http/1.1 or http/2, got " + c.Protocol)
	}
	if c.MaxRedirects != nil && *c.MaxRedirects < 0 {
		return errors.NewValidationError("max_redirects cannot be negative")
	}
	if c.Timeout < 0 || c.ConnectTimeout < 0 || c.DNSTimeout < 0 || c.ExpectContinueTimeout < 0 {
		return errors.NewValidationError("timeouts cannot be negative")
	}
	if c.TLSProfile != "" {
		if _, err := tlsconfig.Lookup(c.TLSProfile); err != nil {
			return err
		}
	}
	if c.Proxy != "" {
		if _, err := ParseProxyURL(c.Proxy); err != nil {
			return err
		}
	}
	return nil
}

// Merge returns c overlaid with the fields set in other.
func (c *Config) Merge(other *Config) *Config {
	out := *c
	if other == nil {
		return &out
	}
	if other.Timeout > 0 {
		out.Timeout = other.Timeout
	}
	if other.ConnectTimeout > 0 {
		out.ConnectTimeout = other.ConnectTimeout
	}
	if other.DNSTimeout > 0 {
		out.DNSTimeout = other.DNSTimeout
	}
	if other.ExpectContinueTimeout > 0 {
		out.ExpectContinueTimeout = other.ExpectContinueTimeout
	}
	if other.FollowRedirects != nil {
		out.FollowRedirects = other.FollowRedirects
	}
	if other.MaxRedirects != nil {
		out.MaxRedirects = other.MaxRedirects
	}
	if other.Treat301AsPost != nil {
		out.Treat301AsPost = other.Treat301AsPost
	}
	if other.Treat302AsPost != nil {
		out.Treat302AsPost = other.Treat302AsPost
	}
	if other.InsecureTLS != nil {
		out.InsecureTLS = other.InsecureTLS
	}
	mergeString(&out.Protocol, other.Protocol)
	mergeString(&out.TLSProfile, other.TLSProfile)
	mergeString(&out.SNI, other.SNI)
	mergeString(&out.ConnectIP, other.ConnectIP)
	mergeString(&out.Proxy, other.Proxy)
	mergeString(&out.UserAgent, other.UserAgent)
	if len(other.Headers) > 0 {
		out.Headers = make(map[string]string, len(c.Headers)+len(other.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
		for k, v := range other.Headers {
			out.Headers[k] = v
		}
	}
	return &out
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// Policy returns the execution policy described by c.
func (c *Config) Policy() request.Policy {
	return request.Policy{
		ExpectContinueTimeout: c.GetExpectContinueTimeout(),
		FollowRedirects:       c.GetFollowRedirects(),
		MaxRedirects:          c.GetMaxRedirects(),
		Treat301AsPost:        c.GetTreat301AsPost(),
		Treat302AsPost:        c.GetTreat302AsPost(),
	}
}

// Apply sets the policy, user agent and default headers on req. Headers already present
// on req are kept.
func (c *Config) Apply(req *request.Request) {
	req.Policy = c.Policy()
	if c.UserAgent != "" {
		req.Header.Set("user-agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if !req.Header.Has(k) {
			req.Header.Add(k, v)
		}
	}
}

// TransportConfig returns the dialer settings described by c.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		ConnectIP:   c.ConnectIP,
		SNI:         c.SNI,
		InsecureTLS: c.GetInsecureTLS(),
		TLSProfile:  c.TLSProfile,
		ConnTimeout: c.ConnectTimeout,
		DNSTimeout:  c.DNSTimeout,
		Protocol:    c.Protocol,
	}
}
