package transport

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/WhileEndless/go-rawexec/pkg/constants"
	"github.com/WhileEndless/go-rawexec/pkg/errors"
	"github.com/WhileEndless/go-rawexec/pkg/http1"
	"github.com/WhileEndless/go-rawexec/pkg/http2"
	"github.com/WhileEndless/go-rawexec/pkg/tlsconfig"
)

// Protocol selection values for Config.Protocol.
const (
	ProtocolAuto  = ""
	ProtocolHTTP1 = "http/1.1"
	ProtocolHTTP2 = "http/2"
)

// Config holds dial settings.
type Config struct {
	ConnectIP   string // dial this address instead of resolving the host
	SNI         string
	DisableSNI  bool
	InsecureTLS bool
	TLSProfile  string // tlsconfig profile name, "" for the secure default
	ConnTimeout time.Duration
	DNSTimeout  time.Duration // 0 = use ConnTimeout

	// Protocol forces a wire protocol. On cleartext connections "http/2" means
	// prior-knowledge h2c.
	Protocol string

	// TLSConfig is used as the base TLS configuration when set. ALPN and ServerName
	// are still filled in per dial.
	TLSConfig *tls.Config
}

// NetDialer dials TCP (and TLS) connections and wraps them in protocol streams.
type NetDialer struct {
	Config   Config
	Resolver *net.Resolver
	Logger   *slog.Logger
}

// NewNetDialer returns a dialer using the default resolver.
func NewNetDialer(cfg Config) *NetDialer {
	return &NetDialer{Config: cfg, Resolver: net.DefaultResolver}
}

// Dial implements Dialer.
func (d *NetDialer) Dial(ctx context.Context, host string, port int, useTLS bool) (Stream, error) {
	if err := validateTarget(host, port); err != nil {
		return nil, err
	}

	addr, err := d.resolveAddress(ctx, host, port)
	if err != nil {
		return nil, err
	}

	conn, err := d.connectTCP(ctx, addr)
	if err != nil {
		return nil, errors.NewConnectionError(host, port, err)
	}

	proto := ProtocolHTTP1
	if useTLS {
		tlsConn, err := d.upgradeTLS(ctx, conn, host)
		if err != nil {
			conn.Close()
			return nil, errors.NewTLSError(host, port, err)
		}
		conn = tlsConn
		if tlsConn.ConnectionState().NegotiatedProtocol == "h2" {
			proto = ProtocolHTTP2
		} else if d.Config.Protocol == ProtocolHTTP2 {
			conn.Close()
			return nil, errors.NewTLSError(host, port, errors.NewProtocolError("server did not negotiate h2", nil))
		}
	} else if d.Config.Protocol == ProtocolHTTP2 {
		proto = ProtocolHTTP2
	}

	d.logger().Debug("connected", "host", host, "port", port, "addr", addr, "tls", useTLS, "proto", proto)

	if proto == ProtocolHTTP2 {
		s, err := http2.Open(ctx, conn)
		if err != nil {
			conn.Close()
			if errors.IsTimeoutError(err) {
				return nil, errors.NewConnectionError(host, port, err)
			}
			return nil, err
		}
		return s, nil
	}
	return http1.NewStream(conn), nil
}

func validateTarget(host string, port int) error {
	if host == "" {
		return errors.NewValidationError("host cannot be empty")
	}
	if port <= 0 || port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535")
	}
	return nil
}

func (d *NetDialer) resolveAddress(ctx context.Context, host string, port int) (string, error) {
	if d.Config.ConnectIP != "" {
		return net.JoinHostPort(d.Config.ConnectIP, strconv.Itoa(port)), nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return net.JoinHostPort(host, strconv.Itoa(port)), nil
	}

	dnsTimeout := d.Config.DNSTimeout
	if dnsTimeout <= 0 {
		dnsTimeout = d.Config.ConnTimeout
	}
	if dnsTimeout <= 0 {
		dnsTimeout = constants.DefaultDNSTimeout
	}
	ctxLookup, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	resolver := d.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctxLookup, host)
	if err != nil {
		return "", errors.NewDNSError(host, err)
	}
	if len(addrs) == 0 {
		return "", errors.NewDNSError(host, errors.NewValidationError("no IP addresses found"))
	}
	return net.JoinHostPort(addrs[0].IP.String(), strconv.Itoa(port)), nil
}

func (d *NetDialer) connectTCP(ctx context.Context, addr string) (net.Conn, error) {
	timeout := d.Config.ConnTimeout
	if timeout <= 0 {
		timeout = constants.DefaultConnTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, "tcp", addr)
}

func (d *NetDialer) upgradeTLS(ctx context.Context, conn net.Conn, host string) (*tls.Conn, error) {
	timeout := d.Config.ConnTimeout
	if timeout <= 0 {
		timeout = constants.DefaultHandshakeTimeout
	}
	tlsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg, err := d.tlsConfig(host)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(tlsCtx); err != nil {
		return nil, err
	}

	state := tlsConn.ConnectionState()
	d.logger().Debug("tls established",
		"version", tlsconfig.VersionName(state.Version),
		"cipher", tls.CipherSuiteName(state.CipherSuite),
		"alpn", state.NegotiatedProtocol)
	return tlsConn, nil
}

func (d *NetDialer) tlsConfig(host string) (*tls.Config, error) {
	var cfg *tls.Config
	if d.Config.TLSConfig != nil {
		cfg = d.Config.TLSConfig.Clone()
	} else {
		profile, err := tlsconfig.Lookup(d.Config.TLSProfile)
		if err != nil {
			return nil, err
		}
		cfg = profile.Config()
	}
	if d.Config.InsecureTLS {
		cfg.InsecureSkipVerify = true
	}
	cfg.NextProtos = alpn(d.Config.Protocol)
	if !d.Config.DisableSNI && cfg.ServerName == "" {
		cfg.ServerName = d.Config.SNI
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
	}
	return cfg, nil
}

func alpn(protocol string) []string {
	switch protocol {
	case ProtocolHTTP1:
		return []string{"http/1.1"}
	case ProtocolHTTP2:
		return []string{"h2"}
	}
	return []string{"h2", "http/1.1"}
}

func (d *NetDialer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return discard
}

var discard = slog.New(slog.DiscardHandler)
