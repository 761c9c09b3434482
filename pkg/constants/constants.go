// Package constants defines magic numbers and default values used throughout go-rawexec
package constants

import "time"

// Version is reported in the default user-agent.
const Version = "1.0.0"

// DefaultUserAgent is added to requests that carry no user-agent header.
const DefaultUserAgent = "go-rawexec/" + Version

// Request policy defaults
const (
	DefaultExpectContinueTimeout = 1 * time.Second
	DefaultMaxRedirects          = 5
	DefaultFollowRedirects       = true

	// Bodies of known length up to this size skip the 100-continue round trip.
	ExpectContinueThreshold = 1024
)

// Connection timeouts
const (
	DefaultConnTimeout      = 10 * time.Second
	DefaultDNSTimeout       = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// HTTP/2 limits
const (
	SettingsAckTimeout      = 10 * time.Second
	DefaultHpackTableSize   = 4096
	DefaultInitialWindow    = 4 * 1024 * 1024
	DefaultMaxFrameSize     = 16 * 1024
	DefaultMaxHeaderListLen = 10 * 1024 * 1024
	InitialPeerWindow       = 65535
)

// HTTP/1.1 limits
const (
	MaxHeaderBytes   = 64 * 1024
	MaxContentLength = 1024 * 1024 * 1024 * 1024 // 1TB
	BodyCopyBuffer   = 32 * 1024
)
