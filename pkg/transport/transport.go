// Package transport defines the stream contract the execution driver runs requests
// over and provides a network dialer producing HTTP/1.1 and HTTP/2 streams.
package transport

import (
	"context"
	"io"

	"github.com/WhileEndless/go-rawexec/pkg/header"
)

// Stream is one request/response exchange. Calls are made sequentially by a single
// caller; ctx bounds each blocking call.
type Stream interface {
	// WriteHeaders sends the request header block. endStream half-closes the send side.
	WriteHeaders(ctx context.Context, h *header.Header, endStream bool) error

	// ReadHeaders returns the next response header block, informational ones included.
	ReadHeaders(ctx context.Context) (*header.Header, error)

	// WriteBodyFromBuffer sends p as the whole body and ends the stream.
	WriteBodyFromBuffer(ctx context.Context, p []byte) error

	// WriteBodyFromReader streams r as the whole body and ends the stream.
	WriteBodyFromReader(ctx context.Context, r io.Reader) error

	// WriteChunk sends one body chunk. final ends the stream; p may be empty then.
	WriteChunk(ctx context.Context, p []byte, final bool) error

	// Read reads the response body after the final headers.
	io.Reader

	// Shutdown releases the stream and its connection. It is safe to call twice.
	Shutdown() error
}

// Dialer opens streams.
type Dialer interface {
	Dial(ctx context.Context, host string, port int, useTLS bool) (Stream, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, host string, port int, useTLS bool) (Stream, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, host string, port int, useTLS bool) (Stream, error) {
	return f(ctx, host, port, useTLS)
}
