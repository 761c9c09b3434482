// Package http1 implements the HTTP/1.1 wire form of a request stream: the header
// block becomes a request line plus fields, bodies are sent raw or chunked and the
// response is parsed incrementally so the caller can read the body itself.
package http1

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http/httputil"
	"net/textproto"
	"strconv"
	"strings"
	"sync"

	"github.com/WhileEndless/go-rawexec/pkg/constants"
	"github.com/WhileEndless/go-rawexec/pkg/errors"
	"github.com/WhileEndless/go-rawexec/pkg/header"
	"github.com/WhileEndless/go-rawexec/pkg/timing"
	"golang.org/x/net/http/httpguts"
)

// Stream is an HTTP/1.1 exchange over one connection.
type Stream struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer

	method  string
	chunked bool
	cw      io.WriteCloser

	body io.Reader

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps an established connection.
func NewStream(conn net.Conn) *Stream {
	return &Stream{
		conn: conn,
		br:   bufio.NewReader(conn),
		bw:   bufio.NewWriter(conn),
	}
}

// Proto returns the wire protocol name.
func (s *Stream) Proto() string { return "HTTP/1.1" }

// WriteHeaders serializes h as a request line and header fields.
func (s *Stream) WriteHeaders(ctx context.Context, h *header.Header, endStream bool) error {
	release := timing.BindConn(ctx, s.conn)
	defer release()

	s.method = h.Method()
	if s.method == "" {
		return errors.NewValidationError("missing :method")
	}
	authority := h.Get(header.Authority)
	target := h.Get(header.Path)
	if s.method == "CONNECT" {
		target = authority
	}
	if target == "" {
		return errors.NewValidationError("missing request target")
	}

	s.chunked = !endStream && !h.Has("content-length") && s.method != "CONNECT"

	var b strings.Builder
	b.WriteString(s.method)
	b.WriteByte(' ')
	b.WriteString(target)
	b.WriteString(" HTTP/1.1\r\n")
	if authority != "" {
		writeField(&b, "host", authority)
	}
	err := h.Each(func(name, value string) error {
		if header.IsPseudo(name) || name == "host" {
			return nil
		}
		if s.chunked && name == "transfer-encoding" {
			return nil
		}
		if !httpguts.ValidHeaderFieldName(name) {
			return errors.NewValidationError("invalid header field name " + strconv.Quote(name))
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return errors.NewValidationError("invalid value for header " + name)
		}
		writeField(&b, name, value)
		return nil
	})
	if err != nil {
		return err
	}
	if s.chunked {
		writeField(&b, "transfer-encoding", "chunked")
		s.cw = httputil.NewChunkedWriter(s.bw)
	}
	b.WriteString("\r\n")

	if _, err := s.bw.WriteString(b.String()); err != nil {
		return errors.NewIOError("writing request head", err)
	}
	if err := s.bw.Flush(); err != nil {
		return errors.NewIOError("writing request head", err)
	}
	return nil
}

func writeField(b *strings.Builder, name, value string) {
	b.WriteString(textproto.CanonicalMIMEHeaderKey(name))
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// WriteBodyFromBuffer sends p as the whole body.
func (s *Stream) WriteBodyFromBuffer(ctx context.Context, p []byte) error {
	return s.WriteChunk(ctx, p, true)
}

// WriteBodyFromReader copies r as the whole body.
func (s *Stream) WriteBodyFromReader(ctx context.Context, r io.Reader) error {
	release := timing.BindConn(ctx, s.conn)
	defer release()

	buf := make([]byte, constants.BodyCopyBuffer)
	if _, err := io.CopyBuffer(s.bodyWriter(), r, buf); err != nil {
		return errors.NewIOError("writing body", err)
	}
	return s.finish()
}

// WriteChunk sends p; with chunked framing p becomes one chunk. final terminates the
// body.
func (s *Stream) WriteChunk(ctx context.Context, p []byte, final bool) error {
	release := timing.BindConn(ctx, s.conn)
	defer release()

	if len(p) > 0 {
		if _, err := s.bodyWriter().Write(p); err != nil {
			return errors.NewIOError("writing body", err)
		}
	}
	if final {
		return s.finish()
	}
	if err := s.bw.Flush(); err != nil {
		return errors.NewIOError("writing body", err)
	}
	return nil
}

func (s *Stream) bodyWriter() io.Writer {
	if s.cw != nil {
		return s.cw
	}
	return s.bw
}

// finish writes the terminating chunk (and empty trailer) when chunked, then flushes.
func (s *Stream) finish() error {
	if s.cw != nil {
		if err := s.cw.Close(); err != nil {
			return errors.NewIOError("writing last chunk", err)
		}
		if _, err := s.bw.WriteString("\r\n"); err != nil {
			return errors.NewIOError("writing last chunk", err)
		}
		s.cw = nil
	}
	if err := s.bw.Flush(); err != nil {
		return errors.NewIOError("writing body", err)
	}
	return nil
}

// ReadHeaders reads one status line and header block. Informational responses are
// returned as they arrive; the body reader is set up once a final response is read.
func (s *Stream) ReadHeaders(ctx context.Context) (*header.Header, error) {
	release := timing.BindConn(ctx, s.conn)
	defer release()

	line, err := readLine(s.br)
	if err != nil {
		return nil, errors.NewProtocolError("reading status line", err)
	}
	status, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}

	h := header.New()
	h.Add(header.Status, strconv.Itoa(status))
	if err := readFields(s.br, h); err != nil {
		return nil, err
	}

	if status >= 200 || status == 101 {
		body, err := s.bodyReader(status, h)
		if err != nil {
			return nil, err
		}
		s.body = body
	}
	return h, nil
}

// Read reads the response body.
func (s *Stream) Read(p []byte) (int, error) {
	if s.body == nil {
		return 0, errors.NewProtocolError("response headers not read", nil)
	}
	return s.body.Read(p)
}

// Shutdown closes the connection.
func (s *Stream) Shutdown() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) > constants.MaxHeaderBytes {
		return "", errors.NewProtocolError("header line too long", nil)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseStatusLine(line string) (int, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return 0, errors.NewProtocolError("invalid status line "+strconv.Quote(line), nil)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 999 {
		return 0, errors.NewProtocolError("invalid status code "+strconv.Quote(parts[1]), err)
	}
	return code, nil
}

// readFields reads header lines up to the blank line, folding obsolete continuation
// lines into the previous value.
func readFields(r *bufio.Reader, h *header.Header) error {
	total := 0
	var name, value string
	flush := func() {
		if name != "" {
			h.Add(name, value)
		}
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return errors.NewProtocolError("reading headers", err)
		}
		total += len(line)
		if total > constants.MaxHeaderBytes {
			return errors.NewProtocolError("headers exceed maximum size", nil)
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			flush()
			return nil
		}
		if trimmed[0] == ' ' || trimmed[0] == '\t' {
			if name != "" {
				value += " " + strings.TrimSpace(trimmed)
			}
			continue
		}

		k, v, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		flush()
		name, value = strings.TrimSpace(k), strings.TrimSpace(v)
	}
}

// bodyReader picks the response body framing.
func (s *Stream) bodyReader(status int, h *header.Header) (io.Reader, error) {
	switch {
	case s.method == "HEAD", status == 204, status == 304:
		return eofReader{}, nil
	case status == 101, s.method == "CONNECT" && status/100 == 2:
		return s.br, nil
	}

	if te := strings.ToLower(h.Get("transfer-encoding")); strings.Contains(te, "chunked") {
		return &chunkedBody{r: httputil.NewChunkedReader(s.br), br: s.br}, nil
	}
	if cl, ok := h.Lookup("content-length"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return nil, errors.NewProtocolError("invalid content-length "+strconv.Quote(cl), err)
		}
		if n > constants.MaxContentLength {
			return nil, errors.NewProtocolError("content-length too large", nil)
		}
		return io.LimitReader(s.br, n), nil
	}
	return s.br, nil
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// chunkedBody consumes the trailer section after the last chunk.
type chunkedBody struct {
	r    io.Reader
	br   *bufio.Reader
	done bool
}

func (c *chunkedBody) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}
	n, err := c.r.Read(p)
	if err == io.EOF {
		c.done = true
		if terr := readFields(c.br, header.New()); terr != nil {
			return n, terr
		}
	}
	return n, err
}
