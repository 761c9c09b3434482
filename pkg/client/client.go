// Package client provides the execution driver: it sends a request over a transport
// stream, handles 100-continue gating and follows redirects under one deadline.
package client

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/WhileEndless/go-rawexec/pkg/errors"
	"github.com/WhileEndless/go-rawexec/pkg/header"
	"github.com/WhileEndless/go-rawexec/pkg/request"
	"github.com/WhileEndless/go-rawexec/pkg/timing"
	"github.com/WhileEndless/go-rawexec/pkg/transport"
)

// Options controls how the Client opens streams and reports progress.
type Options struct {
	// Dialer opens transport streams. Nil uses a NetDialer built from Transport.
	Dialer transport.Dialer

	// Transport configures the default NetDialer.
	Transport transport.Config

	// Logger receives a debug record per execution step. Nil discards.
	Logger *slog.Logger

	// Clock is the time source for deadlines and metrics. Nil uses time.Now.
	Clock timing.Clock
}

// Response is the final response of an execution. The caller owns Stream and reads the
// body from it.
type Response struct {
	Header     *header.Header
	StatusCode int
	Stream     transport.Stream

	// Request is the request that produced this response, after redirects.
	Request *request.Request

	// Redirects lists the URLs followed, in order.
	Redirects []string

	Metrics timing.Metrics

	// Proto is "HTTP/1.1" or "HTTP/2" when the stream reports it.
	Proto string
}

// Read reads the response body.
func (r *Response) Read(p []byte) (int, error) {
	return r.Stream.Read(p)
}

// Close shuts the stream down.
func (r *Response) Close() error {
	return r.Stream.Shutdown()
}

// Client executes requests.
type Client struct {
	dialer transport.Dialer
	logger *slog.Logger
	now    timing.Clock
}

// New returns a Client.
func New(opts Options) *Client {
	c := &Client{
		dialer: opts.Dialer,
		logger: opts.Logger,
		now:    opts.Clock,
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.dialer == nil {
		d := transport.NewNetDialer(opts.Transport)
		d.Logger = c.logger
		c.dialer = d
	}
	return c
}

// NewWithDialer returns a Client using d.
func NewWithDialer(d transport.Dialer) *Client {
	return New(Options{Dialer: d})
}

type protoReporter interface {
	Proto() string
}

// Execute sends req and returns the final response. A timeout <= 0 leaves every wait
// unbounded; otherwise all steps, redirects included, share one deadline. Redirects are
// followed while req.Policy allows it, each one on a freshly dialed stream.
func (c *Client) Execute(ctx context.Context, req *request.Request, timeout time.Duration) (*Response, error) {
	if req == nil || req.Header == nil {
		return nil, errors.NewValidationError("request cannot be nil")
	}

	e := &execution{
		client:  c,
		timeout: timeout,
		dl:      timing.NewDeadline(c.now, timeout),
		timer:   timing.NewTimer(c.now),
	}

	var redirects []string
	for {
		log := c.logger.With("method", req.Method(), "url", req.URL())
		stream, resp, err := e.exchange(ctx, req, log)
		if err != nil {
			log.Debug("failed", "error", err)
			return nil, err
		}

		status := resp.StatusCode()
		log.Debug("response", "status", status)
		if !req.Policy.FollowRedirects || !request.IsRedirect(status) {
			out := &Response{
				Header:     resp,
				StatusCode: status,
				Stream:     stream,
				Request:    req,
				Redirects:  redirects,
				Metrics:    e.timer.GetMetrics(),
			}
			if p, ok := stream.(protoReporter); ok {
				out.Proto = p.Proto()
			}
			return out, nil
		}

		stream.Shutdown()
		next, err := request.ResolveRedirect(req, resp)
		if err != nil {
			log.Debug("redirect rejected", "status", status, "error", err)
			return nil, err
		}
		log.Debug("redirect", "status", status, "location", next.URL(), "remaining", next.Policy.MaxRedirects)
		e.timer.Redirected()
		redirects = append(redirects, next.URL())
		req = next
	}
}

// execution carries the state shared by every hop of one Execute call.
type execution struct {
	client  *Client
	timeout time.Duration
	dl      timing.Deadline
	timer   *timing.Timer
}

// exchange runs one dial/send/receive cycle. The stream is shut down on error.
func (e *execution) exchange(ctx context.Context, req *request.Request, log *slog.Logger) (transport.Stream, *header.Header, error) {
	var stream transport.Stream
	e.timer.StartDial()
	err := e.call(ctx, "dial", func(ctx context.Context) error {
		var err error
		stream, err = e.client.dialer.Dial(ctx, req.Host, req.Port, req.UseTLS)
		return err
	})
	e.timer.EndDial()
	if err != nil {
		return nil, nil, e.dialError(req, err)
	}
	log.Debug("dial", "host", req.Host, "port", req.Port, "tls", req.UseTLS)

	resp, err := e.send(ctx, req, stream, log)
	if err != nil {
		stream.Shutdown()
		return nil, nil, err
	}
	return stream, resp, nil
}

func (e *execution) send(ctx context.Context, req *request.Request, stream transport.Stream, log *slog.Logger) (*header.Header, error) {
	hasBody := req.Body.Kind() != request.BodyNone

	e.timer.StartHeaders()
	err := e.call(ctx, "write headers", func(ctx context.Context) error {
		return stream.WriteHeaders(ctx, req.Header, !hasBody)
	})
	e.timer.EndHeaders()
	if err != nil {
		return nil, e.transmitError("write headers", err)
	}
	log.Debug("headers sent", "body", req.Body.Kind().String())

	var final *header.Header
	if hasBody && expectsContinue(req.Header) {
		h, err := e.awaitContinue(ctx, req, stream)
		switch {
		case err == nil && isFinal(h.StatusCode()):
			log.Debug("continue wait", "status", h.StatusCode(), "outcome", "final response, body not sent")
			final = h
		case err == nil:
			log.Debug("continue wait", "status", h.StatusCode())
		case errors.IsTimeoutError(err) && ctx.Err() == nil:
			log.Debug("continue wait", "outcome", "timed out, sending body")
		default:
			return nil, e.receiveError("continue wait", err)
		}
	}

	if hasBody && final == nil {
		e.timer.StartBody()
		err := e.writeBody(ctx, req, stream)
		e.timer.EndBody()
		if err != nil {
			return nil, err
		}
		log.Debug("body sent")
	}

	if final != nil {
		return final, nil
	}

	e.timer.StartTTFB()
	defer e.timer.EndTTFB()
	for {
		var h *header.Header
		err := e.call(ctx, "read headers", func(ctx context.Context) error {
			var err error
			h, err = stream.ReadHeaders(ctx)
			return err
		})
		if err != nil {
			return nil, e.receiveError("read headers", err)
		}
		status := h.StatusCode()
		if status == 0 {
			return nil, errors.NewReceiveError("read headers", errors.NewProtocolError("response without a valid :status", nil))
		}
		if isFinal(status) {
			return h, nil
		}
		log.Debug("informational response skipped", "status", status)
	}
}

// awaitContinue waits for the first response header block, bounded by the policy
// timeout and the remaining deadline.
func (e *execution) awaitContinue(ctx context.Context, req *request.Request, stream transport.Stream) (*header.Header, error) {
	wait := e.dl.Cap(req.Policy.ExpectContinueTimeout)
	if wait <= 0 {
		return nil, errors.NewTimeoutError("continue wait", wait)
	}

	e.timer.StartContinue()
	defer e.timer.EndContinue()

	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return stream.ReadHeaders(wctx)
}

func (e *execution) writeBody(ctx context.Context, req *request.Request, stream transport.Stream) error {
	body := req.Body
	switch body.Kind() {
	case request.BodyBytes:
		err := e.call(ctx, "write body", func(ctx context.Context) error {
			return stream.WriteBodyFromBuffer(ctx, body.Bytes())
		})
		if err != nil {
			return e.transmitError("write body", err)
		}

	case request.BodyReader:
		r, err := body.Reader()
		if err != nil {
			return errors.NewTransmitError("rewind body", err)
		}
		err = e.call(ctx, "write body", func(ctx context.Context) error {
			return stream.WriteBodyFromReader(ctx, r)
		})
		if err != nil {
			return e.transmitError("write body", err)
		}

	case request.BodyFunc:
		pull := body.Pull()
		for {
			var chunk []byte
			err := e.call(ctx, "pull body", func(ctx context.Context) error {
				var err error
				chunk, err = pull(ctx)
				return err
			})
			done := err == io.EOF || (err == nil && chunk == nil)
			if err != nil && !done {
				return e.transmitError("pull body", err)
			}
			// A final chunk may arrive together with io.EOF.
			if len(chunk) > 0 {
				err = e.call(ctx, "write chunk", func(ctx context.Context) error {
					return stream.WriteChunk(ctx, chunk, false)
				})
				if err != nil {
					return e.transmitError("write chunk", err)
				}
			}
			if done {
				break
			}
		}
		err := e.call(ctx, "write chunk", func(ctx context.Context) error {
			return stream.WriteChunk(ctx, nil, true)
		})
		if err != nil {
			return e.transmitError("write chunk", err)
		}
	}
	return nil
}

// call runs fn with a context bounded by the remaining deadline, recomputed now.
func (e *execution) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if e.dl.Expired() {
		return errors.NewTimeoutError(op, e.timeout)
	}
	cctx, cancel := e.dl.Context(ctx)
	defer cancel()
	return fn(cctx)
}

// dialError keeps structured transport errors as reported; anything else becomes a
// connection error.
func (e *execution) dialError(req *request.Request, err error) error {
	if errors.GetErrorType(err) != "" {
		return err
	}
	return errors.NewConnectionError(req.Host, req.Port, err)
}

func (e *execution) transmitError(op string, err error) error {
	if errors.GetErrorType(err) == errors.ErrorTypeTimeout {
		return err
	}
	if errors.IsTimeoutError(err) {
		return errors.NewTimeoutError(op, e.timeout).WithCause(err)
	}
	return errors.NewTransmitError(op, err)
}

func (e *execution) receiveError(op string, err error) error {
	if errors.GetErrorType(err) == errors.ErrorTypeTimeout {
		return err
	}
	if errors.IsTimeoutError(err) {
		return errors.NewTimeoutError(op, e.timeout).WithCause(err)
	}
	return errors.NewReceiveError(op, err)
}

func expectsContinue(h *header.Header) bool {
	for _, v := range h.Values("expect") {
		if strings.EqualFold(strings.TrimSpace(v), "100-continue") {
			return true
		}
	}
	return false
}

// isFinal reports whether status ends the header exchange. 101 switches protocols and
// is handed to the caller.
func isFinal(status int) bool {
	return status >= 200 || status == 101
}
