package http2

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/WhileEndless/go-rawexec/pkg/errors"
	"github.com/WhileEndless/go-rawexec/pkg/header"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
)

// startServer serves prior-knowledge HTTP/2 on a loopback listener.
func startServer(t *testing.T, srv *http2.Server, h http.Handler) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.ServeConn(c, &http2.ServeConnOpts{Handler: h})
		}
	}()
	return ln.Addr().String()
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func openStream(t *testing.T, addr string) *Stream {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	s, err := Open(testContext(t), conn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func requestHeaders(method, authority, path string) *header.Header {
	return header.FromPairs(
		header.Method, method,
		header.Scheme, "http",
		header.Authority, authority,
		header.Path, path,
		"user-agent", "stream-test",
	)
}

func TestStreamGet(t *testing.T) {
	seen := make(chan *http.Request, 1)
	addr := startServer(t, &http2.Server{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r
		w.Header().Set("X-Reply", "yes")
		io.WriteString(w, "hello h2")
	}))
	s := openStream(t, addr)
	ctx := testContext(t)

	h := requestHeaders("GET", "example.test", "/path?x=1")
	h.Add("connection", "keep-alive")
	require.NoError(t, s.WriteHeaders(ctx, h, true))

	resp, err := s.ReadHeaders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "yes", resp.Get("x-reply"))

	body, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "hello h2", string(body))

	r := <-seen
	assert.Equal(t, "/path", r.URL.Path)
	assert.Equal(t, "x=1", r.URL.RawQuery)
	assert.Equal(t, "example.test", r.Host)
	assert.Equal(t, "stream-test", r.UserAgent())
	assert.Equal(t, 2, r.ProtoMajor)
}

func TestStreamUploadRespectsFlowControl(t *testing.T) {
	srv := &http2.Server{MaxUploadBufferPerStream: 16 << 10}
	addr := startServer(t, srv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		io.WriteString(w, strconv.Itoa(len(b)))
	}))
	s := openStream(t, addr)
	ctx := testContext(t)

	payload := strings.Repeat("0123456789", 20_000)
	require.NoError(t, s.WriteHeaders(ctx, requestHeaders("POST", "example.test", "/upload"), false))
	require.NoError(t, s.WriteBodyFromReader(ctx, strings.NewReader(payload)))

	resp, err := s.ReadHeaders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode())
	body, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(len(payload)), string(body))
}

func TestStreamChunksAndContinue(t *testing.T) {
	addr := startServer(t, &http2.Server{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write(b)
	}))
	s := openStream(t, addr)
	ctx := testContext(t)

	h := requestHeaders("POST", "example.test", "/")
	h.Add("expect", "100-continue")
	require.NoError(t, s.WriteHeaders(ctx, h, false))

	info, err := s.ReadHeaders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, info.StatusCode())

	require.NoError(t, s.WriteChunk(ctx, []byte("part1-"), false))
	require.NoError(t, s.WriteChunk(ctx, []byte("part2"), false))
	require.NoError(t, s.WriteChunk(ctx, nil, true))

	resp, err := s.ReadHeaders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode())
	body, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "part1-part2", string(body))

	assert.Error(t, s.WriteChunk(ctx, []byte("late"), false))
}

func TestStreamLargeHeaderBlockUsesContinuation(t *testing.T) {
	addr := startServer(t, &http2.Server{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strconv.Itoa(len(r.Header.Get("X-Big"))))
	}))
	s := openStream(t, addr)
	ctx := testContext(t)

	h := requestHeaders("GET", "example.test", "/")
	h.Add("x-big", strings.Repeat("b", 40_000))
	require.NoError(t, s.WriteHeaders(ctx, h, true))

	_, err := s.ReadHeaders(ctx)
	require.NoError(t, err)
	body, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "40000", string(body))
}

func TestStreamResetByPeer(t *testing.T) {
	addr := startServer(t, &http2.Server{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	s := openStream(t, addr)
	ctx := testContext(t)

	require.NoError(t, s.WriteHeaders(ctx, requestHeaders("GET", "example.test", "/"), true))
	_, err := s.ReadHeaders(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeProtocol, errors.GetErrorType(err))
	assert.Equal(t, http2.ErrCodeInternal.String(), errors.CodeOf(err))
}

func TestOpenTimesOutWithoutSettings(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		io.Copy(io.Discard, c)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = Open(ctx, conn)
	require.Error(t, err)
	assert.True(t, errors.IsTimeoutError(err))
}

func TestIsConnectionSpecificHeader(t *testing.T) {
	assert.True(t, isConnectionSpecificHeader("connection", "close"))
	assert.True(t, isConnectionSpecificHeader("transfer-encoding", "chunked"))
	assert.True(t, isConnectionSpecificHeader("te", "gzip"))
	assert.False(t, isConnectionSpecificHeader("te", "trailers"))
	assert.False(t, isConnectionSpecificHeader("content-type", "text/plain"))
}
