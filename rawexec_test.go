package rawexec

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Write(b)
	}))
	defer srv.Close()

	req, err := NewRequest("put", srv.URL+"/x")
	require.NoError(t, err)
	AttachBody(req, StringBody("payload"))

	resp, err := Execute(context.Background(), req, 5*time.Second)
	require.NoError(t, err)
	defer resp.Close()
	body, err := io.ReadAll(resp)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
	assert.Equal(t, "PUT", resp.Request.Method())
}

func TestNewConnect(t *testing.T) {
	req, err := NewConnect("http://proxy.local:3128", "example.com:443")
	require.NoError(t, err)
	assert.True(t, req.IsConnect())
	assert.Equal(t, "proxy.local", req.Host)
	assert.Equal(t, 3128, req.Port)

	_, err = NewConnect("http://proxy.local:3128", "no-port")
	assert.Equal(t, string(ErrorTypeInvalidRequest), GetErrorType(err))
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.FollowRedirects)
	assert.Equal(t, 5, p.MaxRedirects)
	assert.Equal(t, time.Second, p.ExpectContinueTimeout)
	assert.Equal(t, Version, GetVersion())
}
