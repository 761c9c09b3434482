package header

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaseInsensitiveLookup(t *testing.T) {
	h := New()
	h.Add("Content-Type", "text/plain")

	assert.Equal(t, "text/plain", h.Get("content-type"))
	assert.Equal(t, "text/plain", h.Get("CONTENT-TYPE"))
	assert.True(t, h.Has("Content-type"))
	assert.False(t, h.Has("content-length"))
}

func TestAddKeepsOrderAndMultipleValues(t *testing.T) {
	h := FromPairs("accept", "a", "x-one", "1", "accept", "b")

	assert.Equal(t, []string{"a", "b"}, h.Values("Accept"))
	names := []string{}
	for _, f := range h.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"accept", "x-one", "accept"}, names)
}

func TestPseudoHeadersStayInFront(t *testing.T) {
	h := New()
	h.Add("user-agent", "ua")
	h.Add(Method, "GET")
	h.Add(Path, "/")

	fields := h.Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, Method, fields[0].Name)
	assert.Equal(t, Path, fields[1].Name)
	assert.Equal(t, "user-agent", fields[2].Name)
}

func TestSetUpsertsInPlace(t *testing.T) {
	h := FromPairs("a", "1", "b", "2", "a", "3")
	h.Set("A", "9")

	assert.Equal(t, []string{"9"}, h.Values("a"))
	assert.Equal(t, "a", h.Fields()[0].Name)

	h.Set("c", "new")
	assert.Equal(t, "new", h.Get("c"))
	assert.Equal(t, 3, h.Len())
}

func TestDelAndDelFunc(t *testing.T) {
	h := FromPairs("expect", "100-continue", "expect", "other", "x", "y")
	h.DelFunc("Expect", func(v string) bool { return v == "100-continue" })
	assert.Equal(t, []string{"other"}, h.Values("expect"))

	h.Del("expect")
	assert.False(t, h.Has("expect"))
	assert.True(t, h.Has("x"))
}

func TestCloneIsIndependent(t *testing.T) {
	h := FromPairs(Method, "POST", "referer", "https://a/")
	c := h.Clone()
	c.Set(Method, "GET")
	c.Del("referer")

	assert.Equal(t, "POST", h.Method())
	assert.True(t, h.Has("referer"))
	assert.Equal(t, "GET", c.Method())
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 302, FromPairs(Status, "302").StatusCode())
	assert.Equal(t, 0, FromPairs(Status, "abc").StatusCode())
	assert.Equal(t, 0, New().StatusCode())
}

func TestNilHeaderIsEmpty(t *testing.T) {
	var h *Header
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, "", h.Get("x"))
	assert.NotNil(t, h.Clone())
}
