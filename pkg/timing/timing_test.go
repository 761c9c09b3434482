package timing

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func TestDeadlineUnbounded(t *testing.T) {
	d := NewDeadline(nil, 0)
	assert.False(t, d.Bounded())
	assert.False(t, d.Expired())
	assert.Equal(t, 3*time.Second, d.Cap(3*time.Second))

	ctx, cancel := d.Context(context.Background())
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)
}

func TestDeadlineRemainingIsRecomputed(t *testing.T) {
	clock := newFakeClock()
	d := NewDeadline(clock.now, 10*time.Second)
	require.True(t, d.Bounded())

	assert.Equal(t, 10*time.Second, d.Remaining())
	clock.advance(4 * time.Second)
	assert.Equal(t, 6*time.Second, d.Remaining())
	assert.Equal(t, time.Second, d.Cap(time.Second))
	clock.advance(5500 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, d.Cap(time.Second))
	clock.advance(time.Second)
	assert.True(t, d.Expired())
}

func TestTimerAccumulatesPhases(t *testing.T) {
	clock := newFakeClock()
	timer := NewTimer(clock.now)

	for i := 0; i < 2; i++ {
		timer.StartDial()
		clock.advance(10 * time.Millisecond)
		timer.EndDial()
		timer.StartTTFB()
		clock.advance(30 * time.Millisecond)
		timer.EndTTFB()
	}
	timer.Redirected()

	m := timer.GetMetrics()
	assert.Equal(t, 20*time.Millisecond, m.Dial)
	assert.Equal(t, 60*time.Millisecond, m.TTFB)
	assert.Equal(t, 80*time.Millisecond, m.TotalTime)
	assert.Equal(t, 1, m.Redirects)
	assert.Contains(t, m.String(), "Redirects: 1")
}

func TestBindConnInterruptsOnCancel(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	release := BindConn(ctx, client)
	defer release()

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := client.Read(make([]byte, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestBindConnReleaseRestoresConn(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	release := BindConn(ctx, client)
	_, err := client.Read(make([]byte, 1))
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	<-ctx.Done()
	release()

	go server.Write([]byte("x"))
	buf := make([]byte, 1)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
