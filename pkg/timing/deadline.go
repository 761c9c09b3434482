package timing

import (
	"context"
	"net"
	"sync"
	"time"
)

// Clock returns the current instant. time.Now carries a monotonic reading, which is
// what every comparison in this package relies on.
type Clock func() time.Time

// Deadline is one absolute instant shared by every blocking step of an execution.
// The zero value is unbounded.
type Deadline struct {
	at      time.Time
	bounded bool
	now     Clock
}

// NewDeadline returns now()+timeout, or an unbounded deadline when timeout <= 0.
func NewDeadline(now Clock, timeout time.Duration) Deadline {
	if now == nil {
		now = time.Now
	}
	if timeout <= 0 {
		return Deadline{now: now}
	}
	return Deadline{at: now().Add(timeout), bounded: true, now: now}
}

// Bounded reports whether the deadline limits anything.
func (d Deadline) Bounded() bool { return d.bounded }

// At returns the absolute instant, zero when unbounded.
func (d Deadline) At() time.Time { return d.at }

// Remaining recomputes deadline - now. It is meaningless for unbounded deadlines and
// returns 0 for them.
func (d Deadline) Remaining() time.Duration {
	if !d.bounded {
		return 0
	}
	clock := d.now
	if clock == nil {
		clock = time.Now
	}
	return d.at.Sub(clock())
}

// Expired reports whether a bounded deadline has passed.
func (d Deadline) Expired() bool {
	return d.bounded && d.Remaining() <= 0
}

// Cap returns min(limit, remaining). An unbounded deadline returns limit unchanged.
func (d Deadline) Cap(limit time.Duration) time.Duration {
	if !d.bounded {
		return limit
	}
	if r := d.Remaining(); r < limit {
		return r
	}
	return limit
}

// Context derives a context bounded by the remaining budget, recomputed at call time.
func (d Deadline) Context(parent context.Context) (context.Context, context.CancelFunc) {
	if !d.bounded {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d.Remaining())
}

var aLongTimeAgo = time.Unix(1, 0)

// BindConn applies ctx's deadline to conn and interrupts pending I/O when ctx is done.
// The returned release func detaches ctx and clears the deadline.
func BindConn(ctx context.Context, conn net.Conn) (release func()) {
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	} else {
		conn.SetDeadline(time.Time{})
	}
	var (
		mu       sync.Mutex
		released bool
	)
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if !released {
			conn.SetDeadline(aLongTimeAgo)
		}
	})
	return func() {
		stop()
		mu.Lock()
		defer mu.Unlock()
		released = true
		conn.SetDeadline(time.Time{})
	}
}
