// Package timing provides deadlines and phase measurement for request execution.
package timing

import (
	"fmt"
	"time"
)

// Metrics captures per-phase timing of one request execution, redirects included.
type Metrics struct {
	// Dial is the time spent opening transport streams
	Dial time.Duration `json:"dial"`

	// WriteHeaders is the time spent sending header blocks
	WriteHeaders time.Duration `json:"write_headers"`

	// ContinueWait is the time spent waiting for 100 Continue
	ContinueWait time.Duration `json:"continue_wait"`

	// WriteBody is the time spent transmitting request bodies
	WriteBody time.Duration `json:"write_body"`

	// TTFB (Time To First Byte) is the time spent waiting for final response headers
	TTFB time.Duration `json:"ttfb"`

	// TotalTime is the total end-to-end time
	TotalTime time.Duration `json:"total_time"`

	// Redirects is the number of redirects followed
	Redirects int `json:"redirects"`
}

// Timer accumulates phase durations. Phases may run several times when redirects are
// followed; each run adds to the total of its phase.
type Timer struct {
	now          Clock
	start        time.Time
	dialStart    time.Time
	headersStart time.Time
	waitStart    time.Time
	bodyStart    time.Time
	ttfbStart    time.Time
	metrics      Metrics
}

// NewTimer creates a new timing measurement session.
func NewTimer(now Clock) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{now: now, start: now()}
}

// StartDial marks the beginning of a dial.
func (t *Timer) StartDial() { t.dialStart = t.now() }

// EndDial marks the end of a dial.
func (t *Timer) EndDial() { t.metrics.Dial += t.since(t.dialStart) }

// StartHeaders marks the beginning of a header block write.
func (t *Timer) StartHeaders() { t.headersStart = t.now() }

// EndHeaders marks the end of a header block write.
func (t *Timer) EndHeaders() { t.metrics.WriteHeaders += t.since(t.headersStart) }

// StartContinue marks the beginning of a 100-continue wait.
func (t *Timer) StartContinue() { t.waitStart = t.now() }

// EndContinue marks the end of a 100-continue wait.
func (t *Timer) EndContinue() { t.metrics.ContinueWait += t.since(t.waitStart) }

// StartBody marks the beginning of body transmission.
func (t *Timer) StartBody() { t.bodyStart = t.now() }

// EndBody marks the end of body transmission.
func (t *Timer) EndBody() { t.metrics.WriteBody += t.since(t.bodyStart) }

// StartTTFB marks when we start waiting for the final response headers.
func (t *Timer) StartTTFB() { t.ttfbStart = t.now() }

// EndTTFB marks when the final response headers arrived.
func (t *Timer) EndTTFB() { t.metrics.TTFB += t.since(t.ttfbStart) }

// Redirected counts one followed redirect.
func (t *Timer) Redirected() { t.metrics.Redirects++ }

func (t *Timer) since(mark time.Time) time.Duration {
	if mark.IsZero() {
		return 0
	}
	return t.now().Sub(mark)
}

// GetMetrics returns the calculated timing metrics.
func (t *Timer) GetMetrics() Metrics {
	m := t.metrics
	m.TotalTime = t.now().Sub(t.start)
	return m
}

// GetConnectionTime returns the time spent dialing.
func (m Metrics) GetConnectionTime() time.Duration {
	return m.Dial
}

// GetServerTime returns the time spent waiting on the server.
func (m Metrics) GetServerTime() time.Duration {
	return m.TTFB + m.ContinueWait
}

// String provides a human-readable representation of the metrics.
func (m Metrics) String() string {
	return fmt.Sprintf("Dial: %v, WriteHeaders: %v, ContinueWait: %v, WriteBody: %v, TTFB: %v, TotalTime: %v, Redirects: %d",
		m.Dial, m.WriteHeaders, m.ContinueWait, m.WriteBody, m.TTFB, m.TotalTime, m.Redirects)
}
