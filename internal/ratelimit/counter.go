// Package ratelimit throttles hot-path log lines while still counting every
// occurrence, so the one line that does get through carries the total.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// Counter counts events and allows a log line at most once per interval.
// The zero value counts but never throttles. Safe for concurrent use.
type Counter struct {
	interval time.Duration
	now      func() time.Time

	total   atomic.Uint64
	emitted atomic.Uint64
	lastLog atomic.Int64
}

// NewCounter allows one log per interval; interval <= 0 allows every log.
func NewCounter(interval time.Duration) Counter {
	return Counter{interval: interval}
}

// NewCounterWithClock is NewCounter with an injected clock for tests.
func NewCounterWithClock(interval time.Duration, now func() time.Time) Counter {
	return Counter{interval: interval, now: now}
}

// Inc counts one event and reports the running total and whether this
// event may be logged.
func (c *Counter) Inc() (uint64, bool) {
	if c == nil {
		return 0, false
	}
	total := c.total.Add(1)
	if c.interval <= 0 {
		c.emitted.Add(1)
		return total, true
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	ts := now().UnixNano()
	last := c.lastLog.Load()
	if last != 0 && ts-last < c.interval.Nanoseconds() {
		return total, false
	}
	if !c.lastLog.CompareAndSwap(last, ts) {
		return total, false
	}
	c.emitted.Add(1)
	return total, true
}

// Total is the number of events counted.
func (c *Counter) Total() uint64 {
	if c == nil {
		return 0
	}
	return c.total.Load()
}

// Suppressed is the number of events that were counted but not logged.
func (c *Counter) Suppressed() uint64 {
	if c == nil {
		return 0
	}
	return c.total.Load() - c.emitted.Load()
}
