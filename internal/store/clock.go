package store

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing millisecond timestamps so that
// (createdAt, id) is a total order even for notifications created in the
// same millisecond.
type Clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

var processClock = NewClock(time.Now)

// Next returns a timestamp later than every value it returned before.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := c.now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return time.UnixMilli(ms).UTC()
}

// Now returns the latest instant the clock has reached without advancing it.
// Every timestamp handed out so far is <= Now().
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := c.now().UnixMilli()
	if ms < c.last {
		ms = c.last
	}
	return time.UnixMilli(ms).UTC()
}
