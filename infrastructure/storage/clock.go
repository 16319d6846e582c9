package storage

import (
	"sync"
	"time"
)

// monotonicClock hands out strictly increasing UTC timestamps so that
// createdAt never contradicts the sequence order of a store.
type monotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newMonotonicClock(now func() time.Time) *monotonicClock {
	return &monotonicClock{now: now}
}

// stamp runs next under the clock lock and returns its result with a fresh timestamp.
func (c *monotonicClock) stamp(next func() (uint64, error)) (uint64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq, err := next()
	if err != nil {
		return 0, time.Time{}, err
	}
	at := c.now().UTC()
	if !at.After(c.last) {
		at = c.last.Add(time.Nanosecond)
	}
	c.last = at
	return seq, at, nil
}
