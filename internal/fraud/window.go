package fraud

import (
	"sync"
	"time"
)

// windowEntry tracks event counts for one key inside the current window.
type windowEntry struct {
	count       int
	windowStart time.Time
	lastEvent   time.Time
}

// WindowCounter is a fixed-window event counter keyed by an arbitrary
// string (IP, IP+device, merchant, GAN). Counts reset when the window
// elapses rather than sliding continuously, which keeps memory at O(1) per
// key at the cost of boundary bursts up to 2x the nominal threshold.
type WindowCounter struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*windowEntry
	clock   func() time.Time
}

// NewWindowCounter creates a counter with the given window length.
func NewWindowCounter(window time.Duration) *WindowCounter {
	return &WindowCounter{
		window:  window,
		entries: make(map[string]*windowEntry),
		clock:   time.Now,
	}
}

// Record registers one event for key and returns the count within the
// current window, including this event. A key whose window has elapsed is
// reset to a fresh window starting now.
func (c *WindowCounter) Record(key string) int {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || now.Sub(entry.windowStart) > c.window {
		c.entries[key] = &windowEntry{count: 1, windowStart: now, lastEvent: now}
		return 1
	}

	entry.count++
	entry.lastEvent = now
	return entry.count
}

// RetryAfter returns how long until the current window for key expires.
// Returns zero if the key has no live window.
func (c *WindowCounter) RetryAfter(key string) time.Duration {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return 0
	}

	remaining := c.window - now.Sub(entry.windowStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Sweep deletes entries whose window has fully elapsed relative to now and
// returns the number removed. Safe to run concurrently with Record; it
// takes the same lock, so entries being updated are never deleted.
func (c *WindowCounter) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.windowStart) > c.window {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of keys with a tracked window.
func (c *WindowCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
