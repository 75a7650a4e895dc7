package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimeSource supplies wall-clock readings
type TimeSource interface {
	Now() time.Time
}

// SystemTime reads the monotonic system clock
type SystemTime struct{}

func (SystemTime) Now() time.Time { return time.Now() }

// ManualTime is a TimeSource moved by hand, for tests and replays
type ManualTime struct {
	mu  sync.RWMutex
	now time.Time
}

func NewManualTime(start time.Time) *ManualTime {
	return &ManualTime{now: start}
}

func (m *ManualTime) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

func (m *ManualTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// FrameClock turns wall-clock readings into per-frame durations for a fixed-step update
// Time spent paused is never reported
// paused is only written under mu; IsPaused reads it without the lock
type FrameClock struct {
	mu     sync.Mutex
	source TimeSource
	last   time.Time

	paused      atomic.Bool
	pauseStart  time.Time
	totalPaused time.Duration
	frames      uint64
}

// NewFrameClock starts a clock at source's current time; nil uses SystemTime
func NewFrameClock(source TimeSource) *FrameClock {
	if source == nil {
		source = SystemTime{}
	}
	return &FrameClock{source: source, last: source.Now()}
}

// Tick returns the seconds since the previous Tick, or 0 while paused
func (c *FrameClock) Tick() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.source.Now()
	if c.paused.Load() {
		return 0
	}
	dt := now.Sub(c.last)
	c.last = now
	c.frames++
	if dt < 0 {
		return 0
	}
	return float32(dt.Seconds())
}

func (c *FrameClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseLocked()
}

// Resume continues measurement; the pause interval is excluded from the next Tick
func (c *FrameClock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumeLocked()
}

// Toggle flips the pause state and reports whether the clock is now paused
func (c *FrameClock) Toggle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused.Load() {
		c.resumeLocked()
		return false
	}
	c.pauseLocked()
	return true
}

func (c *FrameClock) pauseLocked() {
	if c.paused.Load() {
		return
	}
	c.pauseStart = c.source.Now()
	c.paused.Store(true)
}

func (c *FrameClock) resumeLocked() {
	if !c.paused.Load() {
		return
	}
	pause := c.source.Now().Sub(c.pauseStart)
	c.totalPaused += pause
	c.last = c.last.Add(pause)
	c.pauseStart = time.Time{}
	c.paused.Store(false)
}

func (c *FrameClock) IsPaused() bool { return c.paused.Load() }

// TotalPaused includes the current pause
func (c *FrameClock) TotalPaused() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.totalPaused
	if c.paused.Load() {
		total += c.source.Now().Sub(c.pauseStart)
	}
	return total
}

// Frames is the number of unpaused ticks
func (c *FrameClock) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}
