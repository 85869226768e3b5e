package playback

import (
	"sync"
	"time"
)

// Clock is a TimeSource fed by the playback surface's events. Between
// position reports it extrapolates from the wall clock while playing, so
// the tick loop sees a continuously advancing position.
type Clock struct {
	mu      sync.Mutex
	base    float64
	at      time.Time
	playing bool
}

// NewClock creates a paused clock at position zero.
func NewClock() *Clock {
	return &Clock{at: time.Now()}
}

// Play records that playback started at the given position.
func (c *Clock) Play(pos float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = pos
	c.at = time.Now()
	c.playing = true
}

// Pause records that playback stopped at the given position.
func (c *Clock) Pause(pos float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = pos
	c.at = time.Now()
	c.playing = false
}

// Seek moves the position without changing the playing state.
func (c *Clock) Seek(pos float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = pos
	c.at = time.Now()
}

// Position returns the current playback position in seconds.
func (c *Clock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return c.base
	}
	return c.base + time.Since(c.at).Seconds()
}

// Playing reports whether playback is running.
func (c *Clock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}
