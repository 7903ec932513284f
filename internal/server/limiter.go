package server

import (
	"sync"
	"time"
)

// slidingWindow limits how many messages a live session handles per window.
// Repeated violations back off exponentially so a flooding client is muted
// for longer each time.
type slidingWindow struct {
	mutex        sync.Mutex
	max          int
	window       time.Duration
	timestamps   []time.Time
	violations   int
	backoffUntil time.Time
	lastViolated time.Time
	now          func() time.Time
}

const (
	baseBackoff = time.Second
	maxBackoff  = time.Minute
)

func newSlidingWindow(max int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		max:        max,
		window:     window,
		timestamps: make([]time.Time, 0, max),
		now:        time.Now,
	}
}

// Allow records a message and reports whether it is within the limit.
func (w *slidingWindow) Allow() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	now := w.now()
	if now.Before(w.backoffUntil) {
		return false
	}

	cutoff := now.Add(-w.window)
	keep := 0
	for keep < len(w.timestamps) && !w.timestamps[keep].After(cutoff) {
		keep++
	}
	w.timestamps = append(w.timestamps[:0], w.timestamps[keep:]...)

	if len(w.timestamps) >= w.max {
		w.violate(now)
		return false
	}

	// Violations are forgiven after two quiet windows.
	if w.violations > 0 && now.Sub(w.lastViolated) > 2*w.window {
		w.violations = 0
	}
	w.timestamps = append(w.timestamps, now)
	return true
}

func (w *slidingWindow) violate(now time.Time) {
	w.violations++
	w.lastViolated = now
	backoff := baseBackoff
	for i := 1; i < w.violations && backoff < maxBackoff; i++ {
		backoff *= 2
	}
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	w.backoffUntil = now.Add(backoff)
}
