package alerting

import (
	"sync"
	"time"
)

// Cooldown is the minimum wall-clock gap between two alerts of one device.
const Cooldown = 120 * time.Second

// Throttle debounces alerts. The cooldown is gated on when an alert was
// attempted, not on whether it was delivered.
type Throttle struct {
	mu       sync.Mutex
	last     time.Time
	fired    bool
	cooldown time.Duration
}

func NewThrottle(cooldown time.Duration) *Throttle {
	if cooldown <= 0 {
		cooldown = Cooldown
	}
	return &Throttle{cooldown: cooldown}
}

// Allow reports whether an unsafe reading observed at now should produce an
// alert, and if so records now as the last alert time. Only call it for
// unsafe readings.
func (t *Throttle) Allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fired && now.Sub(t.last) <= t.cooldown {
		return false
	}
	t.last = now
	t.fired = true
	return true
}

func (t *Throttle) LastAlertAt() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.fired
}

func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = time.Time{}
	t.fired = false
}
