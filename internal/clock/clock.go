package clock

import "time"

// Clock tells the time. Everything that stamps readings, pins or alert state
// reads it through this interface so tests can move time by hand.
type Clock interface {
	Now() time.Time
}

// New returns a Clock backed by time.Now.
func New() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}
