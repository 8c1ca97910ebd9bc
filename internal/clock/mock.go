package clock

import (
	"sync"
	"time"
)

// Mock is a Clock whose time only changes when told to.
type Mock interface {
	Clock

	Set(t time.Time)
	Add(d time.Duration)
}

func NewMock(t time.Time) Mock {
	return &mockClock{now: t}
}

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

func (m *mockClock) Add(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
