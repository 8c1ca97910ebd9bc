package repository

import (
	"context"
	"sync"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
)

// Memory is a process-local durable store for development and tests. It
// follows the same conflict rules as the Postgres store.
type Memory struct {
	mu      sync.RWMutex
	latest  map[string]domain.Reading
	history map[string][]domain.Reading
	pins    map[string][]domain.Pin
}

func NewMemory() *Memory {
	return &Memory{
		latest:  make(map[string]domain.Reading),
		history: make(map[string][]domain.Reading),
		pins:    make(map[string][]domain.Pin),
	}
}

func (m *Memory) WriteLatest(_ context.Context, device string, r domain.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.latest[device]; ok && cur.CapturedAt.After(r.CapturedAt) {
		return nil
	}
	m.latest[device] = r
	return nil
}

func (m *Memory) AppendHistory(_ context.Context, device string, r domain.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history[device] = append(m.history[device], r)
	return nil
}

func (m *Memory) ListPins(_ context.Context, device string) ([]domain.Pin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Pin, len(m.pins[device]))
	copy(out, m.pins[device])
	return out, nil
}

func (m *Memory) CreatePin(_ context.Context, device string, p domain.Pin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.find(device, p.ID) >= 0 {
		return nil
	}
	m.pins[device] = append(m.pins[device], p)
	return nil
}

func (m *Memory) UpdatePin(_ context.Context, device string, p domain.Pin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.find(device, p.ID)
	if i < 0 {
		m.pins[device] = append(m.pins[device], p)
		return nil
	}
	cur := &m.pins[device][i]
	if cur.UpdatedAt.After(p.UpdatedAt) {
		return nil
	}
	cur.LastReading = p.LastReading
	cur.UpdatedAt = p.UpdatedAt
	return nil
}

func (m *Memory) DeleteDevice(_ context.Context, device string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.latest, device)
	delete(m.history, device)
	delete(m.pins, device)
	return nil
}

func (m *Memory) Latest(device string) (domain.Reading, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.latest[device]
	return r, ok
}

func (m *Memory) History(device string) []domain.Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Reading, len(m.history[device]))
	copy(out, m.history[device])
	return out
}

func (m *Memory) find(device, id string) int {
	for i, p := range m.pins[device] {
		if p.ID == id {
			return i
		}
	}
	return -1
}
