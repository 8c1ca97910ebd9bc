package history

import (
	"sync"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
)

// Capacity is the number of recent readings kept per device.
const Capacity = 50

// Cache is a bounded FIFO of recent readings, oldest first.
type Cache struct {
	mu       sync.RWMutex
	buffer   []domain.Reading
	capacity int
}

func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = Capacity
	}
	return &Cache{
		buffer:   make([]domain.Reading, 0, capacity),
		capacity: capacity,
	}
}

// Append adds r as the newest entry and evicts the oldest on overflow.
func (c *Cache) Append(r domain.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffer = append(c.buffer, r)
	if len(c.buffer) > c.capacity {
		c.buffer = c.buffer[len(c.buffer)-c.capacity:]
	}
}

// Latest returns the newest reading, ok is false when the cache is empty.
func (c *Cache) Latest() (domain.Reading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.buffer) == 0 {
		return domain.Reading{}, false
	}
	return c.buffer[len(c.buffer)-1], true
}

// Dump returns a copy of every cached reading, oldest first. The result is
// never nil so it encodes as an empty JSON array.
func (c *Cache) Dump() []domain.Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.Reading, len(c.buffer))
	copy(result, c.buffer)
	return result
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffer = make([]domain.Reading, 0, c.capacity)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buffer)
}
