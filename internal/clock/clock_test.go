package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/clock"
)

func TestRealClock(t *testing.T) {
	c := clock.New()
	assert.False(t, c.Now().IsZero())
}

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	c := clock.NewMock(start)
	assert.Equal(t, start, c.Now())

	c.Add(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	later := start.Add(time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}
