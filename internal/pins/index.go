package pins

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
)

// RadiusMeters is how close a reading must be to an existing pin to be
// folded into it.
const RadiusMeters = 25.0

var ErrNoCoordinates = errors.New("reading has no coordinates")

// Index clusters geolocated readings of one device into pins. Lookup is a
// linear scan over the pins, which is fine at a handful of pins per device;
// a spatial index belongs here if device density grows.
type Index struct {
	mu    sync.Mutex
	pins  []*domain.Pin
	ids   map[string]*domain.Pin
	newID func() string
}

func NewIndex() *Index {
	return &Index{
		ids:   make(map[string]*domain.Pin),
		newID: uuid.NewString,
	}
}

// Update folds r into the nearest pin within RadiusMeters, or starts a new
// pin at r's coordinates. It returns a copy of the affected pin and whether
// it was created.
func (x *Index) Update(r domain.Reading, now time.Time) (domain.Pin, bool, error) {
	lat, lng, ok := r.Coordinates()
	if !ok {
		return domain.Pin{}, false, ErrNoCoordinates
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	nearest, dist := x.nearest(lat, lng)
	if nearest != nil && dist <= RadiusMeters {
		nearest.LastReading = r
		nearest.UpdatedAt = now
		return *nearest, false, nil
	}

	p := &domain.Pin{
		ID:          x.newID(),
		Lat:         lat,
		Lng:         lng,
		LastReading: r,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	x.pins = append(x.pins, p)
	x.ids[p.ID] = p
	return *p, true, nil
}

// nearest scans in insertion order; on equal distance the earlier pin wins.
func (x *Index) nearest(lat, lng float64) (*domain.Pin, float64) {
	var (
		best     *domain.Pin
		bestDist = math.Inf(1)
	)
	for _, p := range x.pins {
		if !validCoordinates(p.Lat, p.Lng) {
			continue
		}
		if d := Distance(lat, lng, p.Lat, p.Lng); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best, bestDist
}

// Load replaces the index content with pins read back from durable storage.
// Pins without usable coordinates or with a duplicate id are dropped.
func (x *Index) Load(pins []domain.Pin) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.pins = x.pins[:0]
	x.ids = make(map[string]*domain.Pin, len(pins))
	for i := range pins {
		p := pins[i]
		if p.ID == "" || !validCoordinates(p.Lat, p.Lng) {
			continue
		}
		if _, dup := x.ids[p.ID]; dup {
			continue
		}
		x.pins = append(x.pins, &p)
		x.ids[p.ID] = &p
	}
	return len(x.pins)
}

func (x *Index) Get(id string) (domain.Pin, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	p, ok := x.ids[id]
	if !ok {
		return domain.Pin{}, false
	}
	return *p, true
}

// Pins returns copies of all pins in creation order.
func (x *Index) Pins() []domain.Pin {
	x.mu.Lock()
	defer x.mu.Unlock()

	out := make([]domain.Pin, len(x.pins))
	for i, p := range x.pins {
		out[i] = *p
	}
	return out
}

func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.pins)
}

func (x *Index) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.pins = nil
	x.ids = make(map[string]*domain.Pin)
}
