package domain

import "time"

type Status string

const (
	StatusSafe   Status = "SAFE"
	StatusUnsafe Status = "UNSAFE"
)

// Reading is one classified sensor sample. It is never mutated after the
// classifier creates it.
type Reading struct {
	CapturedAt time.Time `db:"captured_at" json:"capturedAt"`
	PH         float64   `db:"ph" json:"ph"`
	TDS        float64   `db:"tds" json:"tds"`
	Temp       float64   `db:"temp" json:"temp"`
	Turbidity  float64   `db:"turbidity" json:"turbidity"`
	Status     Status    `db:"status" json:"status"`
	Lat        *float64  `db:"lat" json:"lat,omitempty"`
	Lng        *float64  `db:"lng" json:"lng,omitempty"`
}

func (r Reading) Unsafe() bool { return r.Status == StatusUnsafe }

// Coordinates reports the reading's location, ok is false when either axis
// is missing.
func (r Reading) Coordinates() (lat, lng float64, ok bool) {
	if r.Lat == nil || r.Lng == nil {
		return 0, 0, false
	}
	return *r.Lat, *r.Lng, true
}

// Pin is a geotagged cluster holding the latest reading observed near it.
type Pin struct {
	ID          string    `json:"id"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	LastReading Reading   `json:"lastReading"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Notification struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority string   `json:"priority"`
	Tags     []string `json:"tags,omitempty"`
}
