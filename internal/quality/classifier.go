package quality

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
)

// Safe-water thresholds. A reading outside any of them is UNSAFE.
const (
	MinPH        = 6.5
	MaxPH        = 8.5
	MaxTDS       = 500.0
	MaxTemp      = 35.0
	MaxTurbidity = 10.0
)

// Sample is the raw, still textual form of a reading as it arrives from a
// device. Lat and Lng may be empty.
type Sample struct {
	PH        string
	TDS       string
	Temp      string
	Turbidity string
	Lat       string
	Lng       string
}

// Classify parses a sample and tags it SAFE or UNSAFE. It fails with
// domain.ErrInvalidReading when a mandatory field is missing or not a finite
// number. Coordinates that are missing, malformed or out of range leave the
// reading without a location.
func Classify(s Sample, now time.Time) (domain.Reading, error) {
	ph, err := parseField("ph", s.PH)
	if err != nil {
		return domain.Reading{}, err
	}
	tds, err := parseField("tds", s.TDS)
	if err != nil {
		return domain.Reading{}, err
	}
	temp, err := parseField("temp", s.Temp)
	if err != nil {
		return domain.Reading{}, err
	}
	turbidity, err := parseField("turbidity", s.Turbidity)
	if err != nil {
		return domain.Reading{}, err
	}

	r := domain.Reading{
		CapturedAt: now,
		PH:         ph,
		TDS:        tds,
		Temp:       temp,
		Turbidity:  turbidity,
		Status:     StatusOf(ph, tds, temp, turbidity),
	}
	if lat, lng, ok := parseCoordinates(s.Lat, s.Lng); ok {
		r.Lat, r.Lng = &lat, &lng
	}
	return r, nil
}

// StatusOf applies the threshold rule. The checks are an OR, so their order
// does not matter.
func StatusOf(ph, tds, temp, turbidity float64) domain.Status {
	if ph < MinPH || ph > MaxPH || tds > MaxTDS || temp > MaxTemp || turbidity > MaxTurbidity {
		return domain.StatusUnsafe
	}
	return domain.StatusSafe
}

func parseField(name, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrInvalidReading, name)
	}
	v, err := parseDecimal(raw)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s must be a finite number, got %q", domain.ErrInvalidReading, name, raw)
	}
	return v, nil
}

func parseCoordinates(rawLat, rawLng string) (float64, float64, bool) {
	lat, err := parseDecimal(strings.TrimSpace(rawLat))
	if err != nil || math.IsNaN(lat) || lat < -90 || lat > 90 {
		return 0, 0, false
	}
	lng, err := parseDecimal(strings.TrimSpace(rawLng))
	if err != nil || math.IsNaN(lng) || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}

var errNotDecimal = errors.New("not a decimal number")

// parseDecimal is strconv.ParseFloat without the hex form ("0x1p3").
func parseDecimal(raw string) (float64, error) {
	if strings.ContainsAny(raw, "xX") {
		return 0, errNotDecimal
	}
	return strconv.ParseFloat(raw, 64)
}
