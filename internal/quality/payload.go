package quality

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
)

// DecodeJSON reads a JSON object carrying the sample fields and an optional
// device. Field values may be JSON numbers or strings; anything else is
// left for Classify to reject.
func DecodeJSON(body []byte) (device string, s Sample, err error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return "", Sample{}, fmt.Errorf("%w: malformed JSON body: %w", domain.ErrInvalidReading, err)
	}

	s = Sample{
		PH:        text(raw["ph"]),
		TDS:       text(raw["tds"]),
		Temp:      text(raw["temp"]),
		Turbidity: text(raw["turbidity"]),
		Lat:       text(raw["lat"]),
		Lng:       text(raw["lng"]),
	}
	device, _ = raw["device"].(string)
	return device, s, nil
}

func text(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
