package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/quality"
)

const DefaultPriority = "urgent"

// Alerter turns unsafe readings into notifications for a fixed topic.
type Alerter struct {
	topic    string
	priority string
}

func NewAlerter(topic, priority string) *Alerter {
	if priority == "" {
		priority = DefaultPriority
	}
	return &Alerter{topic: topic, priority: priority}
}

func (a *Alerter) Build(device string, r domain.Reading) domain.Notification {
	return domain.Notification{
		Topic:    a.topic,
		Title:    fmt.Sprintf("Unsafe water detected on %s", device),
		Message:  describe(device, r),
		Priority: a.priority,
		Tags:     append([]string{"warning", "droplet"}, violations(r)...),
	}
}

func describe(device string, r domain.Reading) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Device: %s\n", device)
	fmt.Fprintf(&b, "pH: %.2f\nTDS: %.1f ppm\nTemperature: %.1f C\nTurbidity: %.1f NTU\n",
		r.PH, r.TDS, r.Temp, r.Turbidity)
	if lat, lng, ok := r.Coordinates(); ok {
		fmt.Fprintf(&b, "Location: %.5f, %.5f\n", lat, lng)
	}
	if v := violations(r); len(v) > 0 {
		fmt.Fprintf(&b, "Out of range: %s\n", strings.Join(v, ", "))
	}
	fmt.Fprintf(&b, "Time: %s", r.CapturedAt.UTC().Format(time.RFC3339))
	return b.String()
}

func violations(r domain.Reading) []string {
	var out []string
	if r.PH < quality.MinPH || r.PH > quality.MaxPH {
		out = append(out, "ph")
	}
	if r.TDS > quality.MaxTDS {
		out = append(out, "tds")
	}
	if r.Temp > quality.MaxTemp {
		out = append(out, "temp")
	}
	if r.Turbidity > quality.MaxTurbidity {
		out = append(out, "turbidity")
	}
	return out
}

// LogNotifier writes notifications to the log instead of sending them. It
// stands in when no notification topic is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n domain.Notification) error {
	log.Warn().
		Str("component", "alerting").
		Str("topic", n.Topic).
		Str("priority", n.Priority).
		Strs("tags", n.Tags).
		Str("title", n.Title).
		Msg(n.Message)
	return nil
}
