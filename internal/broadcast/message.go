package broadcast

import (
	"encoding/json"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
)

const (
	TypeHistory = "history"
	TypeReading = "reading"
	TypeReset   = "reset"
)

// Message is the envelope of everything sent to subscribers.
type Message struct {
	Type    string `json:"type"`
	Device  string `json:"device"`
	Payload any    `json:"payload,omitempty"`
}

func HistoryMessage(device string, readings []domain.Reading) ([]byte, error) {
	if readings == nil {
		readings = []domain.Reading{}
	}
	return json.Marshal(Message{Type: TypeHistory, Device: device, Payload: readings})
}

func ReadingMessage(device string, r domain.Reading) ([]byte, error) {
	return json.Marshal(Message{Type: TypeReading, Device: device, Payload: r})
}

func ResetMessage(device string) ([]byte, error) {
	return json.Marshal(Message{Type: TypeReset, Device: device})
}
