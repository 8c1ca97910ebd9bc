package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/quality"
)

const (
	qos             = 1
	disconnectQuiet = 250 // ms
)

type Ingester interface {
	Ingest(ctx context.Context, device string, s quality.Sample) (domain.Reading, error)
}

// Subscriber feeds MQTT sensor messages into the monitor. With a topic like
// water/+/readings the "+" segment names the device; otherwise the payload's
// device field does.
type Subscriber struct {
	client   mqtt.Client
	topic    string
	ingester Ingester
	ctx      context.Context
	logger   zerolog.Logger
}

func NewSubscriber(broker, clientID, topic string, ing Ingester) *Subscriber {
	s := &Subscriber{
		topic:    topic,
		ingester: ing,
		ctx:      context.Background(),
		logger:   log.With().Str("component", "mqtt").Str("topic", topic).Logger(),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(s.subscribe).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.logger.Warn().Err(err).Msg("connection lost")
		})
	s.client = mqtt.NewClient(opts)
	return s
}

// Start connects to the broker. Subscriptions are (re)made on every
// connect. Messages are ingested under ctx.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx = ctx
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

func (s *Subscriber) Stop() {
	s.client.Disconnect(disconnectQuiet)
	s.logger.Info().Msg("mqtt disconnected")
}

func (s *Subscriber) subscribe(c mqtt.Client) {
	if token := c.Subscribe(s.topic, qos, s.handle); token.Wait() && token.Error() != nil {
		s.logger.Error().Err(token.Error()).Msg("subscribe failed")
		return
	}
	s.logger.Info().Msg("subscribed")
}

func (s *Subscriber) handle(_ mqtt.Client, msg mqtt.Message) {
	device, sample, err := quality.DecodeJSON(msg.Payload())
	if err == nil {
		if d := DeviceFromTopic(s.topic, msg.Topic()); d != "" {
			device = d
		}
		_, err = s.ingester.Ingest(s.ctx, device, sample)
	}

	switch {
	case errors.Is(err, domain.ErrInvalidReading):
		s.logger.Warn().Err(err).Str("from", msg.Topic()).Msg("dropping invalid payload")
	case err != nil:
		s.logger.Error().Err(err).Str("from", msg.Topic()).Msg("ingest failed")
	}
}

// DeviceFromTopic returns the topic level matched by the first "+" in
// pattern, or "" when the pattern has none or the topic does not match.
func DeviceFromTopic(pattern, topic string) string {
	want := strings.Split(pattern, "/")
	got := strings.Split(topic, "/")

	device := ""
	for i, level := range want {
		if level == "#" {
			break
		}
		if i >= len(got) {
			return ""
		}
		switch level {
		case "+":
			if device == "" {
				device = got[i]
			}
		case got[i]:
		default:
			return ""
		}
	}
	if !strings.Contains(pattern, "#") && len(got) != len(want) {
		return ""
	}
	return device
}
