package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/config"
)

// Payload mirrors the JSON body accepted by POST /data and the MQTT ingest.
type Payload struct {
	PH        float64 `json:"ph"`
	TDS       float64 `json:"tds"`
	Temp      float64 `json:"temp"`
	Turbidity float64 `json:"turbidity"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

func main() {
	device := flag.String("device", "sim-001", "device id published in the topic")
	count := flag.Int("count", 100, "number of readings to publish")
	interval := flag.Duration("interval", 500*time.Millisecond, "delay between readings")
	unsafeRate := flag.Float64("unsafe", 0.1, "share of readings pushed out of the safe range")
	lat := flag.Float64("lat", 53.3498, "base latitude")
	lng := flag.Float64("lng", -6.2603, "base longitude")
	flag.Parse()

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(config.MQTTBroker()).
		SetClientID(fmt.Sprintf("water-simulator-%d", time.Now().UnixNano()))
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("mqtt connect")
	}
	defer client.Disconnect(250)

	topic := fmt.Sprintf("water/%s/readings", *device)
	for i := 0; i < *count; i++ {
		// up to ~50 m of drift so both new and reused pins show up
		p := Payload{
			PH:        6.8 + rand.Float64()*1.2,
			TDS:       80 + rand.Float64()*300,
			Temp:      12 + rand.Float64()*15,
			Turbidity: rand.Float64() * 5,
			Lat:       *lat + (rand.Float64()-0.5)*0.0009,
			Lng:       *lng + (rand.Float64()-0.5)*0.0009,
		}
		if rand.Float64() < *unsafeRate {
			p.PH = 9 + rand.Float64()
			p.Turbidity = 12 + rand.Float64()*10
		}

		payload, err := json.Marshal(p)
		if err != nil {
			log.Fatal().Err(err).Msg("encode reading")
		}
		token := client.Publish(topic, 1, false, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Error().Err(err).Msg("publish failed")
		}
		time.Sleep(*interval)
	}
	log.Info().Str("topic", topic).Int("count", *count).Msg("simulation done")
}
