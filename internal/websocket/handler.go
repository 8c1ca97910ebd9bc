package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/broadcast"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Subscriptions is the part of the monitor a live viewer needs.
type Subscriptions interface {
	Device(name string) string
	Subscribe(device string, sub broadcast.Subscriber) (func(), error)
}

// Handler upgrades GET /ws?device= and streams that device's history,
// readings and resets until the peer disconnects.
func Handler(subs Subscriptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("component", "websocket").Msg("upgrade failed")
			return
		}

		device := subs.Device(r.URL.Query().Get("device"))
		client := NewClient(conn, device)

		leave, err := subs.Subscribe(device, client)
		if err != nil {
			client.logger.Error().Err(err).Msg("subscribe failed")
			conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()

		leave()
		client.Close()
	}
}
