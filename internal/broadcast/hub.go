package broadcast

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/metrics"
)

// Subscriber is one connected viewer. Deliver must not block: it returns
// false when the message could not be queued (buffer full or subscriber
// gone).
type Subscriber interface {
	Deliver(msg []byte) bool
}

// Hub keeps the subscribers of every device scope and fans messages out to
// them. Publish walks all subscribers of the scope, so its cost grows with
// the number of viewers.
type Hub struct {
	mu     sync.RWMutex
	scopes map[string]map[Subscriber]struct{}
	logger zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		scopes: make(map[string]map[Subscriber]struct{}),
		logger: log.With().Str("component", "hub").Logger(),
	}
}

// Join registers s under scope and hands it catchUp before any later
// publish can reach it.
func (h *Hub) Join(scope string, s Subscriber, catchUp []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.scopes[scope]
	if !ok {
		subs = make(map[Subscriber]struct{})
		h.scopes[scope] = subs
	}
	if _, dup := subs[s]; dup {
		return
	}
	subs[s] = struct{}{}
	metrics.Subscribers.Inc()

	if catchUp != nil && !s.Deliver(catchUp) {
		h.logger.Warn().Str("device", scope).Msg("catch-up not delivered")
	}
	h.logger.Debug().Str("device", scope).Int("subscribers", len(subs)).Msg("subscriber joined")
}

func (h *Hub) Leave(scope string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.scopes[scope]
	if !ok {
		return
	}
	if _, ok := subs[s]; !ok {
		return
	}
	delete(subs, s)
	metrics.Subscribers.Dec()
	if len(subs) == 0 {
		delete(h.scopes, scope)
	}
	h.logger.Debug().Str("device", scope).Msg("subscriber left")
}

// Publish delivers msg to every subscriber of scope and returns how many
// accepted it. Subscribers that refuse are skipped, never retried.
func (h *Hub) Publish(scope string, msg []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.scopes[scope] {
		if s.Deliver(msg) {
			delivered++
		}
	}
	if skipped := len(h.scopes[scope]) - delivered; skipped > 0 {
		h.logger.Debug().Str("device", scope).Int("skipped", skipped).Msg("slow or closed subscribers skipped")
	}
	return delivered
}

func (h *Hub) Count(scope string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scopes[scope])
}
