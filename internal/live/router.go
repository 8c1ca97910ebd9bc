package live

import (
	stdlog "log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/websocket"
)

// NewRouter serves the live side of the monitor: websocket subscriptions
// and Prometheus metrics.
func NewRouter(subs websocket.Subscriptions) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  stdlog.New(log.Logger, "", 0),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	r.Get("/ws", websocket.Handler(subs))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
