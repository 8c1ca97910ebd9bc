package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "water_monitor"

var (
	Readings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Accepted readings by classification status.",
		}, []string{"status"},
	)

	Rejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Ingest calls rejected as invalid readings.",
		},
	)

	Alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert decisions for unsafe readings (sent, failed, throttled).",
		}, []string{"result"},
	)

	DownstreamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downstream_failures_total",
			Help:      "Failed durable-store or notification calls by operation.",
		}, []string{"op"},
	)

	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Currently connected live subscribers.",
		},
	)

	PinsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pins_created_total",
			Help:      "Pins created by the clustering index.",
		},
	)
)

func init() {
	MustRegister(Readings)
	MustRegister(Rejected)
	MustRegister(Alerts)
	MustRegister(DownstreamFailures)
	MustRegister(Subscribers)
	MustRegister(PinsCreated)
}

// MustRegister wraps prometheus.MustRegister, replacing a collector that is
// already registered instead of panicking on it.
func MustRegister(c prometheus.Collector) {
	err := prometheus.Register(c)
	if err != nil {
		if prometheus.Unregister(c) {
			prometheus.MustRegister(c)
		} else {
			panic(err)
		}
	}
}
