package harness

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the harness counters. Each harness owns its registry so
// several can run in one process.
type Metrics struct {
	Registry *prometheus.Registry

	Clients        *prometheus.GaugeVec
	Relays         prometheus.Gauge
	RelayFrames    *prometheus.CounterVec
	RelayFailures  prometheus.Counter
	ProcessStarts  prometheus.Counter
	ProcessRunning prometheus.Gauge
	Checkpoints    *prometheus.CounterVec
}

// NewMetrics registers the harness metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Clients: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "affairs_clients",
			Help: "Connected websocket clients by endpoint",
		}, []string{"endpoint"}),
		Relays: f.NewGauge(prometheus.GaugeOpts{
			Name: "affairs_relays_open",
			Help: "Relays currently connected to the inner server",
		}),
		RelayFrames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "affairs_relay_frames_total",
			Help: "Frames carried by relays by direction",
		}, []string{"direction"}),
		RelayFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "affairs_relay_failures_total",
			Help: "Relays that ended or failed to open",
		}),
		ProcessStarts: f.NewCounter(prometheus.CounterOpts{
			Name: "affairs_process_starts_total",
			Help: "EV process launches",
		}),
		ProcessRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "affairs_process_running",
			Help: "1 while the EV process is running",
		}),
		Checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Name: "affairs_checkpoint_resolutions_total",
			Help: "Resolved checkpoint waits by kind and how they were resolved",
		}, []string{"kind", "via"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
