package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var commandBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2}

type hubMetrics struct {
	commands        *prometheus.CounterVec
	commandLatency  *prometheus.HistogramVec
	connected       prometheus.Gauge
	refreshFailures *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *hubMetrics
)

// metrics returns the process-wide hub collectors, registering them once.
func metrics() *hubMetrics {
	metricsOnce.Do(func() {
		m := &hubMetrics{
			commands: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "servertracker",
				Subsystem: "hub",
				Name:      "commands_total",
				Help:      "Count of processed hub commands by outcome",
			}, []string{"command", "outcome"}),
			commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "servertracker",
				Subsystem: "hub",
				Name:      "command_duration_seconds",
				Help:      "Latency distribution of hub commands",
				Buckets:   commandBuckets,
			}, []string{"command"}),
			connected: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "servertracker",
				Subsystem: "hub",
				Name:      "connected_clients",
				Help:      "Number of currently connected clients",
			}),
			refreshFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "servertracker",
				Subsystem: "hub",
				Name:      "broadcast_refresh_failures_total",
				Help:      "Post-mutation refreshes that failed and were not broadcast",
			}, []string{"type"}),
		}
		m.commands = registerOrExisting(m.commands)
		m.commandLatency = registerOrExisting(m.commandLatency)
		m.connected = registerOrExisting(m.connected)
		m.refreshFailures = registerOrExisting(m.refreshFailures)
		sharedMetrics = m
	})
	return sharedMetrics
}

// registerOrExisting registers c, falling back to an identical collector that
// is already registered.
func registerOrExisting[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *hubMetrics) observeCommand(cmd Command, outcome string, duration time.Duration) {
	m.commands.WithLabelValues(cmd.String(), outcome).Inc()
	m.commandLatency.WithLabelValues(cmd.String()).Observe(duration.Seconds())
}
