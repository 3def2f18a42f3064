package httpx

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

type routerMetrics struct {
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
}

var (
	routerMetricsOnce   sync.Once
	sharedRouterMetrics *routerMetrics
)

func newRouterMetrics() *routerMetrics {
	routerMetricsOnce.Do(func() {
		sharedRouterMetrics = &routerMetrics{
			requestTotal: register(prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "servertracker",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Count of processed HTTP requests",
			}, []string{"method", "route", "status"})),
			requestLatency: register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "servertracker",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution of HTTP handlers",
				Buckets:   histogramBuckets,
			}, []string{"method", "route", "status"})),
			rateLimitHits: register(prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "servertracker",
				Subsystem: "http",
				Name:      "rate_limit_hits_total",
				Help:      "Number of rate-limited responses",
			}, []string{"route", "key"})),
		}
	})
	return sharedRouterMetrics
}

func register[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *routerMetrics) recordRequest(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(duration.Seconds())
}

func (m *routerMetrics) recordRateLimitHit(route, key string) {
	m.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}
