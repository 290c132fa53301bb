package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for TTSRequests.
const (
	OutcomeOK           = "ok"
	OutcomeNoCredential = "no_credential"
	OutcomeBadRequest   = "bad_request"
	OutcomeTooLarge     = "too_large"
	OutcomeRateLimited  = "rate_limited"
	OutcomeTransport    = "transport_error"
	OutcomeUnparseable  = "unparseable"
)

var RequestSecondsBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60}

type Metrics struct {
	TTSRequests        *prometheus.CounterVec
	TTSUpstreamSeconds prometheus.Histogram

	StaticRequests *prometheus.CounterVec

	WebSocketConnections prometheus.Gauge
}

var m = &Metrics{
	TTSRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "tts",
		Name:      "requests_total",
	}, []string{"outcome"}),
	TTSUpstreamSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
		Subsystem: "tts",
		Name:      "upstream_request_seconds",
		Buckets:   RequestSecondsBuckets,
	}),
	StaticRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "static",
		Name:      "requests_total",
	}, []string{"code"}),
	WebSocketConnections: prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "websocket",
		Name:      "connections",
	}),
}

// Get returns the process-wide collectors. They are usable whether or not
// they have been registered.
func Get() *Metrics {
	return m
}

func Register(reg prometheus.Registerer) {
	reg.MustRegister(m.TTSRequests)
	reg.MustRegister(m.TTSUpstreamSeconds)
	reg.MustRegister(m.StaticRequests)
	reg.MustRegister(m.WebSocketConnections)
}
