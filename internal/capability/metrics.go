package capability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Call outcomes used as the "outcome" label.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	Calls    *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the gateway collectors and registers them on reg.
// A nil reg leaves them unregistered. When reg already holds collectors of
// the same name, as after reopening a registry in the same process, those
// are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Calls: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyhub_capability_calls_total",
				Help: "Total number of capability invocations through the gateway",
			},
			[]string{"addon", "capability", "outcome"},
		)),
		Duration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyhub_capability_call_duration_seconds",
				Help:    "Capability invocation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"addon", "capability"},
		)),
	}
}

// register adds c to reg, returning the collector already registered under
// the same descriptor if there is one. Any other registration error means
// two incompatible collectors share a name and panics like MustRegister.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(err)
}

// RecordCall records one finished invocation.
func (m *Metrics) RecordCall(addon, capability, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(addon, capability, outcome).Inc()
	m.Duration.WithLabelValues(addon, capability).Observe(duration.Seconds())
}
