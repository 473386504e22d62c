package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OAuth2 flow metrics. Standalone package to avoid import cycles between the
// core orchestrator and the HTTP packages.

var (
	FlowOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth2_flow_outcomes_total",
		Help: "Resultados por operación del flujo (authorize/authenticate/refresh)",
	}, []string{"op", "provider", "outcome"})

	HandlerBuilds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth2_handler_builds_total",
		Help: "Construcciones de handlers por el registry",
	}, []string{"provider", "result"})

	ExchangeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oauth2_exchange_latency_ms",
		Help:    "Latencia del token endpoint del proveedor en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"provider", "grant"})
)

// RegisterFlow registers the flow metrics on the given registry (or default if nil).
func RegisterFlow(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(FlowOutcomes); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	if err := reg.Register(HandlerBuilds); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	if err := reg.Register(ExchangeLatency); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	return nil
}
