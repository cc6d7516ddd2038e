package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the external surface and the
// dispatch path. A single instance is shared between the HTTP server and the
// chat router wiring.
type Metrics struct {
	AuthFlows        *prometheus.CounterVec
	CallbackDuration prometheus.Histogram
	Dispatches       *prometheus.CounterVec
	TokenRefreshes   *prometheus.CounterVec
}

// NewMetrics registers the collectors on the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuthFlows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calbot",
			Subsystem: "auth",
			Name:      "flows_total",
			Help:      "Authorization callback outcomes.",
		}, []string{"outcome"}),
		CallbackDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "calbot",
			Subsystem: "auth",
			Name:      "callback_duration_seconds",
			Help:      "Time spent handling the OAuth callback.",
			Buckets:   prometheus.DefBuckets,
		}),
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calbot",
			Subsystem: "dispatch",
			Name:      "operations_total",
			Help:      "Tool dispatch outcomes by operation and status.",
		}, []string{"operation", "status"}),
		TokenRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calbot",
			Subsystem: "auth",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh outcomes.",
		}, []string{"outcome"}),
	}
}

// ObserveDispatch implements dispatch.Observer.
func (m *Metrics) ObserveDispatch(operation, status string) {
	m.Dispatches.WithLabelValues(operation, status).Inc()
}

// ObserveRefresh implements auth.RefreshObserver.
func (m *Metrics) ObserveRefresh(outcome string) {
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// Callback outcome label values.
const (
	OutcomeSuccess      = "success"
	OutcomeDenied       = "denied"
	OutcomeInvalidState = "invalid_state"
	OutcomeExchangeFail = "exchange_failed"
	OutcomeBadRequest   = "bad_request"
)
