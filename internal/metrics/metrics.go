// Package metrics exposes relay counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quailyquaily/telegramdock/relay"
)

type Metrics struct {
	// Events by routing outcome.
	EventsTotal *prometheus.CounterVec

	// Relay failures by direction (to_operator, to_user).
	RelayFailuresTotal *prometheus.CounterVec

	// Snapshot writes that failed, by store.
	PersistenceErrorsTotal *prometheus.CounterVec

	// 1 when an operator is configured.
	OperatorMode prometheus.Gauge
}

var _ relay.Observer = (*Metrics)(nil)

// New registers the collectors on reg. A nil reg gets a private registry
// that is never scraped.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Metrics{
		EventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "telegramdock_events_total",
			Help: "Inbound events by routing outcome.",
		}, []string{"route"}),

		RelayFailuresTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "telegramdock_relay_failures_total",
			Help: "Relay transport failures by direction.",
		}, []string{"direction"}),

		PersistenceErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "telegramdock_persistence_errors_total",
			Help: "Failed profile or audit snapshot writes.",
		}, []string{"store"}),

		OperatorMode: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "telegramdock_operator_mode",
			Help: "Routing mode (0=no_operator, 1=with_operator).",
		}),
	}
}

func (m *Metrics) ObserveRoute(route relay.Route) {
	m.EventsTotal.WithLabelValues(string(route)).Inc()
}

func (m *Metrics) ObserveRelayFailure(direction relay.Direction) {
	m.RelayFailuresTotal.WithLabelValues(string(direction)).Inc()
}

func (m *Metrics) ObservePersistenceError(store string) {
	m.PersistenceErrorsTotal.WithLabelValues(store).Inc()
}

func (m *Metrics) ObserveMode(mode relay.Mode) {
	if mode == relay.ModeWithOperator {
		m.OperatorMode.Set(1)
		return
	}
	m.OperatorMode.Set(0)
}
