// Package metrics holds the Prometheus collectors for streaming sessions.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rustyeddy/bdschart/market"
)

const namespace = "bdschart"

type Metrics struct {
	Registry *prometheus.Registry

	messages    *prometheus.CounterVec
	parseErrors prometheus.Counter
	bars        *prometheus.CounterVec
	loads       *prometheus.CounterVec
	state       *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "Streaming messages received, by event type.",
		}, []string{"type"}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_parse_errors_total",
			Help:      "Streaming messages that could not be decoded.",
		}),
		bars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bar_events_total",
			Help:      "Chart bar events, by kind (new|update).",
		}, []string{"event"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_loads_total",
			Help:      "Historical loads, by result (ok|error|stale).",
		}, []string{"result"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current streaming connection state, 0 otherwise.",
		}, []string{"state"}),
	}
	m.Registry.MustRegister(m.messages, m.parseErrors, m.bars, m.loads, m.state)
	m.SetState(market.Disconnected)
	return m
}

func (m *Metrics) Message(eventType string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ParseError() {
	if m == nil {
		return
	}
	m.parseErrors.Inc()
}

func (m *Metrics) Bar(ev market.BarEvent) {
	if m == nil {
		return
	}
	m.bars.WithLabelValues(ev.String()).Inc()
}

func (m *Metrics) Load(result string) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(result).Inc()
}

func (m *Metrics) SetState(s market.ConnectionState) {
	if m == nil {
		return
	}
	for _, st := range []market.ConnectionState{market.Disconnected, market.Connecting, market.Connected} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(st.String()).Set(v)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
