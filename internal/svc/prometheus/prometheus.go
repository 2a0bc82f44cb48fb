package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tunesync/api/internal/instance"
)

type Options struct {
	Labels prometheus.Labels
}

func New(o Options) instance.Prometheus {
	return &Instance{
		gatewayConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "api_gateway_connections",
			Help:        "Number of open gateway connections",
			ConstLabels: o.Labels,
		}),
		gatewayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "api_gateway_messages_total",
			Help:        "Inbound gateway messages by type",
			ConstLabels: o.Labels,
		}, []string{"type"}),
		presencePushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "api_presence_pushes_total",
			Help:        "Outbound rich presence calls by outcome",
			ConstLabels: o.Labels,
		}, []string{"outcome"}),
	}
}

type Instance struct {
	gatewayConnections prometheus.Gauge
	gatewayMessages    *prometheus.CounterVec
	presencePushes     *prometheus.CounterVec
}

func (m *Instance) Register(r prometheus.Registerer) {
	r.MustRegister(
		m.gatewayConnections,
		m.gatewayMessages,
		m.presencePushes,
	)
}

func (m *Instance) GatewayConnections() prometheus.Gauge {
	return m.gatewayConnections
}

func (m *Instance) GatewayMessages() *prometheus.CounterVec {
	return m.gatewayMessages
}

func (m *Instance) PresencePushes() *prometheus.CounterVec {
	return m.presencePushes
}
