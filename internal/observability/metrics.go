package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the HUD process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionTransitions *prometheus.CounterVec
	RecognizerEvents   *prometheus.CounterVec
	RecognizerErrors   *prometheus.CounterVec
	Restarts           *prometheus.CounterVec
	InstancesCreated   prometheus.Counter
	Listening          prometheus.Gauge
	SettingsOps        *prometheus.CounterVec
	WSClients          prometheus.Gauge
	WSMessages         *prometheus.CounterVec
}

// NewMetrics registers the instruments on a private registry
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SessionTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_session_transitions_total",
			Help:      "Speech session lifecycle transitions by target phase.",
		}, []string{"phase"}),
		RecognizerEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_events_total",
			Help:      "Recognizer events by type.",
		}, []string{"type"}),
		RecognizerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_errors_total",
			Help:      "Recognizer error events by host reason.",
		}, []string{"reason"}),
		Restarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_restarts_total",
			Help:      "Automatic recognizer restarts by outcome.",
		}, []string{"outcome"}),
		InstancesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_instances_created_total",
			Help:      "Recognizer instances constructed.",
		}),
		Listening: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speech_listening",
			Help:      "1 while the listening intent is on.",
		}),
		SettingsOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_operations_total",
			Help:      "Settings store operations by kind and result.",
		}, []string{"op", "result"}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected websocket clients.",
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SessionTransition(phase string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(phase).Inc()
}

func (m *Metrics) RecognizerEvent(eventType string) {
	if m == nil {
		return
	}
	m.RecognizerEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecognizerError(reason string) {
	if m == nil {
		return
	}
	m.RecognizerErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) Restart(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.Restarts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) InstanceCreated() {
	if m == nil {
		return
	}
	m.InstancesCreated.Inc()
}

func (m *Metrics) SetListening(on bool) {
	if m == nil {
		return
	}
	if on {
		m.Listening.Set(1)
	} else {
		m.Listening.Set(0)
	}
}

func (m *Metrics) SettingsOperation(op, result string) {
	if m == nil {
		return
	}
	m.SettingsOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

func (m *Metrics) WSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}
