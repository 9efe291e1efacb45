// Package metrics holds the Prometheus collectors exported on the metrics endpoint.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatsphere"

// Metrics groups the application collectors around a private registry
type Metrics struct {
	registry *prometheus.Registry

	messagesAppended prometheus.Counter
	eventsPublished  *prometheus.CounterVec
	eventsDelivered  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	liveSessions     prometheus.Gauge
	rateLimited      prometheus.Counter
}

// New creates and registers all collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		messagesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Messages stored in any chat.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Push events handed to the publisher, by event name.",
		}, []string{"event"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Push events queued on a live session, by event name.",
		}, []string{"event"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Push events dropped because a session buffer was full, by event name.",
		}, []string{"event"}),
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_sessions",
			Help:      "Authenticated push sessions currently connected.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the message rate limiter.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesAppended,
		m.eventsPublished,
		m.eventsDelivered,
		m.eventsDropped,
		m.liveSessions,
		m.rateLimited,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) MessageAppended() {
	if m != nil {
		m.messagesAppended.Inc()
	}
}

func (m *Metrics) EventPublished(event string) {
	if m != nil {
		m.eventsPublished.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) EventDelivered(event string) {
	if m != nil {
		m.eventsDelivered.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) EventDropped(event string) {
	if m != nil {
		m.eventsDropped.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.liveSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.liveSessions.Dec()
	}
}

func (m *Metrics) RateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}
