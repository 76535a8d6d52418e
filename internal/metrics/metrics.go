// Package metrics holds the Prometheus collectors for the bot core.
//
// All methods are safe on a nil *Metrics so components can run without
// observability wired (tests, check-config).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lxpbot"

type Metrics struct {
	reg *prometheus.Registry

	queueDepth     prometheus.Gauge
	queueDropped   prometheus.Counter
	queueProcessed *prometheus.CounterVec
	rateDenied     *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	evictions      *prometheus.CounterVec
	reminders      prometheus.Gauge
	reminderFires  *prometheus.CounterVec
	sessions       prometheus.Gauge
	flushes        *prometheus.CounterVec
	notifications  *prometheus.CounterVec
}

// New registers every collector on a private registry, plus the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "queue", Name: "depth",
			Help: "Entries waiting in the message serializer.",
		}),
		queueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "dropped_total",
			Help: "Entries rejected because the serializer was full.",
		}),
		queueProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "processed_total",
			Help: "Handlers run by the serializer by outcome.",
		}, []string{"outcome"}),
		rateDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ratelimit", Name: "denied_total",
			Help: "Requests denied by the rate limiter.",
		}, []string{"scope"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "refresh_total",
			Help: "Credential refresh attempts by trigger and result.",
		}, []string{"trigger", "result"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "evictions_total",
			Help: "Sessions evicted after refresh failure.",
		}, []string{"reason"}),
		reminders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "reminder", Name: "active",
			Help: "Registered daily reminders.",
		}),
		reminderFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reminder", Name: "fired_total",
			Help: "Reminder executions by outcome.",
		}, []string{"outcome"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "session", Name: "active",
			Help: "Sessions held in memory.",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "flush_total",
			Help: "Session snapshot flushes by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "sent_total",
			Help: "Outbound messages by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.queueDepth, m.queueDropped, m.queueProcessed,
		m.rateDenied, m.refreshes, m.evictions,
		m.reminders, m.reminderFires, m.sessions, m.flushes, m.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) QueueDropped() {
	if m != nil {
		m.queueDropped.Inc()
	}
}

// QueueProcessed records a handler outcome: "ok", "error" or "panic".
func (m *Metrics) QueueProcessed(outcome string) {
	if m != nil {
		m.queueProcessed.WithLabelValues(outcome).Inc()
	}
}

// RateDenied records a denial; scope is "global" or "command".
func (m *Metrics) RateDenied(scope string) {
	if m != nil {
		m.rateDenied.WithLabelValues(scope).Inc()
	}
}

// Refresh records a credential refresh; trigger is "login", "sweep",
// "stale" or "retry".
func (m *Metrics) Refresh(trigger string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "fail"
	}
	m.refreshes.WithLabelValues(trigger, result).Inc()
}

func (m *Metrics) Evicted(reason string) {
	if m != nil {
		m.evictions.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) SetActiveReminders(n int) {
	if m != nil {
		m.reminders.Set(float64(n))
	}
}

func (m *Metrics) ReminderFired(outcome string) {
	if m != nil {
		m.reminderFires.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SetSessions(n int) {
	if m != nil {
		m.sessions.Set(float64(n))
	}
}

func (m *Metrics) Flushed(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.flushes.WithLabelValues("error").Inc()
		return
	}
	m.flushes.WithLabelValues("ok").Inc()
}

// NotifySent records an outbound delivery: "ok", "retry" or "fail".
func (m *Metrics) NotifySent(result string) {
	if m != nil {
		m.notifications.WithLabelValues(result).Inc()
	}
}
