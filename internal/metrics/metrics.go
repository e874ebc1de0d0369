// Package metrics holds the Prometheus collectors of the reminder engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	// label: kind (primary, daily, snooze, advance, strategy, neglect, persistent)
	NotificationsFired *prometheus.CounterVec
	// label: reason (quiet_hours, muted, permission)
	NotificationsSuppressed *prometheus.CounterVec
	DedupSkips              *prometheus.CounterVec
	// label: op (reminder_sent, snooze, status, progress, completion_record, behavior)
	PersistFailures *prometheus.CounterVec
	TickDuration    prometheus.Histogram
}

// New registers every collector on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		NotificationsFired: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remindd_notifications_fired_total",
				Help: "Total number of reminders delivered to the emitter",
			},
			[]string{"kind"},
		),
		NotificationsSuppressed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remindd_notifications_suppressed_total",
				Help: "Total number of reminders withheld",
			},
			[]string{"reason"},
		),
		DedupSkips: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remindd_dedup_skips_total",
				Help: "Total number of checkpoints skipped because they already fired",
			},
			[]string{"kind"},
		),
		PersistFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remindd_persist_failures_total",
				Help: "Total number of failed writes to the task store",
			},
			[]string{"op"},
		),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "remindd_tick_duration_seconds",
			Help:    "Duration of one scheduler evaluation pass",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
	}
}

func (m *Metrics) ObserveTick(d time.Duration) {
	m.TickDuration.Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
