package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/ignis/internal/ir"
)

// Metrics holds the scheduler's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	actions       *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	journalWrites *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ignis",
			Name:      "actions_total",
			Help:      "Actions finished by the scheduler, by kind and final status.",
		}, []string{"kind", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ignis",
			Name:      "action_duration_seconds",
			Help:      "Time from started write to outcome write, by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"kind"}),
		journalWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ignis",
			Name:      "journal_writes_total",
			Help:      "Journal writes issued by the scheduler, by result.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.actions, m.duration, m.journalWrites)
	return m
}

func (m *Metrics) observeAction(kind ir.Kind, status ActionStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(string(kind), string(status)).Inc()
	if d > 0 {
		m.duration.WithLabelValues(string(kind)).Observe(d.Seconds())
	}
}

func (m *Metrics) observeJournalWrite(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.journalWrites.WithLabelValues(status).Inc()
}

// WriteTextfile writes everything gathered from g to path in the text
// exposition format, for the node exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
