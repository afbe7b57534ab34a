// internal/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pumpwatch"

// Metrics holds the prometheus collectors of the pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Feed
	FeedState      *prometheus.GaugeVec
	FeedStateTrans *prometheus.CounterVec
	Notifications  prometheus.Counter

	// Ingestion
	EventsDecoded   *prometheus.CounterVec
	DecodeSkipped   prometheus.Counter
	Duplicates      *prometheus.CounterVec
	HandlerFailures *prometheus.CounterVec
	StoreErrors     *prometheus.CounterVec
	SinkErrors      prometheus.Counter

	// Polling
	WatchedMints prometheus.Gauge
	Polls        *prometheus.CounterVec

	// Engines
	AlertsTriggered   *prometheus.CounterVec
	OrdersTriggered   *prometheus.CounterVec
	Executions        *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	StaleSamples      *prometheus.CounterVec
}

// New registers all collectors on reg. Passing prometheus.NewRegistry() keeps
// tests isolated from the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		FeedState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "feed", Name: "state",
			Help: "1 for the current state of the chain feed, 0 otherwise",
		}, []string{"state"}),
		FeedStateTrans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "state_transitions_total",
			Help: "Feed state transitions by target state",
		}, []string{"state"}),
		Notifications: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "notifications_total",
			Help: "Raw log notifications received",
		}),
		EventsDecoded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingestion", Name: "events_decoded_total",
			Help: "Decoded events by kind",
		}, []string{"kind"}),
		DecodeSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingestion", Name: "decode_skipped_total",
			Help: "Notifications that produced no event",
		}),
		Duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingestion", Name: "duplicates_total",
			Help: "Events suppressed by the dedup window",
		}, []string{"kind"}),
		HandlerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingestion", Name: "handler_failures_total",
			Help: "Subscriber handler errors and panics",
		}, []string{"topic"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "errors_total",
			Help: "Event store write errors",
		}, []string{"kind"}),
		SinkErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sink", Name: "errors_total",
			Help: "Event sink publish errors",
		}),
		WatchedMints: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "poller", Name: "watched_mints",
			Help: "Mints with at least one active alert or order",
		}),
		Polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "poller", Name: "polls_total",
			Help: "Price fetches by result",
		}, []string{"result"}),
		AlertsTriggered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "alerts", Name: "triggered_total",
			Help: "Alerts triggered by type",
		}, []string{"type"}),
		OrdersTriggered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "triggered_total",
			Help: "Orders triggered by kind",
		}, []string{"kind"}),
		Executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "executions_total",
			Help: "Execution attempts by result",
		}, []string{"result"}),
		ExecutionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "orders", Name: "execution_duration_seconds",
			Help:    "Duration of execution collaborator calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		StaleSamples: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engines", Name: "stale_samples_total",
			Help: "Samples ignored because a newer one was already evaluated",
		}, []string{"engine"}),
	}
}

var feedStates = []string{"idle", "connecting", "live", "reconnecting", "degraded", "stopped"}

// SetFeedState marks state as the current one.
func (m *Metrics) SetFeedState(state string) {
	if m == nil {
		return
	}
	for _, s := range feedStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.FeedState.WithLabelValues(s).Set(v)
	}
	m.FeedStateTrans.WithLabelValues(state).Inc()
}

func (m *Metrics) Notification() {
	if m == nil {
		return
	}
	m.Notifications.Inc()
}

func (m *Metrics) Decoded(kind string) {
	if m == nil {
		return
	}
	m.EventsDecoded.WithLabelValues(kind).Inc()
}

func (m *Metrics) Skipped() {
	if m == nil {
		return
	}
	m.DecodeSkipped.Inc()
}

func (m *Metrics) Duplicate(kind string) {
	if m == nil {
		return
	}
	m.Duplicates.WithLabelValues(kind).Inc()
}

func (m *Metrics) HandlerFailed(topic string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.HandlerFailures.WithLabelValues(topic).Add(float64(n))
}

func (m *Metrics) StoreError(kind string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) SinkError() {
	if m == nil {
		return
	}
	m.SinkErrors.Inc()
}

func (m *Metrics) SetWatched(n int) {
	if m == nil {
		return
	}
	m.WatchedMints.Set(float64(n))
}

func (m *Metrics) Poll(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Polls.WithLabelValues("success").Inc()
		return
	}
	m.Polls.WithLabelValues("failure").Inc()
}

func (m *Metrics) AlertTriggered(alertType string) {
	if m == nil {
		return
	}
	m.AlertsTriggered.WithLabelValues(alertType).Inc()
}

func (m *Metrics) OrderTriggered(kind string) {
	if m == nil {
		return
	}
	m.OrdersTriggered.WithLabelValues(kind).Inc()
}

func (m *Metrics) StaleSample(engine string) {
	if m == nil {
		return
	}
	m.StaleSamples.WithLabelValues(engine).Inc()
}

// MeasureExecution times f and records its outcome.
func (m *Metrics) MeasureExecution(f func() error) error {
	start := time.Now()
	err := f()
	if m == nil {
		return err
	}
	m.ExecutionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.Executions.WithLabelValues("failed").Inc()
	} else {
		m.Executions.WithLabelValues("success").Inc()
	}
	return err
}
