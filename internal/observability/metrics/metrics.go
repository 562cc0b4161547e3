package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "outage_"

var (
	registerOnce sync.Once

	eventsTotal  *prometheus.CounterVec
	droppedTotal *prometheus.CounterVec
	alertsTotal  *prometheus.CounterVec
	activeAlerts prometheus.Gauge
	sweepsTotal  prometheus.Counter
	stateSaves   *prometheus.CounterVec
)

// Init registers the agent's metrics on the default prometheus registry.
// The helpers below are no-ops until Init has run, which keeps unit tests
// free of registry setup.
func Init() {
	registerOnce.Do(func() {
		eventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_total",
				Help: "Inbound domain events by kind",
			},
			[]string{"kind"},
		)
		droppedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_dropped_total",
				Help: "Inbound events dropped by reason",
			},
			[]string{"reason"},
		)
		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_published_total",
				Help: "Alert events published by state",
			},
			[]string{"state"},
		)
		activeAlerts = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_alerts",
				Help: "Assets currently in ACTIVE alert state",
			},
		)
		sweepsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweeps_total",
				Help: "Deadline sweep runs",
			},
		)
		stateSaves = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "state_saves_total",
				Help: "State file saves by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			eventsTotal,
			droppedTotal,
			alertsTotal,
			activeAlerts,
			sweepsTotal,
			stateSaves,
		)
	})
}

// EventIngested counts one inbound event of the given kind.
func EventIngested(kind string) {
	if eventsTotal != nil {
		eventsTotal.WithLabelValues(kind).Inc()
	}
}

// EventDropped counts one dropped event with its reason.
func EventDropped(reason string) {
	if droppedTotal != nil {
		droppedTotal.WithLabelValues(reason).Inc()
	}
}

// AlertPublished counts one published alert event.
func AlertPublished(state string) {
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(state).Inc()
	}
}

// SetActiveAlerts records the current size of the active-alert set.
func SetActiveAlerts(n int) {
	if activeAlerts != nil {
		activeAlerts.Set(float64(n))
	}
}

// SweepRun counts one deadline sweep.
func SweepRun() {
	if sweepsTotal != nil {
		sweepsTotal.Inc()
	}
}

// StateSaved counts one state-file save attempt.
func StateSaved(ok bool) {
	if stateSaves == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	stateSaves.WithLabelValues(result).Inc()
}
