// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace    = "folio"
	kindLabel    = "kind"
	outcomeLabel = "outcome"
	resultLabel  = "result"
	statusLabel  = "status"
	typeLabel    = "type"
)

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	revisionsCreatedTotal *prometheus.CounterVec
	transitionsTotal      *prometheus.CounterVec
	mergesTotal           *prometheus.CounterVec
	mergeDurationSeconds  prometheus.Histogram
	signalsTotal          *prometheus.CounterVec
}

func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	return &Metrics{
		registry: reg,
		revisionsCreatedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "versions",
			Name:      "revisions_created_total",
			Help:      "The total count of revisions created, by initial status.",
		}, []string{statusLabel}),
		transitionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "transitions_total",
			Help:      "The total count of approval transitions, by kind and outcome.",
		}, []string{kindLabel, outcomeLabel}),
		mergesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "merges_total",
			Help:      "The total count of three-way merges, by result.",
		}, []string{resultLabel}),
		mergeDurationSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "duration_seconds",
			Help:      "The time spent computing three-way merges.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		signalsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "handled_total",
			Help:      "The total count of workflow signals handled, by type and status.",
		}, []string{typeLabel, statusLabel}),
	}, nil
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) AddRevisionCreated(status string) {
	if m == nil {
		return
	}
	m.revisionsCreatedTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) AddTransition(kind, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveMerge records one merge. result is clean, conflict or timeout.
func (m *Metrics) ObserveMerge(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.mergesTotal.WithLabelValues(result).Inc()
	m.mergeDurationSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) AddSignal(signalType, status string) {
	if m == nil {
		return
	}
	m.signalsTotal.WithLabelValues(signalType, status).Inc()
}
