// Package observability holds the Prometheus metrics for the earthquake feed.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quakewatch"

// Load cycle outcomes.
const (
	OutcomeDelivered  = "delivered"
	OutcomeFetchError = "fetch_error"
	OutcomeParseError = "parse_error"
	OutcomeDiscarded  = "discarded"
)

// FeedMetrics holds the counters and histograms for feed loading.
// A nil *FeedMetrics is valid and records nothing.
type FeedMetrics struct {
	LoadCycles       *prometheus.CounterVec // labels: outcome={delivered,fetch_error,parse_error,discarded}
	LoadDuration     prometheus.Histogram
	LoadsInFlight    prometheus.Gauge
	RecordsDelivered prometheus.Counter

	FetchRequests *prometheus.CounterVec // labels: result={ok,connect_timeout,read_timeout,http_status,network}
	FetchDuration prometheus.Histogram
}

func newFeedMetrics() *FeedMetrics {
	return &FeedMetrics{
		LoadCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_cycles_total",
			Help:      "Completed feed load cycles by outcome.",
		}, []string{"outcome"}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of a fetch and parse pipeline run.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
		LoadsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loads_in_flight",
			Help:      "Feed load pipelines currently running.",
		}),
		RecordsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_delivered_total",
			Help:      "Earthquake records handed to result callbacks.",
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Feed HTTP requests by result.",
		}, []string{"result"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Feed HTTP request duration including body read.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 25},
		}),
	}
}

// NewFeedMetrics creates feed metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewFeedMetrics(reg prometheus.Registerer) *FeedMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := newFeedMetrics()
	reg.MustRegister(
		m.LoadCycles,
		m.LoadDuration,
		m.LoadsInFlight,
		m.RecordsDelivered,
		m.FetchRequests,
		m.FetchDuration,
	)
	return m
}

// NewFeedMetricsForTesting creates unregistered metrics so tests can build
// as many as they like.
func NewFeedMetricsForTesting() *FeedMetrics {
	return newFeedMetrics()
}

// LoadStarted marks a pipeline as running.
func (m *FeedMetrics) LoadStarted() {
	if m == nil {
		return
	}
	m.LoadsInFlight.Inc()
}

// LoadFinished records a finished pipeline run.
func (m *FeedMetrics) LoadFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.LoadsInFlight.Dec()
	m.LoadDuration.Observe(d.Seconds())
}

// ObserveCycle records how a load cycle ended and how many records reached
// the result callback.
func (m *FeedMetrics) ObserveCycle(outcome string, records int) {
	if m == nil {
		return
	}
	m.LoadCycles.WithLabelValues(outcome).Inc()
	if records > 0 {
		m.RecordsDelivered.Add(float64(records))
	}
}

// ObserveFetch records one feed HTTP request.
func (m *FeedMetrics) ObserveFetch(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchRequests.WithLabelValues(result).Inc()
	m.FetchDuration.Observe(d.Seconds())
}
