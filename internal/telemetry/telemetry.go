// Package telemetry exposes Prometheus metrics for the collection core.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "atelier"

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDiscarded = "discarded"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Mutation metrics
	Mutations         *prometheus.CounterVec
	Rollbacks         *prometheus.CounterVec
	MutationsInFlight prometheus.Gauge

	// Remote API metrics
	RemoteRequests *prometheus.CounterVec
	RemoteDuration *prometheus.HistogramVec

	// Export metrics
	Exports     *prometheus.CounterVec
	ExportBytes prometheus.Counter

	// View metrics
	LightboxTransitions *prometheus.CounterVec
	CacheFallbacks      prometheus.Counter
	StoreSize           *prometheus.GaugeVec
}

// New registers all metrics on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}
	initMutationMetrics(m, promauto.With(reg))
	initRemoteMetrics(m, promauto.With(reg))
	initExportMetrics(m, promauto.With(reg))
	initViewMetrics(m, promauto.With(reg))
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func initMutationMetrics(m *Metrics, f promauto.Factory) {
	m.Mutations = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mutations_total",
		Help:      "Reconciled optimistic mutations by kind and outcome",
	}, []string{"kind", "outcome"})

	m.Rollbacks = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mutation_rollbacks_total",
		Help:      "Optimistic writes reverted after a failed remote call",
	}, []string{"kind"})

	m.MutationsInFlight = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mutations_in_flight",
		Help:      "Mutations applied locally and not yet reconciled",
	})
}

func initRemoteMetrics(m *Metrics, f promauto.Factory) {
	m.RemoteRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_requests_total",
		Help:      "Calls to the remote collection API",
	}, []string{"op", "outcome"})

	m.RemoteDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "remote_request_duration_seconds",
		Help:      "Latency of remote collection API calls",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"op"})
}

func initExportMetrics(m *Metrics, f promauto.Factory) {
	m.Exports = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exports_total",
		Help:      "Export runs by outcome",
	}, []string{"outcome"})

	m.ExportBytes = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "export_bytes_total",
		Help:      "Bytes written by successful exports",
	})
}

func initViewMetrics(m *Metrics, f promauto.Factory) {
	m.LightboxTransitions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lightbox_transitions_total",
		Help:      "Lightbox state transitions by event",
	}, []string{"event"})

	m.CacheFallbacks = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_fallbacks_total",
		Help:      "Mounts served from the local snapshot after a failed fetch",
	})

	m.StoreSize = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "store_artifacts",
		Help:      "Artifacts currently held per view scope",
	}, []string{"scope"})
}

// MutationStarted marks a mutation as in flight.
func (m *Metrics) MutationStarted() {
	if m == nil {
		return
	}
	m.MutationsInFlight.Inc()
}

// MutationSettled records the reconciliation outcome of a mutation.
func (m *Metrics) MutationSettled(kind, outcome string, rolledBack bool) {
	if m == nil {
		return
	}
	m.MutationsInFlight.Dec()
	m.Mutations.WithLabelValues(kind, outcome).Inc()
	if rolledBack {
		m.Rollbacks.WithLabelValues(kind).Inc()
	}
}

// RemoteCall records one remote API call.
func (m *Metrics) RemoteCall(op string, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.RemoteRequests.WithLabelValues(op, outcome).Inc()
	m.RemoteDuration.WithLabelValues(op).Observe(took.Seconds())
}

// Export records one export run.
func (m *Metrics) Export(err error, size int64) {
	if m == nil {
		return
	}
	if err != nil {
		m.Exports.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	m.Exports.WithLabelValues(OutcomeSuccess).Inc()
	m.ExportBytes.Add(float64(size))
}

// LightboxTransition counts one applied lightbox event.
func (m *Metrics) LightboxTransition(event string) {
	if m == nil {
		return
	}
	m.LightboxTransitions.WithLabelValues(event).Inc()
}

// CacheFallback counts one mount served from the local snapshot.
func (m *Metrics) CacheFallback() {
	if m == nil {
		return
	}
	m.CacheFallbacks.Inc()
}

// SetStoreSize records the number of artifacts held for scope.
func (m *Metrics) SetStoreSize(scope string, n int) {
	if m == nil {
		return
	}
	m.StoreSize.WithLabelValues(scope).Set(float64(n))
}
