// Package metrics defines the Prometheus collectors exported by the
// gatekeeper service. All recording methods are safe to call on a nil
// *Metrics, so components can run without a registry in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gatekeeper"

// Result label values shared by the counters below.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the service's collectors.
type Metrics struct {
	TokenVerifications    *prometheus.CounterVec
	KeySetRefreshes       *prometheus.CounterVec
	ProvisioningOps       *prometheus.CounterVec
	ReconciliationPending prometheus.Counter
	HTTPRequestDuration   *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		TokenVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_verifications_total",
				Help:      "Bearer token verifications by outcome code.",
			},
			[]string{"result"},
		),
		KeySetRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jwks_refresh_total",
				Help:      "Signing key set refreshes by source and result.",
			},
			[]string{"source", "result"},
		),
		ProvisioningOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provisioning_operations_total",
				Help:      "Account provisioning operations by operation and result.",
			},
			[]string{"operation", "result"},
		),
		ReconciliationPending: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "role_reconciliation_pending_total",
				Help:      "Accounts created remotely whose local role write failed.",
			},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		gatherer: registry,
	}

	registry.MustRegister(
		m.TokenVerifications,
		m.KeySetRefreshes,
		m.ProvisioningOps,
		m.ReconciliationPending,
		m.HTTPRequestDuration,
	)
	return m
}

// ObserveVerification counts one token verification. result is
// ResultSuccess or the failing error code.
func (m *Metrics) ObserveVerification(result string) {
	if m == nil {
		return
	}
	m.TokenVerifications.WithLabelValues(result).Inc()
}

// ObserveKeySetRefresh counts one key set refresh attempt.
func (m *Metrics) ObserveKeySetRefresh(source, result string) {
	if m == nil {
		return
	}
	m.KeySetRefreshes.WithLabelValues(source, result).Inc()
}

// ObserveProvisioning counts one provisioning operation.
func (m *Metrics) ObserveProvisioning(operation, result string) {
	if m == nil {
		return
	}
	m.ProvisioningOps.WithLabelValues(operation, result).Inc()
}

// RecordReconciliationPending counts an account left without its role.
func (m *Metrics) RecordReconciliationPending() {
	if m == nil {
		return
	}
	m.ReconciliationPending.Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
