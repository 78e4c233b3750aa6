package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveVerification(ResultSuccess)
		m.ObserveKeySetRefresh("provider", ResultSuccess)
		m.ObserveProvisioning("create_account", ResultFailure)
		m.RecordReconciliationPending()
		m.ObserveRequest("/health", http.MethodGet, http.StatusOK, time.Millisecond)
	})
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())

	m.ObserveVerification(ResultSuccess)
	m.ObserveVerification(ResultSuccess)
	m.ObserveVerification("AUTH_002")
	m.ObserveProvisioning("seed_defaults", ResultSuccess)
	m.RecordReconciliationPending()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TokenVerifications.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenVerifications.WithLabelValues("AUTH_002")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconciliationPending))

	expected := `
# HELP gatekeeper_provisioning_operations_total Account provisioning operations by operation and result.
# TYPE gatekeeper_provisioning_operations_total counter
gatekeeper_provisioning_operations_total{operation="seed_defaults",result="success"} 1
`
	require.NoError(t, testutil.CollectAndCompare(m.ProvisioningOps, strings.NewReader(expected)))
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())
	m.ObserveKeySetRefresh("mirror", ResultSuccess)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `gatekeeper_jwks_refresh_total{result="success",source="mirror"} 1`)
}
