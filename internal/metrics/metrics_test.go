package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveBackend(t *testing.T) {
	before := testutil.ToFloat64(BackendCallsTotal.WithLabelValues(OutcomeHTTPError))
	ObserveBackend(OutcomeHTTPError, 250*time.Millisecond)
	after := testutil.ToFloat64(BackendCallsTotal.WithLabelValues(OutcomeHTTPError))
	require.Equal(t, before+1, after)
}

func TestMiddlewareCountsStatusClass(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues(http.MethodGet, "4xx"))

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues(http.MethodGet, "4xx")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	SubmissionsRejected.WithLabelValues("empty").Inc()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `siap_submissions_rejected_total{reason="empty"}`)
}
