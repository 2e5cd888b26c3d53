package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pointcloud/backend/internal/bridge"
)

func TestRequestMetricsUseRoutePattern(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/jobs/{id}", "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		resp, err := http.Get(ts.URL + "/v1/jobs/" + id)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
	}

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("route counter delta = %v, want 3", got)
	}
}

func TestCalculateFailureCounter(t *testing.T) {
	inv := &stubInvoker{fn: func(bridge.Request) (bridge.Result, error) {
		return bridge.Result{}, bridge.ErrEmptyOutput
	}}
	srv := newTestServerWith(t, inv)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	before := testutil.ToFloat64(calculateFailures.WithLabelValues(kindEmptyOutput))

	resp := postJSON(t, ts, "/v1/othello/calculate", `{"board":[[0,1]],"turn":1}`)
	resp.Body.Close()

	if got := testutil.ToFloat64(calculateFailures.WithLabelValues(kindEmptyOutput)) - before; got != 1 {
		t.Errorf("failure counter delta = %v, want 1", got)
	}
}
