package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPMiddlewareCountsRequests(t *testing.T) {
	c := NewCollector("slotwise")
	h := c.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/public/book", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/public/book", nil))

	rw := httptest.NewRecorder()
	c.Handler().ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `slotwise_http_requests_total{method="POST",path="/api/v1/public/book",status="201"} 2`
	if !strings.Contains(rw.Body.String(), want) {
		t.Fatalf("expected %q in:\n%s", want, rw.Body.String())
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector("slotwise")
	c.SlotQueriesTotal.WithLabelValues("open").Inc()

	rw := httptest.NewRecorder()
	c.Handler().ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rw.Body.String(), `slotwise_availability_slot_queries_total{status="open"} 1`) {
		t.Fatalf("metric not exposed:\n%s", rw.Body.String())
	}
}
