package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/webklar/booking-platform/internal/observability/metrics"
	"github.com/webklar/booking-platform/pkg/logging"
)

func TestRequestLoggerRecordsRouteAndStatus(t *testing.T) {
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)

	r := chi.NewRouter()
	r.Use(RequestLogger(logging.NewWithWriter("info", &buf), m))
	r.Get("/admin/customers/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/customers/abc", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["route"] != "/admin/customers/{id}" {
		t.Fatalf("expected route pattern, got %v", line["route"])
	}
	if line["status"] != float64(http.StatusNotFound) {
		t.Fatalf("expected status 404, got %v", line["status"])
	}
	if line["component"] != "http" {
		t.Fatalf("expected component tag, got %v", line["component"])
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "webklar_booking_handler_latency_seconds" {
			found = len(f.GetMetric()) == 1
		}
	}
	if !found {
		t.Fatalf("expected one latency series")
	}
}
