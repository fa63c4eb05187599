package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExposesSnapshot(t *testing.T) {
	m := New()
	m.Inc(Join)
	m.Add(MessageQueued, 3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	PrometheusHandler(m).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "# TYPE meetworld_relay_events_total counter") {
		t.Fatalf("missing TYPE header: %s", body)
	}
	if !strings.Contains(body, `meetworld_relay_events_total{event="join"} 1`) {
		t.Fatalf("missing join counter: %s", body)
	}
	if !strings.Contains(body, `meetworld_relay_events_total{event="message_queued"} 3`) {
		t.Fatalf("missing message_queued counter: %s", body)
	}
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(Join)
	if got := m.Get(Join); got != 0 {
		t.Fatalf("Get on nil Metrics=%d, want 0", got)
	}
	if snap := m.Snapshot(); snap != nil {
		t.Fatalf("Snapshot on nil Metrics=%v, want nil", snap)
	}
}
