package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsHandlerExposesInstruments(t *testing.T) {
	m := NewMetrics("focus_test")
	m.Event("created")
	m.WSMessages.WithLabelValues("in", "heartbeat").Inc()
	m.ObserveSessionDuration(25 * time.Minute)

	// A second instance must not collide on registration.
	_ = NewMetrics("focus_test")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`focus_test_session_events_total{event="created"} 1`,
		`focus_test_ws_messages_total{direction="in",type="heartbeat"} 1`,
		`focus_test_completed_session_seconds_count 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
