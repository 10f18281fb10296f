package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.EnrollmentCreated("new_lead")
	m.StepExecuted("webhook", "failed")
	m.TickFinished(time.Second, 1, 1, 1)
	m.WebhookCalled(time.Millisecond, false)
	m.ScoreUpdated()
}

func TestTickFinishedAccumulatesOutcomes(t *testing.T) {
	m := New()
	m.TickFinished(10*time.Millisecond, 3, 1, 2)
	m.TickFinished(10*time.Millisecond, 1, 0, 0)

	if got := testutil.ToFloat64(m.EnrollmentsProcessed.WithLabelValues("success")); got != 4 {
		t.Fatalf("expected 4 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.EnrollmentsProcessed.WithLabelValues("completed")); got != 2 {
		t.Fatalf("expected 2 completions, got %v", got)
	}
}

func TestHandlerExposesEngineMetrics(t *testing.T) {
	m := New()
	m.EnrollmentCreated("manual")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `sequence_enrollments_created_total{trigger="manual"} 1`) {
		t.Fatal("expected enrollment counter in exposition output")
	}
}
