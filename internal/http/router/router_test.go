package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apphttp "realty_crm_backend/internal/http"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/metrics"

	"github.com/gin-gonic/gin"
)

type stubConfig struct {
	origins  []string
	allowAll bool
}

func (s stubConfig) GetHTTPAddr() string      { return ":0" }
func (s stubConfig) GetCORSAllowAll() bool    { return s.allowAll }
func (s stubConfig) GetCORSOrigins() []string { return s.origins }
func (s stubConfig) GetCORSAllowCreds() bool  { return false }

type stubHealth struct{ err error }

func (s stubHealth) Ping(context.Context) error { return s.err }

type pingModule struct{}

func (pingModule) Name() string { return "ping" }

func (pingModule) RegisterRoutes(rc *apphttp.RouterContext) {
	rc.V1.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

func newApp(health apphttp.HealthChecker) *apphttp.App {
	gin.SetMode(gin.TestMode)
	return &apphttp.App{
		Config:  stubConfig{origins: []string{"http://localhost:5173"}},
		Logger:  logger.Nop(),
		Health:  health,
		Metrics: metrics.New(),
		Modules: []apphttp.Module{pingModule{}},
	}
}

func TestHealthReportsDatabaseState(t *testing.T) {
	engine := New(newApp(stubHealth{}))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	engine = New(newApp(stubHealth{err: errors.New("down")}))
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestModulesAndMetricsAreMounted(t *testing.T) {
	engine := New(newApp(nil))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}
