package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("dashboard:refresh").End(nil)
	_ = metrics.Jobs().Track("dashboard:refresh").End(errors.New("boom"))

	body := scrape(t, metrics)
	if !strings.Contains(body, `salespulse_jobs_total{job="dashboard:refresh",status="success"} 1`) {
		t.Fatalf("expected success run, got: %s", body)
	}
	if !strings.Contains(body, `salespulse_jobs_failures_total{job="dashboard:refresh"} 1`) {
		t.Fatalf("expected failure count, got: %s", body)
	}
	if !strings.Contains(body, "salespulse_job_last_success_timestamp_seconds") {
		t.Fatalf("expected last success gauge, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "salespulse_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "salespulse_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestDashboardMetrics(t *testing.T) {
	metrics := NewMetrics()
	dash := metrics.Dashboard()
	dash.SetKPI("organization", "sales_mtd", 1450)
	dash.SetRejections("sales", 3)
	dash.ObserveCompose("manager", 20*time.Millisecond)
	dash.IncCoalesced("manager")
	dash.SetSnapshotVersion(7)

	body := scrape(t, metrics)
	for _, want := range []string{
		`salespulse_dashboard_kpi{kpi="sales_mtd",scope="organization"} 1450`,
		`salespulse_ingest_rejected_records{collection="sales"} 3`,
		`salespulse_dashboard_compose_duration_seconds_count{scope="manager"} 1`,
		`salespulse_dashboard_coalesced_total{scope="manager"} 1`,
		`salespulse_snapshot_version 7`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.Dashboard().SetKPI("organization", "sales_mtd", 1)
	metrics.Dashboard().ObserveCompose("organization", time.Second)
	_ = metrics.Jobs().Track("noop").End(nil)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}
