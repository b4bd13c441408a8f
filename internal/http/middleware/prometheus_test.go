package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newMetricsApp(t *testing.T) (*fiber.App, *PrometheusMiddleware, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMiddleware(reg)
	if err != nil {
		t.Fatalf("failed to create middleware: %v", err)
	}

	app := fiber.New()
	app.Use(m.Handler())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("form") })
	app.Post("/", func(c *fiber.Ctx) error { return c.Redirect("/") })
	app.Post("/convert_async", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No file or URL provided"})
	})
	app.Get("/download/:session_id/:filename", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "File not found")
	})
	app.Get("/metrics", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app, m, reg
}

func TestPrometheusMiddleware_RouteLabels(t *testing.T) {
	app, m, _ := newMetricsApp(t)

	tests := []struct {
		method, target string
		route, status  string
	}{
		{"GET", "/", "/", "200"},
		{"POST", "/", "/", "302"},
		{"POST", "/convert_async", "/convert_async", "400"},
		{"GET", "/download/0b6f/a.md", "/download/:session_id/:filename", "404"},
		{"GET", "/download/0b6f/b.md", "/download/:session_id/:filename", "404"},
	}
	for _, tt := range tests {
		if _, err := app.Test(httptest.NewRequest(tt.method, tt.target, nil)); err != nil {
			t.Fatalf("%s %s: %v", tt.method, tt.target, err)
		}
	}

	want := map[[3]string]float64{
		{"GET", "/", "200"}:                                1,
		{"POST", "/", "302"}:                               1,
		{"POST", "/convert_async", "400"}:                  1,
		{"GET", "/download/:session_id/:filename", "404"}: 2,
	}
	for labels, n := range want {
		if got := testutil.ToFloat64(m.requestCount.WithLabelValues(labels[0], labels[1], labels[2])); got != n {
			t.Errorf("http_requests_total%v = %f, want %f", labels, got, n)
		}
	}
	if got := testutil.CollectAndCount(m.requestDuration); got != 4 {
		t.Errorf("expected one duration series per method and route, got %d", got)
	}
}

func TestPrometheusMiddleware_ExcludeMetrics(t *testing.T) {
	app, _, reg := newMetricsApp(t)
	app.Test(httptest.NewRequest("GET", "/metrics", nil))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "http_requests_total" && len(mf.GetMetric()) > 0 {
			t.Errorf("expected /metrics to be skipped, got %d series", len(mf.GetMetric()))
		}
	}
}

func TestPrometheusMiddleware_Unmatched(t *testing.T) {
	app, m, reg := newMetricsApp(t)

	app.Test(httptest.NewRequest("GET", "/no/such/page", nil))
	app.Test(httptest.NewRequest("GET", "/another", nil))
	app.Test(httptest.NewRequest("GET", "/", nil))

	if got := testutil.ToFloat64(m.requestCount.WithLabelValues("GET", unmatchedRoute, "404")); got != 2 {
		t.Errorf("expected unmatched requests to share one label, got %f", got)
	}
	if got := testutil.ToFloat64(m.requestCount.WithLabelValues("GET", "/", "200")); got != 1 {
		t.Errorf("expected count 1 for /, got %f", got)
	}

	if _, err := NewPrometheusMiddleware(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}
