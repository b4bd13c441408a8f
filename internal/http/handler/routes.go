package handler

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docconvert/internal/logging"
	"docconvert/internal/service"
	"docconvert/internal/session"
)

// Deps are the collaborators the routes need.
type Deps struct {
	Service        service.ConversionService
	Sessions       *session.Manager
	Logger         *slog.Logger
	Location       *time.Location
	MaxUploadBytes int64
	// Gatherer backs /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer
	Probes   []Probe
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app. The session
// middleware is scoped to the browser-facing routes.
func RegisterRoutes(app *fiber.App, d Deps) {
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	app.Get("/health", HealthCheck(d.Location, d.Probes...))
	app.Get("/healthz", LivenessProbe())
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	app.Post("/convert_async", ConvertAsync(d.Service, logger))
	app.Get("/download/:session_id/:filename", DownloadFromWorkspace(d.Service, logger))

	withSession := d.Sessions.Middleware()
	app.Get("/", withSession, Index(d.Sessions, d.MaxUploadBytes, logger))
	app.Post("/", withSession, Convert(d.Service, d.Sessions, logger))
	app.Get("/download/:filename", withSession, Download(d.Service, d.Sessions, logger))
}
