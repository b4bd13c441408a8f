package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"docconvert/docs"
	"docconvert/internal/archive"
	"docconvert/internal/config"
	"docconvert/internal/converter"
	"docconvert/internal/database"
	"docconvert/internal/database/migration"
	handlers "docconvert/internal/http/handler"
	"docconvert/internal/http/middleware"
	"docconvert/internal/logging"
	"docconvert/internal/otel"
	"docconvert/internal/repository/postgres"
	"docconvert/internal/service"
	"docconvert/internal/session"
	"docconvert/internal/storage"
	"docconvert/internal/workspace"
)

const shutdownTimeout = 10 * time.Second

// @title docconvert
// @version 2.0.0
// @description Converts documents, archives and web pages to markdown.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	loc := cfg.Location()
	logger := logging.New(os.Stdout, cfg.LogLevel, loc)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	workspaces, err := workspace.NewManager(workspace.Options{
		Root:       cfg.Workspace.Root,
		Retention:  cfg.Workspace.Retention,
		Logger:     logger.With("component", "workspace"),
		Registerer: reg,
	})
	if err != nil {
		return err
	}

	store, db, err := newSessionStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	sessions := session.NewManager(session.Options{
		Storage: store.storage,
		TTL:     cfg.Session.TTL,
		Logger:  logger.With("component", "session"),
	})

	// Object storage is optional; without it s3:// sources are rejected.
	var objects storage.Storage
	if cfg.MinIO.Enabled() {
		objects, err = storage.NewMinIO(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
	}

	conv := converter.New(converter.Options{
		MaxPDFBytes:   cfg.Converter.MaxPDFBytes,
		SheetRowLimit: cfg.Converter.SheetRowLimit,
		FetchTimeout:  cfg.Converter.FetchTimeout,
		HTMLMarkdown:  cfg.Converter.HTMLMarkdown,
		OCR:           converter.NewTesseract(cfg.Converter.TesseractPath, cfg.Converter.OCRLanguage),
		Objects:       objects,
		Logger:        logger.With("component", "converter"),
	})

	metrics, err := service.NewConversionMetrics(reg)
	if err != nil {
		return err
	}
	instrumented := metrics.Instrument(conv)
	archives := archive.New(instrumented, logger.With("component", "archive"), 0)
	svc := service.NewConversionService(instrumented, archives, workspaces, logger.With("component", "service"))

	promMW, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return err
	}

	maxUpload := int64(cfg.MaxUploadBytes)
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(sessions, maxUpload, logger),
		BodyLimit:    cfg.MaxUploadBytes,
	})

	app.Use(recover.New())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger(cfg.Location()))
	app.Use(promMW.Handler())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Content-Type,Authorization",
		AllowMethods: "GET,PUT,POST,DELETE,OPTIONS",
	}))

	probes := []handlers.Probe{func(context.Context) error {
		_, err := os.Stat(workspaces.Root())
		return err
	}}
	if db != nil {
		probes = append(probes, db.PingContext)
	}

	handlers.RegisterRoutes(app, handlers.Deps{
		Service:        svc,
		Sessions:       sessions,
		Logger:         logger,
		Location:       cfg.Location(),
		MaxUploadBytes: maxUpload,
		Gatherer:       reg,
		Probes:         probes,
	})

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	tasks := []workspace.Task{workspaces.CleanupTask()}
	if store.sweep != nil {
		tasks = append(tasks, workspace.Task{
			Name: "session_sweep",
			Run: func(ctx context.Context) error {
				_, err := store.sweep(ctx)
				return err
			},
		})
	}
	janitor := workspace.NewJanitor(cfg.Workspace.CleanupInterval, logger.With("component", "janitor"), tasks...)
	// Leftovers from a previous run are cleared before serving.
	janitor.RunOnce(ctx)
	go janitor.Run(ctx)

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("server_starting", "addr", ":"+cfg.Port, "session_backend", cfg.Session.Backend)
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("server_stopping")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing_shutdown_failed", "error", err)
	}
	return nil
}

type sessionStorage struct {
	storage fiber.Storage
	sweep   func(ctx context.Context) (int, error)
}

// newSessionStorage builds the configured session backend. The returned
// database handle is non-nil only for the postgres backend.
func newSessionStorage(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (sessionStorage, *sql.DB, error) {
	switch cfg.Session.Backend {
	case config.SessionBackendMemory:
		return sessionStorage{}, nil, nil

	case config.SessionBackendPostgres:
		// Initialize PostgreSQL connection (with pooling via database/sql)
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return sessionStorage{}, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migration.EnsureMigrated(ctx, db, logger, cfg.Database.Host); err != nil {
			_ = db.Close()
			return sessionStorage{}, nil, err
		}
		store := session.NewDBStore(postgres.NewSessionPostgres(db), 0)
		return sessionStorage{storage: store, sweep: store.Sweep}, db, nil

	case config.SessionBackendFile, "":
		store, err := session.NewFileStore(cfg.Session.FileDir)
		if err != nil {
			return sessionStorage{}, nil, fmt.Errorf("init session store: %w", err)
		}
		return sessionStorage{storage: store, sweep: store.Sweep}, nil, nil

	default:
		return sessionStorage{}, nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}
