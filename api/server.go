package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/crawl"
	"github.com/poiesic/kexpand/jobs"
	"github.com/poiesic/kexpand/llm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ErrControllerRequired is returned when no job controller is given.
	ErrControllerRequired = errors.New("job controller required")

	// ErrSchedulerRequired is returned when no crawl scheduler is given.
	ErrSchedulerRequired = errors.New("crawl scheduler required")

	// ErrRegistryRequired is returned when no model registry is given.
	ErrRegistryRequired = errors.New("model registry required")

	// ErrTemplatesRequired is returned when no template service is given.
	ErrTemplatesRequired = errors.New("template service required")
)

// Server is the HTTP front-end of kexpand.
type Server struct {
	controller *jobs.Controller
	scheduler  *crawl.Scheduler
	registry   *llm.Registry
	templates  *llm.Templates

	jobDefaults   core.JobConfig
	crawlDefaults crawl.Config
	registerer    prometheus.Registerer
	gatherer      prometheus.Gatherer
	readTimeout   time.Duration
	writeTimeout  time.Duration
	logger        *slog.Logger

	app *fiber.App
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithJobDefaults sets the job config used when a request carries none.
func WithJobDefaults(cfg core.JobConfig) Option {
	return func(s *Server) error {
		if err := core.ValidateJobConfig(cfg); err != nil {
			return err
		}
		s.jobDefaults = cfg
		return nil
	}
}

// WithCrawlDefaults sets the crawl settings used when a request omits them.
func WithCrawlDefaults(cfg crawl.Config) Option {
	return func(s *Server) error {
		s.crawlDefaults = cfg
		return nil
	}
}

// WithRegistry serves HTTP metrics from registry instead of the default
// Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) error {
		s.registerer = registry
		s.gatherer = registry
		return nil
	}
}

// WithTimeouts sets the read and write timeouts of the listener.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) error {
		s.readTimeout = read
		s.writeTimeout = write
		return nil
	}
}

// NewServer creates a server and registers its routes.
func NewServer(controller *jobs.Controller, scheduler *crawl.Scheduler, registry *llm.Registry, templates *llm.Templates, opts ...Option) (*Server, error) {
	switch {
	case controller == nil:
		return nil, ErrControllerRequired
	case scheduler == nil:
		return nil, ErrSchedulerRequired
	case registry == nil:
		return nil, ErrRegistryRequired
	case templates == nil:
		return nil, ErrTemplatesRequired
	}

	s := &Server{
		controller:    controller,
		scheduler:     scheduler,
		registry:      registry,
		templates:     templates,
		jobDefaults:   core.DefaultJobConfig(),
		crawlDefaults: crawl.DefaultConfig(),
		registerer:    prometheus.DefaultRegisterer,
		gatherer:      prometheus.DefaultGatherer,
		readTimeout:   30 * time.Second,
		writeTimeout:  5 * time.Minute,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "api")

	s.app = fiber.New(fiber.Config{
		AppName:               "kexpand",
		ReadTimeout:           s.readTimeout,
		WriteTimeout:          s.writeTimeout,
		BodyLimit:             16 * 1024 * 1024,
		UnescapePath:          true,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	app := s.app
	app.Use(recover.New())
	app.Use(s.requestLogger)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	prom := fiberprometheus.NewWithRegistry(s.registerer, "kexpand", "kexpand", "http", nil)
	app.Use(prom.Middleware)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/upload/bulk", s.uploadBulk)
	app.Post("/scrape/start", s.startScrape)
	app.Get("/scrape/:id", s.scrapeStatus)

	batch := app.Group("/batch")
	batch.Get("/history", s.batchHistory)
	batch.Get("/analytics", s.batchAnalytics)
	batch.Get("/metrics/:id", s.batchMetrics)
	batch.Get("/export/:id", s.batchExport)
	batch.Post("/control", s.batchControl)
	batch.Post("/retry", s.batchRetry)
	batch.Post("/configure/:id", s.batchConfigure)
	batch.Get("/", s.batchList)
	batch.Get("/:id", s.batchStatus)

	models := app.Group("/llm")
	models.Get("/providers", s.llmProviders)
	models.Get("/models/:provider", s.llmModels)
	models.Post("/configure", s.llmConfigure)
	models.Get("/config", s.llmConfig)
	models.Post("/fallback/configure", s.llmConfigureFallback)
	models.Get("/fallback/:model", s.llmFallback)
	models.Get("/metrics", s.llmAllMetrics)
	models.Get("/metrics/compare", s.llmCompare)
	models.Get("/metrics/:model", s.llmMetrics)
	models.Post("/templates", s.createTemplate)
	models.Get("/templates", s.listTemplates)
	models.Get("/templates/:id", s.getTemplate)
	models.Put("/templates/:id", s.updateTemplate)
	models.Delete("/templates/:id", s.deleteTemplate)
}

// requestLogger logs each request at debug level, and failed ones at warn.
func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		status = statusFor(err)
	}
	level := slog.LevelDebug
	if status >= fiber.StatusBadRequest {
		level = slog.LevelWarn
	}
	s.logger.Log(c.UserContext(), level, "request",
		"method", c.Method(), "path", c.Path(), "status", status, "duration", time.Since(start))
	return err
}
