// Package api exposes the orchestration service over HTTP.
package api

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/openroger/openroger/internal/health"
	"github.com/openroger/openroger/internal/metrics"
	"github.com/openroger/openroger/internal/orchestrator"
	"github.com/openroger/openroger/internal/preview"
	"github.com/openroger/openroger/internal/requestid"
	"github.com/openroger/openroger/internal/store"
	"github.com/openroger/openroger/internal/workspace"
)

// Config holds HTTP server configuration.
type Config struct {
	ClientOrigin string
	Auth         AuthConfig
}

// Server is the Fiber application serving the project API.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	logger   zerolog.Logger
}

// NewServer creates and wires the HTTP server.
func NewServer(
	cfg Config,
	st *store.Store,
	orch *orchestrator.Orchestrator,
	ws *workspace.Store,
	previews *preview.Manager,
	checker *health.Checker,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s := &Server{
		app:      app,
		handlers: NewHandlers(st, orch, ws, previews, logger),
		logger:   logger.With().Str("component", "api").Logger(),
	}

	s.setupMiddleware(cfg, logger)
	s.setupRoutes(checker, m)

	return s
}

func (s *Server) setupMiddleware(cfg Config, logger zerolog.Logger) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware
	s.app.Use(func(c *fiber.Ctx) error {
		_, reqID := requestid.New(c.Context())
		c.Set("X-Request-ID", reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if cfg.ClientOrigin != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.ClientOrigin,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID",
			AllowMethods: "GET, POST, OPTIONS",
		}))
	}

	s.app.Use(NewAuthMiddleware(cfg.Auth, logger))

	// Audit middleware (log every request)
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("request_id", fmt.Sprintf("%v", c.Locals("request_id"))).
			Msg("api request")

		return c.Next()
	})
}

func (s *Server) setupRoutes(checker *health.Checker, m *metrics.Metrics) {
	// Probe endpoints (no auth required — handled in auth middleware)
	s.app.Get("/healthz", adaptor.HTTPHandlerFunc(health.LivenessHandler()))
	s.app.Get("/readyz", adaptor.HTTPHandlerFunc(checker.ReadinessHandler()))

	if m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	h := s.handlers

	projects := s.app.Group("/api/projects")
	projects.Post("/", h.CreateProject)
	projects.Get("/", h.ListProjects)
	projects.Get("/:id", h.GetProject)
	projects.Get("/:id/structure", h.GetStructure)
	projects.Get("/:id/file", h.GetFile)
	projects.Get("/:id/preview-url", h.GetPreviewURL)
	projects.Post("/:id/preview-start", h.StartPreview)
	projects.Post("/:id/preview-stop", h.StopPreview)
	projects.Post("/:id/approve", h.Approve)

	agents := s.app.Group("/api/agents")
	agents.Get("/project/:projectId", h.ListAgents)
	agents.Post("/project/:projectId", h.AddAgent)

	tasks := s.app.Group("/api/tasks")
	tasks.Get("/project/:projectId", h.ListTasks)
	tasks.Get("/project/:projectId/approvals", h.ListApprovals)
}

// Listen starts serving on addr and blocks.
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("http server listening")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the Fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:   "internal_error",
			Title:  "Internal Server Error",
			Status: code,
			Detail: detail,
		})
	}
}
