// Command server runs the Open Roger orchestration service: it walks a
// project through the five-phase generation pipeline, materializes the output
// into a sandboxed workspace, and serves previews of the generated frontend.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openroger/openroger/internal/api"
	"github.com/openroger/openroger/internal/config"
	"github.com/openroger/openroger/internal/genai"
	"github.com/openroger/openroger/internal/health"
	"github.com/openroger/openroger/internal/metrics"
	"github.com/openroger/openroger/internal/orchestrator"
	"github.com/openroger/openroger/internal/preview"
	"github.com/openroger/openroger/internal/retry"
	"github.com/openroger/openroger/internal/runner"
	"github.com/openroger/openroger/internal/store"
	"github.com/openroger/openroger/internal/workspace"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("http_port", cfg.HTTPPort).
		Str("projects_root", cfg.ProjectsRoot).
		Bool("gemini_enabled", cfg.GeminiEnabled()).
		Msg("starting openroger")

	// Store
	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	// Workspace root
	ws := workspace.NewStore(cfg.ProjectsRoot, logger)

	// Generation client
	if !cfg.GeminiEnabled() {
		logger.Warn().Msg("GEMINI_API_KEY not set — phase generation will fail until configured")
	}
	templates := genai.DefaultTemplates()
	if cfg.PromptsFile != "" {
		templates, err = genai.LoadTemplates(cfg.PromptsFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.PromptsFile).Msg("failed to load prompt templates")
		}
		logger.Info().Str("path", cfg.PromptsFile).Msg("prompt templates loaded")
	}
	gen := genai.NewClient(cfg.GeminiAPIKey,
		genai.WithModel(cfg.GeminiModel),
		genai.WithTemplates(templates),
		genai.WithHTTPClient(&http.Client{Timeout: cfg.GenerationTimeout}),
		genai.WithRetry(retry.Config{
			MaxAttempts: cfg.GenerationRetries,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			Jitter:      true,
		}),
		genai.WithLogger(logger),
	)

	// Metrics + health
	m := metrics.New()
	checker := health.NewChecker(logger)
	checker.Register("db", func(ctx context.Context) health.Status {
		if err := st.Ping(ctx); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})
	checker.Register("workspace", func(ctx context.Context) health.Status {
		if _, err := os.Stat(ws.Root()); err != nil {
			return health.StatusDegraded
		}
		return health.StatusOK
	})

	// Command runner + phase orchestrator
	run := runner.New(ws, cfg.CommandTimeout, cfg.CommandMaxOutput, logger)
	orch := orchestrator.New(st, ws, run, gen, m, logger)

	// Preview processes
	previews := preview.NewManager(ws, nil, cfg.PreviewBasePort, cfg.PreviewStartupGrace, m, logger)

	// HTTP server
	srv := api.NewServer(api.Config{
		ClientOrigin: cfg.ClientOrigin,
		Auth: api.AuthConfig{
			Mode:      cfg.AuthMode,
			APIKey:    cfg.APIKey,
			JWTSecret: cfg.JWTSecret,
		},
	}, st, orch, ws, previews, checker, m, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(fmt.Sprintf(":%d", cfg.HTTPPort))
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	previews.StopAll()
	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("shutdown complete")
}
