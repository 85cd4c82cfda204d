package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"1001"`

	// CORS origin of the browser client
	ClientOrigin string `envconfig:"CLIENT_ORIGIN" default:"http://localhost:1000"`

	// Auth. "none" and "api-key" take the user identity from the X-User-ID
	// header; "jwt" takes it from the token subject claim.
	AuthMode  string `envconfig:"AUTH_MODE" default:"none"`
	APIKey    string `envconfig:"API_KEY"`
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Storage
	DBPath       string `envconfig:"DB_PATH" default:"openroger.db"`
	ProjectsRoot string `envconfig:"PROJECTS_ROOT" default:"projects"`

	// Generation backend (Gemini) — server-side only, never exposed to clients
	GeminiAPIKey      string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel       string        `envconfig:"GEMINI_MODEL" default:"gemini-flash-latest"`
	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"60s"`
	GenerationRetries int           `envconfig:"GENERATION_RETRIES" default:"3"`

	// Optional YAML file overriding the built-in phase prompt templates
	PromptsFile string `envconfig:"PROMPTS_FILE"`

	// Command runner
	CommandTimeout   time.Duration `envconfig:"COMMAND_TIMEOUT" default:"5m"`
	CommandMaxOutput int           `envconfig:"COMMAND_MAX_OUTPUT" default:"10485760"`

	// Preview servers
	PreviewBasePort     int           `envconfig:"PREVIEW_BASE_PORT" default:"4100"`
	PreviewStartupGrace time.Duration `envconfig:"PREVIEW_STARTUP_GRACE" default:"3s"`
}

// GeminiEnabled returns true if a Gemini API key is configured.
func (c *Config) GeminiEnabled() bool {
	return c.GeminiAPIKey != ""
}

// Validate checks cross-field constraints that envconfig cannot express.
func (c *Config) Validate() error {
	switch c.AuthMode {
	case "none", "api-key", "jwt":
	default:
		return fmt.Errorf("invalid AUTH_MODE %q (want none, api-key, or jwt)", c.AuthMode)
	}
	if c.AuthMode == "api-key" && c.APIKey == "" {
		return fmt.Errorf("AUTH_MODE=api-key requires API_KEY")
	}
	if c.AuthMode == "jwt" && c.JWTSecret == "" {
		return fmt.Errorf("AUTH_MODE=jwt requires JWT_SECRET")
	}
	if c.PreviewBasePort <= 0 || c.PreviewBasePort > 65535 {
		return fmt.Errorf("invalid PREVIEW_BASE_PORT %d", c.PreviewBasePort)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
