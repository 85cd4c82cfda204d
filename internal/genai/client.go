// Package genai wraps the Gemini generateContent API behind a single
// per-phase text-generation call.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	orerrors "github.com/openroger/openroger/internal/errors"
	"github.com/openroger/openroger/internal/phase"
	"github.com/openroger/openroger/internal/retry"
)

const (
	geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel  = "gemini-flash-latest"
)

// Generator is the single boundary the phase runner depends on.
type Generator interface {
	Generate(ctx context.Context, p phase.Phase, userPrompt string) (string, error)
}

// Client calls the Gemini generateContent endpoint with phase-specific prompts.
type Client struct {
	apiKey    string
	model     string
	baseURL   string
	templates *Templates
	client    *http.Client
	retryCfg  retry.Config
	logger    zerolog.Logger
}

// Option configures the client.
type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func WithTemplates(t *Templates) Option {
	return func(c *Client) { c.templates = t }
}

func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retryCfg = cfg }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient constructs a Gemini client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:    apiKey,
		model:     defaultModel,
		baseURL:   geminiAPIBase,
		templates: DefaultTemplates(),
		client:    &http.Client{Timeout: 60 * time.Second},
		retryCfg:  retry.DefaultConfig(),
		logger:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ---- Gemini wire types ----

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Generate renders the phase's prompt template around userPrompt and returns
// the model's raw text. An API failure or empty response yields
// ErrGenerationFailed; transient backend errors are retried with backoff.
func (c *Client) Generate(ctx context.Context, p phase.Phase, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: GEMINI_API_KEY is not set", orerrors.ErrGenerationFailed)
	}

	prompt := c.templates.Render(p, userPrompt)

	var text string
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		var callErr error
		text, callErr = c.generateContent(ctx, prompt)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", orerrors.ErrGenerationFailed, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty response from Gemini", orerrors.ErrGenerationFailed)
	}
	return text, nil
}

func (c *Client) generateContent(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini http: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	var gr geminiResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if gr.Error != nil {
		return "", orerrors.NewAPIError("gemini", gr.Error.Code, gr.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", orerrors.NewAPIError("gemini", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var text string
	for _, cand := range gr.Candidates {
		for _, part := range cand.Content.Parts {
			text += part.Text
		}
		break
	}

	c.logger.Debug().
		Str("model", c.model).
		Dur("elapsed", time.Since(start)).
		Int("prompt_tokens", gr.UsageMetadata.PromptTokenCount).
		Int("output_tokens", gr.UsageMetadata.CandidatesTokenCount).
		Msg("gemini generate")

	return text, nil
}
