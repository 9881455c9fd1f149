// Package gemini is the gateway to the Gemini File Search API.
//
// It owns three concerns: remote store and document management over the
// REST surface, grounded generation (chat, summaries, quizzes and the
// like) through the genai SDK with the FileSearch tool, and text
// embeddings for note search. Everything else in the system reaches
// Gemini through this package.
//
// Transient failures (429, 5xx, network resets) are retried with
// exponential backoff. DeleteStore is the exception: its outcome is
// classified, never papered over, because trash purge decisions hang on
// knowing whether the remote copy is really gone.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// defaultBaseURL is the Gemini REST endpoint for File Search store
// management, which the genai SDK does not cover (force delete, document
// listing).
const defaultBaseURL = "https://generativelanguage.googleapis.com"

// EmbeddingDimension is the vector width stored in the notes table.
const EmbeddingDimension = 768

// Config carries the settings a Client needs.
type Config struct {
	APIKey     string
	Model      string
	EmbedModel string

	// BaseURL overrides the REST endpoint (tests point it at httptest).
	BaseURL string

	// HTTPClient overrides the REST transport. nil means a default
	// client with a 60s timeout.
	HTTPClient *http.Client

	// RequestsPerSecond throttles generation attempts. Zero disables
	// client-side throttling.
	RequestsPerSecond float64

	Retry  RetryConfig
	Logger *slog.Logger
}

// Client talks to the Gemini API. Safe for concurrent use.
type Client struct {
	apiKey     string
	model      string
	embedModel string
	baseURL    string

	httpClient *http.Client
	genai      *genai.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	logger     *slog.Logger
}

// NewClient creates a Client. The genai SDK client is constructed eagerly
// so configuration errors surface at startup, not first use.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}

	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		genai:      sdk,
		limiter:    limiter,
		retry:      cfg.Retry,
		logger:     cfg.Logger,
	}, nil
}
