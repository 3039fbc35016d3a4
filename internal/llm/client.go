// Package llm talks to the hosted language models: text completions for
// analysis and correction, and image descriptions for captioning.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client is a single-turn chat completion backend
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	Model() string
}

// ImageInput is an image attached to the user turn
type ImageInput struct {
	Data     []byte
	MIMEType string
}

// CompletionRequest is one system + user exchange
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	Image       *ImageInput
}

// Completion is the model's answer
type Completion struct {
	Text  string
	Usage Usage
}

// Usage contains token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

var (
	ErrMissingAPIKey = errors.New("API key is required")
	ErrEmptyResponse = errors.New("empty response")
)

// APIError is a non-2xx answer from a provider
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, truncate(e.Body, 300))
}

// Temporary reports whether retrying the same request may succeed
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config for a provider client
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Timeout      time.Duration
	RateLimitRPM int // Requests per minute
	HTTPClient   *http.Client
}

func (c Config) withDefaults(baseURL, model string) Config {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.RateLimitRPM == 0 {
		c.RateLimitRPM = 60
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}

// newLimiter creates a rate limiter (tokens per second = RPM / 60)
func newLimiter(rpm int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
