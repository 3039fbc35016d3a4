package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/observability"
	"github.com/testforge/a11yforge/internal/resilience"
)

// Caller is the text model as the pipeline sees it: any failure yields ""
type Caller interface {
	Call(ctx context.Context, system, user string) string
}

// CallerFunc adapts a function to Caller
type CallerFunc func(ctx context.Context, system, user string) string

func (f CallerFunc) Call(ctx context.Context, system, user string) string {
	return f(ctx, system, user)
}

// Describer is the vision model as the pipeline sees it. It returns an
// error so callers can report why no description came back.
type Describer interface {
	Describe(ctx context.Context, image []byte, mimeType, instruction string) (string, error)
}

// DescriberFunc adapts a function to Describer
type DescriberFunc func(ctx context.Context, image []byte, mimeType, instruction string) (string, error)

func (f DescriberFunc) Describe(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	return f(ctx, image, mimeType, instruction)
}

// InvokerOptions configures an Invoker. Every field is optional.
type InvokerOptions struct {
	Cache        *ResponseCache
	Breaker      *resilience.CircuitBreaker
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	MaxRetries   int
	RetryBackoff time.Duration

	// Dollars per thousand tokens
	InputTokenCost  float64
	OutputTokenCost float64
}

// Invoker runs completions through the response cache, the circuit breaker
// and a bounded retry loop, and records every attempt
type Invoker struct {
	client  Client
	opts    InvokerOptions
	logger  *zap.Logger
	metrics *observability.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewInvoker wraps client
func NewInvoker(client Client, opts InvokerOptions) *Invoker {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}

	return &Invoker{
		client:  client,
		opts:    opts,
		logger:  logger.Named("llm").With(zap.String("model", client.Model())),
		metrics: opts.Metrics,
		sleep:   sleepContext,
	}
}

// Model returns the wrapped client's model
func (inv *Invoker) Model() string {
	return inv.client.Model()
}

// Complete returns the completion for req. Errors are domain.ErrModelCall.
func (inv *Invoker) Complete(ctx context.Context, purpose string, req CompletionRequest) (*Completion, error) {
	var key string
	if inv.opts.Cache != nil {
		key = inv.opts.Cache.Key(inv.client.Model(), req)
		if cached, ok := inv.opts.Cache.Get(ctx, key); ok {
			inv.metrics.RecordCacheHit()
			inv.logger.Debug("cache hit", zap.String("purpose", purpose), zap.String("key", key[:16]))
			return cached, nil
		}
		inv.metrics.RecordCacheMiss()
	}

	var lastErr error
	for attempt := 0; attempt <= inv.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := inv.opts.RetryBackoff * time.Duration(1<<(attempt-1))
			if err := inv.sleep(ctx, backoff); err != nil {
				lastErr = err
				break
			}
		}

		start := time.Now()
		completion, err := resilience.Execute(ctx, inv.opts.Breaker, func(ctx context.Context) (*Completion, error) {
			return inv.client.Complete(ctx, req)
		})
		duration := time.Since(start)

		if err == nil {
			cost := inv.cost(completion.Usage)
			inv.metrics.RecordModelRequest(inv.client.Model(), purpose, "success", duration,
				completion.Usage.InputTokens, completion.Usage.OutputTokens, cost)
			inv.logger.Debug("model call completed",
				zap.String("purpose", purpose),
				zap.Int("attempt", attempt+1),
				zap.Duration("duration", duration),
				zap.Int("input_tokens", completion.Usage.InputTokens),
				zap.Int("output_tokens", completion.Usage.OutputTokens),
			)
			if inv.opts.Cache != nil {
				inv.opts.Cache.Set(ctx, key, completion)
			}
			return completion, nil
		}

		lastErr = err
		inv.metrics.RecordModelRequest(inv.client.Model(), purpose, "error", duration, 0, 0, 0)
		inv.logger.Warn("model call attempt failed",
			zap.String("purpose", purpose),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		if !retryable(err) {
			break
		}
	}

	return nil, domain.ErrModelCallFailed(purpose, lastErr)
}

// For returns a text Caller that tags its calls with purpose. Calls run at
// temperature 0.
func (inv *Invoker) For(purpose string) Caller {
	return CallerFunc(func(ctx context.Context, system, user string) string {
		completion, err := inv.Complete(ctx, purpose, CompletionRequest{System: system, User: user})
		if err != nil {
			inv.logger.Error("model call failed, continuing with empty response",
				zap.String("purpose", purpose),
				zap.Error(err),
			)
			return ""
		}
		return completion.Text
	})
}

// Describer returns a vision Describer using system as the system prompt
func (inv *Invoker) Describer(purpose, system string) Describer {
	return DescriberFunc(func(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
		completion, err := inv.Complete(ctx, purpose, CompletionRequest{
			System: system,
			User:   instruction,
			Image:  &ImageInput{Data: image, MIMEType: mimeType},
		})
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(completion.Text), nil
	})
}

func (inv *Invoker) cost(usage Usage) float64 {
	return float64(usage.InputTokens)/1000*inv.opts.InputTokenCost +
		float64(usage.OutputTokens)/1000*inv.opts.OutputTokenCost
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return false
	case errors.Is(err, ErrEmptyResponse):
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}

	// transport errors
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
