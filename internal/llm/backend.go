package llm

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/config"
	"github.com/testforge/a11yforge/internal/observability"
	"github.com/testforge/a11yforge/internal/resilience"
)

// Backend bundles the text and vision invokers of one provider
type Backend struct {
	Text     *Invoker
	Vision   *Invoker
	Cache    *ResponseCache
	Breakers *resilience.Manager
}

// NewClient builds the configured provider's client for model
func NewClient(cfg config.LLMConfig, model string) (Client, error) {
	clientCfg := Config{
		APIKey:       cfg.APIKey(),
		BaseURL:      cfg.BaseURL,
		Model:        model,
		MaxTokens:    cfg.MaxTokens,
		Timeout:      cfg.Timeout,
		RateLimitRPM: cfg.RateLimitRPM,
	}

	switch cfg.Provider {
	case config.ProviderClaude:
		return NewClaudeClient(clientCfg)
	case config.ProviderOpenAI, "":
		return NewOpenAIClient(clientCfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// NewBackend wires clients, cache and breakers from configuration.
// redisClient may be nil.
func NewBackend(cfg *config.Config, redisClient *redis.Client, metrics *observability.Metrics, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	text, err := NewClient(cfg.LLM, cfg.LLM.TextModel())
	if err != nil {
		return nil, fmt.Errorf("creating text client: %w", err)
	}
	vision, err := NewClient(cfg.LLM, cfg.LLM.ImageModel())
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w", err)
	}

	var cache *ResponseCache
	if cfg.LLM.EnableCaching {
		cache = NewResponseCache(CacheConfig{
			RedisTTL:      cfg.LLM.CacheTTL,
			MemoryMaxSize: cfg.LLM.CacheSize,
			MemoryTTL:     cfg.LLM.CacheTTL,
		}, redisClient, logger)
	}

	var breakers *resilience.Manager
	if cfg.Breaker.Enabled {
		breakerLog := logger.Named("breaker")
		breakers = resilience.NewManager(resilience.Config{
			MaxRequests: 1,
			Interval:    cfg.Breaker.Interval,
			Timeout:     cfg.Breaker.Timeout,
			ReadyToTrip: resilience.ConsecutiveFailures(cfg.Breaker.FailureThreshold),
			OnStateChange: func(name string, from, to resilience.State) {
				metrics.RecordBreakerState(name, int(to))
				breakerLog.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}

	opts := InvokerOptions{
		Cache:           cache,
		Metrics:         metrics,
		Logger:          logger,
		MaxRetries:      cfg.LLM.MaxRetries,
		RetryBackoff:    cfg.LLM.RetryBackoff,
		InputTokenCost:  cfg.LLM.InputTokenCost,
		OutputTokenCost: cfg.LLM.OutputTokenCost,
	}

	textOpts, visionOpts := opts, opts
	if breakers != nil {
		textOpts.Breaker = breakers.Get("text")
		visionOpts.Breaker = breakers.Get("vision")
	}

	return &Backend{
		Text:     NewInvoker(text, textOpts),
		Vision:   NewInvoker(vision, visionOpts),
		Cache:    cache,
		Breakers: breakers,
	}, nil
}

// Close releases background resources
func (b *Backend) Close() {
	if b.Cache != nil {
		b.Cache.Close()
	}
}
