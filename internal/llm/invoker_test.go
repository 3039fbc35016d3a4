package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/observability"
	"github.com/testforge/a11yforge/internal/resilience"
)

// scriptedClient replays a fixed sequence of outcomes
type scriptedClient struct {
	mu       sync.Mutex
	outcomes []outcome
	requests []CompletionRequest
}

type outcome struct {
	text string
	err  error
}

func (c *scriptedClient) Model() string { return "test-model" }

func (c *scriptedClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, req)
	if len(c.outcomes) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := c.outcomes[0]
	c.outcomes = c.outcomes[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &Completion{Text: next.text, Usage: Usage{InputTokens: 100, OutputTokens: 20}}, nil
}

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func newTestInvoker(t *testing.T, client Client, opts InvokerOptions) *Invoker {
	t.Helper()
	opts.Logger = zaptest.NewLogger(t)
	inv := NewInvoker(client, opts)
	inv.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return inv
}

func TestInvoker_RetriesTemporaryErrors(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{
		{err: &APIError{Provider: "openai", StatusCode: 429}},
		{err: &APIError{Provider: "openai", StatusCode: 500}},
		{text: "['ok']"},
	}}
	metrics := observability.NewMetrics("test")
	inv := newTestInvoker(t, client, InvokerOptions{MaxRetries: 3, Metrics: metrics})

	completion, err := inv.Complete(context.Background(), "analyze_dom", CompletionRequest{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "['ok']", completion.Text)
	assert.Equal(t, 3, client.calls())

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ModelRequestsTotal.WithLabelValues("test-model", "analyze_dom", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ModelRequestsTotal.WithLabelValues("test-model", "analyze_dom", "success")))
}

func TestInvoker_DoesNotRetryPermanentErrors(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{
		{err: &APIError{Provider: "openai", StatusCode: 401}},
		{text: "never"},
	}}
	inv := newTestInvoker(t, client, InvokerOptions{MaxRetries: 3})

	_, err := inv.Complete(context.Background(), "correct_css", CompletionRequest{User: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelCall)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, 1, client.calls())

	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestInvoker_GivesUpAfterMaxRetries(t *testing.T) {
	boom := errors.New("connection reset")
	client := &scriptedClient{outcomes: []outcome{{err: boom}, {err: boom}, {err: boom}}}
	inv := newTestInvoker(t, client, InvokerOptions{MaxRetries: 2})

	_, err := inv.Complete(context.Background(), "recommend_tools", CompletionRequest{User: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, client.calls())
}

func TestInvoker_CacheHit(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{{text: "first"}, {text: "second"}}}
	metrics := observability.NewMetrics("test")
	cache := NewResponseCache(DefaultCacheConfig(), nil, zaptest.NewLogger(t))
	defer cache.Close()

	inv := newTestInvoker(t, client, InvokerOptions{Cache: cache, Metrics: metrics})
	req := CompletionRequest{System: "s", User: "u"}

	first, err := inv.Complete(context.Background(), "analyze_css", req)
	require.NoError(t, err)
	second, err := inv.Complete(context.Background(), "analyze_css", req)
	require.NoError(t, err)

	assert.Equal(t, "first", first.Text)
	assert.Equal(t, "first", second.Text)
	assert.Equal(t, 1, client.calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ModelCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ModelCacheMisses))
}

func TestInvoker_FailuresAreNotCached(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{{err: &APIError{StatusCode: 400}}, {text: "ok"}}}
	cache := NewResponseCache(DefaultCacheConfig(), nil, nil)
	defer cache.Close()

	inv := newTestInvoker(t, client, InvokerOptions{Cache: cache})
	req := CompletionRequest{User: "u"}

	_, err := inv.Complete(context.Background(), "p", req)
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())

	completion, err := inv.Complete(context.Background(), "p", req)
	require.NoError(t, err)
	assert.Equal(t, "ok", completion.Text)
}

func TestInvoker_OpenBreakerSkipsBackend(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{
		{err: &APIError{StatusCode: 503}},
		{text: "unreachable"},
	}}
	breaker := resilience.New(resilience.Config{Name: "text", Timeout: time.Hour, ReadyToTrip: resilience.ConsecutiveFailures(1)})
	inv := newTestInvoker(t, client, InvokerOptions{Breaker: breaker, MaxRetries: 3})

	_, err := inv.Complete(context.Background(), "p", CompletionRequest{User: "x"})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 1, client.calls(), "breaker opened after the first failure")
}

func TestInvoker_CallerReturnsEmptyOnFailure(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{{err: &APIError{StatusCode: 400}}, {text: "fine"}}}
	inv := newTestInvoker(t, client, InvokerOptions{})
	caller := inv.For("analyze_js")

	assert.Equal(t, "", caller.Call(context.Background(), "s", "u"))
	assert.Equal(t, "fine", caller.Call(context.Background(), "s", "u"))

	for _, req := range client.requests {
		assert.Equal(t, 0.0, req.Temperature)
		assert.Nil(t, req.Image)
	}
}

func TestInvoker_Describer(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{{text: "  A cat on a sofa.  "}}}
	inv := newTestInvoker(t, client, InvokerOptions{})

	describer := inv.Describer("caption", "You generate alt text.")
	text, err := describer.Describe(context.Background(), []byte{1, 2}, "image/png", "Describe this image.")
	require.NoError(t, err)
	assert.Equal(t, "A cat on a sofa.", text)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "You generate alt text.", req.System)
	require.NotNil(t, req.Image)
	assert.Equal(t, "image/png", req.Image.MIMEType)
}

func TestInvoker_CanceledContextStopsRetries(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{{err: errors.New("reset")}, {text: "late"}}}
	inv := newTestInvoker(t, client, InvokerOptions{MaxRetries: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.Complete(ctx, "p", CompletionRequest{User: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, client.calls(), 1)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"breaker open", resilience.ErrCircuitOpen, false},
		{"rate limited", &APIError{StatusCode: 429}, true},
		{"unauthorized", &APIError{StatusCode: 401}, false},
		{"empty", ErrEmptyResponse, true},
		{"transport", errors.New("dial tcp: refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestInvoker_Cost(t *testing.T) {
	inv := NewInvoker(&scriptedClient{}, InvokerOptions{InputTokenCost: 0.002, OutputTokenCost: 0.01})
	assert.InDelta(t, 0.002+0.005, inv.cost(Usage{InputTokens: 1000, OutputTokens: 500}), 1e-9)
}
