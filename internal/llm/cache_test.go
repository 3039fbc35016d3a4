package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCacheConfig(t *testing.T) {
	cfg := DefaultCacheConfig()

	assert.Equal(t, 24*time.Hour, cfg.RedisTTL)
	assert.Equal(t, 1000, cfg.MemoryMaxSize)
	assert.Equal(t, time.Hour, cfg.MemoryTTL)
}

func TestResponseCache_Key(t *testing.T) {
	rc := NewResponseCache(DefaultCacheConfig(), nil, nil)
	defer rc.Close()

	base := CompletionRequest{System: "s", User: "u"}
	key := rc.Key("gpt-4o-mini", base)

	assert.Len(t, key, 64, "sha256 hex")
	assert.Equal(t, key, rc.Key("gpt-4o-mini", base), "deterministic")

	tests := []struct {
		name  string
		model string
		req   CompletionRequest
	}{
		{"model", "gpt-4o", base},
		{"system", "gpt-4o-mini", CompletionRequest{System: "other", User: "u"}},
		{"user", "gpt-4o-mini", CompletionRequest{System: "s", User: "other"}},
		{"temperature", "gpt-4o-mini", CompletionRequest{System: "s", User: "u", Temperature: 0.5}},
		{"image", "gpt-4o-mini", CompletionRequest{System: "s", User: "u", Image: &ImageInput{Data: []byte{1}, MIMEType: "image/png"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, key, rc.Key(tt.model, tt.req))
		})
	}

	a := rc.Key("m", CompletionRequest{Image: &ImageInput{Data: []byte{1}, MIMEType: "image/png"}})
	b := rc.Key("m", CompletionRequest{Image: &ImageInput{Data: []byte{2}, MIMEType: "image/png"}})
	assert.NotEqual(t, a, b, "image bytes are part of the key")
}

func TestResponseCache_SetAndGet(t *testing.T) {
	rc := NewResponseCache(DefaultCacheConfig(), nil, nil)
	defer rc.Close()
	ctx := context.Background()

	_, ok := rc.Get(ctx, "missing")
	assert.False(t, ok)

	rc.Set(ctx, "k", &Completion{Text: "['a']", Usage: Usage{InputTokens: 10, OutputTokens: 5}})
	got, ok := rc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "['a']", got.Text)

	stats := rc.Stats()
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(15), stats.TokensSaved)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)

	rc.Set(ctx, "nil", nil)
	assert.Equal(t, 1, rc.Len())
}

func TestResponseCache_Expiry(t *testing.T) {
	rc := NewResponseCache(CacheConfig{MemoryTTL: time.Minute, MemoryMaxSize: 10}, nil, nil)
	defer rc.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rc.now = func() time.Time { return now }

	ctx := context.Background()
	rc.Set(ctx, "k", &Completion{Text: "v"})

	now = now.Add(2 * time.Minute)
	_, ok := rc.Get(ctx, "k")
	assert.False(t, ok)

	rc.cleanup()
	assert.Equal(t, 0, rc.Len())
}

func TestResponseCache_Eviction(t *testing.T) {
	rc := NewResponseCache(CacheConfig{MemoryMaxSize: 10}, nil, nil)
	defer rc.Close()
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		rc.Set(ctx, fmt.Sprintf("k%d", i), &Completion{Text: "v"})
	}

	assert.LessOrEqual(t, rc.Len(), 10)
	_, ok := rc.Get(ctx, "k0")
	assert.False(t, ok, "oldest entry evicted")
	_, ok = rc.Get(ctx, "k14")
	assert.True(t, ok)
}

func TestResponseCache_OverwriteKeepsSingleSlot(t *testing.T) {
	rc := NewResponseCache(CacheConfig{MemoryMaxSize: 2}, nil, nil)
	defer rc.Close()
	ctx := context.Background()

	rc.Set(ctx, "a", &Completion{Text: "1"})
	rc.Set(ctx, "a", &Completion{Text: "2"})
	rc.Set(ctx, "b", &Completion{Text: "3"})

	assert.Equal(t, 2, rc.Len())
	got, ok := rc.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "2", got.Text)
}

func TestResponseCache_Clear(t *testing.T) {
	rc := NewResponseCache(DefaultCacheConfig(), nil, nil)
	defer rc.Close()
	ctx := context.Background()

	rc.Set(ctx, "a", &Completion{Text: "1"})
	require.NoError(t, rc.Clear(ctx))
	assert.Equal(t, 0, rc.Len())

	// Close is idempotent
	rc.Close()
}
