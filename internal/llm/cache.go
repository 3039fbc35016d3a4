package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cachePrefix = "llm:"

// CacheConfig holds response cache configuration
type CacheConfig struct {
	// Redis tier, used only when a client is supplied
	RedisTTL time.Duration

	// Memory tier
	MemoryMaxSize int
	MemoryTTL     time.Duration
}

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		RedisTTL:      24 * time.Hour,
		MemoryMaxSize: 1000,
		MemoryTTL:     1 * time.Hour,
	}
}

// ResponseCache stores completions in memory and, optionally, in Redis.
// Requests are made at temperature 0 so a repeated prompt on a resumed or
// re-run pipeline can reuse the earlier answer.
type ResponseCache struct {
	config CacheConfig
	redis  *redis.Client
	logger *zap.Logger

	// In-memory cache with insertion-order eviction
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   []string

	statsMu sync.Mutex
	stats   CacheStats

	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

type cacheEntry struct {
	text      string
	usage     Usage
	createdAt time.Time
}

type redisEntry struct {
	Response string `json:"response"`
	Tokens   Usage  `json:"tokens"`
}

// CacheStats tracks cache statistics
type CacheStats struct {
	MemoryHits    int64   `json:"memory_hits"`
	RedisHits     int64   `json:"redis_hits"`
	Misses        int64   `json:"misses"`
	TotalRequests int64   `json:"total_requests"`
	TokensSaved   int64   `json:"tokens_saved"`
	HitRate       float64 `json:"hit_rate"`
}

// NewResponseCache creates a cache. redisClient may be nil.
func NewResponseCache(config CacheConfig, redisClient *redis.Client, logger *zap.Logger) *ResponseCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MemoryMaxSize <= 0 {
		config.MemoryMaxSize = DefaultCacheConfig().MemoryMaxSize
	}
	if config.MemoryTTL <= 0 {
		config.MemoryTTL = DefaultCacheConfig().MemoryTTL
	}
	if config.RedisTTL <= 0 {
		config.RedisTTL = DefaultCacheConfig().RedisTTL
	}

	rc := &ResponseCache{
		config:  config,
		redis:   redisClient,
		logger:  logger.Named("cache"),
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, config.MemoryMaxSize),
		stop:    make(chan struct{}),
		now:     time.Now,
	}

	go rc.cleanupLoop()

	return rc
}

// Key derives the cache key from everything that affects the output
func (rc *ResponseCache) Key(model string, req CompletionRequest) string {
	keyData := map[string]any{
		"model":       model,
		"system":      req.System,
		"user":        req.User,
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
	}
	if req.Image != nil {
		sum := sha256.Sum256(req.Image.Data)
		keyData["image"] = hex.EncodeToString(sum[:])
		keyData["mime"] = req.Image.MIMEType
	}

	data, _ := json.Marshal(keyData)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Get retrieves a cached completion
func (rc *ResponseCache) Get(ctx context.Context, key string) (*Completion, bool) {
	rc.mu.RLock()
	entry, ok := rc.entries[key]
	rc.mu.RUnlock()

	if ok && rc.now().Sub(entry.createdAt) < rc.config.MemoryTTL {
		rc.record(func(s *CacheStats) {
			s.MemoryHits++
			s.TokensSaved += int64(entry.usage.InputTokens + entry.usage.OutputTokens)
		})
		return &Completion{Text: entry.text, Usage: entry.usage}, true
	}

	if rc.redis != nil {
		data, err := rc.redis.Get(ctx, cachePrefix+key).Bytes()
		if err == nil {
			var cached redisEntry
			if err := json.Unmarshal(data, &cached); err == nil {
				// Promote to memory cache
				rc.setMemory(key, cached.Response, cached.Tokens)
				rc.record(func(s *CacheStats) {
					s.RedisHits++
					s.TokensSaved += int64(cached.Tokens.InputTokens + cached.Tokens.OutputTokens)
				})
				return &Completion{Text: cached.Response, Usage: cached.Tokens}, true
			}
		} else if err != redis.Nil {
			rc.logger.Debug("redis get failed", zap.Error(err))
		}
	}

	rc.record(func(s *CacheStats) { s.Misses++ })
	return nil, false
}

// Set stores a completion in every tier
func (rc *ResponseCache) Set(ctx context.Context, key string, completion *Completion) {
	if completion == nil {
		return
	}
	rc.setMemory(key, completion.Text, completion.Usage)

	if rc.redis != nil {
		data, _ := json.Marshal(redisEntry{Response: completion.Text, Tokens: completion.Usage})
		if err := rc.redis.Set(ctx, cachePrefix+key, data, rc.config.RedisTTL).Err(); err != nil {
			rc.logger.Debug("redis set failed", zap.Error(err))
		}
	}
}

// Stats returns cache statistics
func (rc *ResponseCache) Stats() CacheStats {
	rc.statsMu.Lock()
	defer rc.statsMu.Unlock()

	stats := rc.stats
	if stats.TotalRequests > 0 {
		stats.HitRate = float64(stats.MemoryHits+stats.RedisHits) / float64(stats.TotalRequests)
	}
	return stats
}

// Len returns the number of entries in the memory tier
func (rc *ResponseCache) Len() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.entries)
}

// Clear clears all tiers
func (rc *ResponseCache) Clear(ctx context.Context) error {
	rc.mu.Lock()
	rc.entries = make(map[string]*cacheEntry)
	rc.order = make([]string, 0, rc.config.MemoryMaxSize)
	rc.mu.Unlock()

	if rc.redis != nil {
		iter := rc.redis.Scan(ctx, 0, cachePrefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			rc.redis.Del(ctx, iter.Val())
		}
		return iter.Err()
	}

	return nil
}

// Close stops the background cleanup
func (rc *ResponseCache) Close() {
	rc.stopOnce.Do(func() { close(rc.stop) })
}

func (rc *ResponseCache) record(update func(*CacheStats)) {
	rc.statsMu.Lock()
	defer rc.statsMu.Unlock()
	rc.stats.TotalRequests++
	update(&rc.stats)
}

func (rc *ResponseCache) setMemory(key, text string, usage Usage) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if _, exists := rc.entries[key]; !exists {
		if len(rc.entries) >= rc.config.MemoryMaxSize {
			rc.evictOldest()
		}
		rc.order = append(rc.order, key)
	}

	rc.entries[key] = &cacheEntry{
		text:      text,
		usage:     usage,
		createdAt: rc.now(),
	}
}

func (rc *ResponseCache) evictOldest() {
	// Remove oldest entries (first 10%)
	toRemove := rc.config.MemoryMaxSize / 10
	if toRemove < 1 {
		toRemove = 1
	}

	for i := 0; i < toRemove && len(rc.order) > 0; i++ {
		key := rc.order[0]
		rc.order = rc.order[1:]
		delete(rc.entries, key)
	}
}

func (rc *ResponseCache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.stop:
			return
		}
	}
}

func (rc *ResponseCache) cleanup() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := rc.now()
	kept := make([]string, 0, len(rc.order))

	for _, key := range rc.order {
		if entry, ok := rc.entries[key]; ok {
			if now.Sub(entry.createdAt) > rc.config.MemoryTTL {
				delete(rc.entries, key)
			} else {
				kept = append(kept, key)
			}
		}
	}

	rc.order = kept
}
