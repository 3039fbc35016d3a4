package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/testforge/a11yforge/internal/config"
	"github.com/testforge/a11yforge/internal/domain"
)

// Cache keeps run reports where the worker API can find them
type Cache struct {
	client *redis.Client
}

// Key prefixes for different cache types
const (
	PrefixRun       = "run:"
	PrefixRateLimit = "ratelimit:"
)

// Default TTLs
const (
	RunTTL          = 7 * 24 * time.Hour
	RateLimitWindow = time.Minute
)

// New creates a new Redis cache client
func New(cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// NewFromClient wraps an existing client
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health checks Redis connectivity
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client, shared with the response cache
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Run report caching

// SaveReport stores a run report under its run id
func (c *Cache) SaveReport(ctx context.Context, report *domain.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return c.client.Set(ctx, reportKey(report.RunID), data, RunTTL).Err()
}

// GetReport returns the stored report, or nil when none exists
func (c *Cache) GetReport(ctx context.Context, id uuid.UUID) (*domain.RunReport, error) {
	data, err := c.client.Get(ctx, reportKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var report domain.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &report, nil
}

// SetStatus records the latest status of a run
func (c *Cache) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	return c.client.Set(ctx, statusKey(id), status, RunTTL).Err()
}

// GetStatus returns the latest status of a run, or "" when unknown
func (c *Cache) GetStatus(ctx context.Context, id uuid.UUID) (string, error) {
	status, err := c.client.Get(ctx, statusKey(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return status, nil
}

// Rate limiting

// CheckRateLimit counts a request against key's window and reports whether
// it is within limit
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int) (bool, int, error) {
	fullKey := PrefixRateLimit + key

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, RateLimitWindow)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	count := int(incr.Val())
	return count <= limit, count, nil
}

func reportKey(id uuid.UUID) string {
	return PrefixRun + id.String() + ":report"
}

func statusKey(id uuid.UUID) string {
	return PrefixRun + id.String() + ":status"
}
