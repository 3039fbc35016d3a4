package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/testforge/a11yforge/internal/domain"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Provider names accepted by LLM_PROVIDER
const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
)

// Recommender modes accepted by RECOMMENDER_MODE
const (
	RecommenderModel   = "model"
	RecommenderPattern = "pattern"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Env      Environment `envconfig:"ENV" default:"development"`
	LogLevel string      `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool        `envconfig:"DEBUG" default:"false"`

	// Application
	App AppConfig

	// Worker ops API
	Server ServerConfig

	// Model backend
	LLM LLMConfig

	// Pipeline layout and behaviour
	Pipeline PipelineConfig

	// Redis (response cache)
	Redis RedisConfig

	// Artifact mirror
	Storage StorageConfig

	// Metrics
	Metrics MetricsConfig

	// Temporal
	Temporal TemporalConfig

	// Circuit breaker around the model backend
	Breaker BreakerConfig
}

// AppConfig holds application metadata
type AppConfig struct {
	Name    string `envconfig:"APP_NAME" default:"a11yforge"`
	Version string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// ServerConfig holds the worker's ops API settings
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	MaxRequestSize  int64         `envconfig:"SERVER_MAX_REQUEST_SIZE" default:"1048576"` // 1MB

	// Static token required on /api routes; empty disables auth outside
	// production
	APIToken string `envconfig:"SERVER_API_TOKEN" default:""`

	// Directory that per-run work_dir values resolve under; empty refuses them
	WorkRoot string `envconfig:"SERVER_WORK_ROOT" default:""`

	// Requests per minute per client when Redis is enabled
	RateLimit int `envconfig:"SERVER_RATE_LIMIT" default:"120"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LLMConfig holds model backend settings
type LLMConfig struct {
	Provider     string        `envconfig:"LLM_PROVIDER" default:"openai"` // openai, claude
	OpenAIKey    string        `envconfig:"OPENAI_API_KEY" default:""`
	AnthropicKey string        `envconfig:"ANTHROPIC_API_KEY" default:""`
	BaseURL      string        `envconfig:"LLM_BASE_URL" default:""`
	Model        string        `envconfig:"LLM_MODEL" default:""`
	VisionModel  string        `envconfig:"LLM_VISION_MODEL" default:""`
	MaxTokens    int           `envconfig:"LLM_MAX_TOKENS" default:"4096"`
	Timeout      time.Duration `envconfig:"LLM_TIMEOUT" default:"120s"`
	RateLimitRPM int           `envconfig:"LLM_RATE_LIMIT_RPM" default:"60"`
	MaxRetries   int           `envconfig:"LLM_MAX_RETRIES" default:"3"`
	RetryBackoff time.Duration `envconfig:"LLM_RETRY_BACKOFF" default:"2s"`

	EnableCaching bool          `envconfig:"LLM_ENABLE_CACHING" default:"true"`
	CacheTTL      time.Duration `envconfig:"LLM_CACHE_TTL" default:"24h"`
	CacheSize     int           `envconfig:"LLM_CACHE_SIZE" default:"1000"`

	// Token prices in dollars per thousand tokens, for cost accounting
	InputTokenCost  float64 `envconfig:"LLM_INPUT_TOKEN_COST" default:"0.00015"`
	OutputTokenCost float64 `envconfig:"LLM_OUTPUT_TOKEN_COST" default:"0.0006"`
}

// APIKey returns the key of the selected provider
func (c LLMConfig) APIKey() string {
	if c.Provider == ProviderClaude {
		return c.AnthropicKey
	}
	return c.OpenAIKey
}

// TextModel returns the configured text model or the provider default
func (c LLMConfig) TextModel() string {
	if c.Model != "" {
		return c.Model
	}
	if c.Provider == ProviderClaude {
		return "claude-sonnet-4-20250514"
	}
	return "gpt-4o-mini"
}

// ImageModel returns the configured vision model or the provider default
func (c LLMConfig) ImageModel() string {
	if c.VisionModel != "" {
		return c.VisionModel
	}
	if c.Provider == ProviderClaude {
		return c.TextModel()
	}
	return "gpt-4o"
}

// PipelineConfig holds the snapshot layout and stage behaviour
type PipelineConfig struct {
	InputDir    string `envconfig:"PIPELINE_INPUT_DIR" default:"before"`
	OutputDir   string `envconfig:"PIPELINE_OUTPUT_DIR" default:"after"`
	ArtifactDir string `envconfig:"PIPELINE_ARTIFACT_DIR" default:"outputs"`
	HTMLFile    string `envconfig:"PIPELINE_HTML_FILE" default:"index.html"`
	CSSDir      string `envconfig:"PIPELINE_CSS_DIR" default:"css"`
	JSDir       string `envconfig:"PIPELINE_JS_DIR" default:"js"`
	ImagesDir   string `envconfig:"PIPELINE_IMAGES_DIR" default:"images"`

	// File name prefixes skipped when collecting CSS/JS
	ExcludePrefixes []string `envconfig:"PIPELINE_EXCLUDE_PREFIXES" default:"ajax"`

	ChunkTokens     int    `envconfig:"PIPELINE_CHUNK_TOKENS" default:"1500"`
	Concurrency     int    `envconfig:"PIPELINE_CONCURRENCY" default:"4"`
	RecommenderMode string `envconfig:"RECOMMENDER_MODE" default:"model"` // model, pattern
	Resume          bool   `envconfig:"PIPELINE_RESUME" default:"false"`
	KeepOriginal    bool   `envconfig:"KEEP_ORIGINAL_ON_MISSING" default:"true"`
	PromptsFile     string `envconfig:"PROMPTS_FILE" default:""`
}

// ImagesPath returns the directory captions read images from
func (c PipelineConfig) ImagesPath() string {
	return filepath.Join(c.InputDir, c.ImagesDir)
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	Enabled      bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Host         string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port         int           `envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `envconfig:"REDIS_PASSWORD" default:""`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Addr returns Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds object storage settings for the artifact mirror
type StorageConfig struct {
	Enabled   bool   `envconfig:"STORAGE_ENABLED" default:"false"`
	Endpoint  string `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"STORAGE_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"STORAGE_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"STORAGE_BUCKET" default:"a11yforge"`
	Region    string `envconfig:"STORAGE_REGION" default:"us-east-1"`
	UseSSL    bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
	Prefix    string `envconfig:"STORAGE_PREFIX" default:"runs"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	PushgatewayURL string `envconfig:"METRICS_PUSHGATEWAY_URL" default:""`
	Job            string `envconfig:"METRICS_JOB" default:"a11yforge"`
	ListenAddr     string `envconfig:"METRICS_LISTEN_ADDR" default:":9090"`
}

// TemporalConfig holds Temporal settings
type TemporalConfig struct {
	Host        string `envconfig:"TEMPORAL_HOST" default:"localhost"`
	Port        int    `envconfig:"TEMPORAL_PORT" default:"7233"`
	Namespace   string `envconfig:"TEMPORAL_NAMESPACE" default:"a11yforge"`
	TaskQueue   string `envconfig:"TEMPORAL_TASK_QUEUE" default:"a11yforge-remediation"`
	WorkerCount int    `envconfig:"TEMPORAL_WORKER_COUNT" default:"4"`
}

// Addr returns Temporal address
func (c TemporalConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Address returns Temporal address (alias for Addr)
func (c TemporalConfig) Address() string {
	return c.Addr()
}

// BreakerConfig holds circuit breaker settings for model calls
type BreakerConfig struct {
	Enabled          bool          `envconfig:"BREAKER_ENABLED" default:"true"`
	FailureThreshold uint32        `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	Timeout          time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`
	Interval         time.Duration `envconfig:"BREAKER_INTERVAL" default:"60s"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config without validation (for CLI tools that
// override fields from flags before validating)
func LoadWithDefaults() (*Config, error) {
	var cfg Config

	// Try to load from env, but don't fail on malformed values
	envconfig.Process("", &cfg)

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOpenAI
	}
	if cfg.LLM.OpenAIKey == "" {
		cfg.LLM.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.LLM.AnthropicKey == "" {
		cfg.LLM.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Pipeline.ChunkTokens == 0 {
		cfg.Pipeline.ChunkTokens = 1500
	}
	if cfg.Pipeline.Concurrency == 0 {
		cfg.Pipeline.Concurrency = 4
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errors []string

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.OpenAIKey == "" {
			errors = append(errors, "OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case ProviderClaude:
		if c.LLM.AnthropicKey == "" {
			errors = append(errors, "ANTHROPIC_API_KEY is required when LLM_PROVIDER=claude")
		}
	default:
		errors = append(errors, fmt.Sprintf("LLM_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderClaude, c.LLM.Provider))
	}

	switch c.Pipeline.RecommenderMode {
	case RecommenderModel, RecommenderPattern:
	default:
		errors = append(errors, fmt.Sprintf("RECOMMENDER_MODE must be %q or %q, got %q", RecommenderModel, RecommenderPattern, c.Pipeline.RecommenderMode))
	}

	if c.Pipeline.ChunkTokens <= 0 {
		errors = append(errors, "PIPELINE_CHUNK_TOKENS must be positive")
	}
	if c.Pipeline.Concurrency <= 0 {
		errors = append(errors, "PIPELINE_CONCURRENCY must be positive")
	}
	if c.Pipeline.InputDir == "" {
		errors = append(errors, "PIPELINE_INPUT_DIR is required")
	}
	if c.Pipeline.InputDir != "" && filepath.Clean(c.Pipeline.InputDir) == filepath.Clean(c.Pipeline.OutputDir) {
		errors = append(errors, "PIPELINE_OUTPUT_DIR must differ from PIPELINE_INPUT_DIR")
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		errors = append(errors, "STORAGE_BUCKET is required when STORAGE_ENABLED=true")
	}

	if c.IsProduction() && c.Server.APIToken == "" {
		errors = append(errors, "SERVER_API_TOKEN is required in production")
	}
	if c.Server.WorkRoot != "" && !filepath.IsAbs(c.Server.WorkRoot) {
		errors = append(errors, "SERVER_WORK_ROOT must be an absolute path")
	}

	if len(errors) > 0 {
		return domain.ErrInvalidConfig(fmt.Sprintf("configuration errors: %s", strings.Join(errors, "; ")))
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// GetLogLevel returns the appropriate zap log level
func (c *Config) GetLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}
