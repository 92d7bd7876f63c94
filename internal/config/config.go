package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration
type Config struct {
	Env      Environment `envconfig:"ENV" default:"development"`
	LogLevel string      `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool        `envconfig:"DEBUG" default:"false"`

	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Temporal  TemporalConfig
	Claude    ClaudeConfig
	PageSpeed PageSpeedConfig
	Storage   StorageConfig
	Audit     AuditConfig
	Benchmark BenchmarkConfig
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"sitegrader"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"APP_LOG_LEVEL" default:"info"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"sitegrader"`
	Password        string        `envconfig:"DB_PASSWORD" default:""`
	Database        string        `envconfig:"DB_NAME" default:"sitegrader"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"1m"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	Host         string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port         int           `envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `envconfig:"REDIS_PASSWORD" default:""`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REDIS_MIN_IDLE_CONNS" default:"5"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Addr returns Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TemporalConfig holds Temporal settings
type TemporalConfig struct {
	Host        string `envconfig:"TEMPORAL_HOST" default:"localhost"`
	Port        int    `envconfig:"TEMPORAL_PORT" default:"7233"`
	Namespace   string `envconfig:"TEMPORAL_NAMESPACE" default:"sitegrader"`
	TaskQueue   string `envconfig:"TEMPORAL_TASK_QUEUE" default:"sitegrader-audits"`
	WorkerCount int    `envconfig:"TEMPORAL_WORKER_COUNT" default:"2"`
}

// Address returns Temporal address
func (c TemporalConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ClaudeConfig holds Claude AI settings
type ClaudeConfig struct {
	APIKey        string        `envconfig:"ANTHROPIC_API_KEY" default:""`
	Model         string        `envconfig:"CLAUDE_MODEL" default:"claude-sonnet-4-20250514"`
	VisionModel   string        `envconfig:"CLAUDE_VISION_MODEL" default:"claude-sonnet-4-20250514"`
	MaxTokens     int           `envconfig:"CLAUDE_MAX_TOKENS" default:"8192"`
	Timeout       time.Duration `envconfig:"CLAUDE_TIMEOUT" default:"120s"`
	RateLimitRPM  int           `envconfig:"CLAUDE_RATE_LIMIT_RPM" default:"50"`
	CacheTTL      time.Duration `envconfig:"CLAUDE_CACHE_TTL" default:"24h"`
	CacheSize     int           `envconfig:"CLAUDE_CACHE_SIZE" default:"1000"`
	MaxRetries    int           `envconfig:"CLAUDE_MAX_RETRIES" default:"3"`
	EnableCaching bool          `envconfig:"CLAUDE_ENABLE_CACHING" default:"true"`
}

// PageSpeedConfig holds performance API settings
type PageSpeedConfig struct {
	BaseURL string        `envconfig:"PAGESPEED_BASE_URL" default:"https://www.googleapis.com/pagespeedonline/v5"`
	APIKey  string        `envconfig:"PAGESPEED_API_KEY" default:""`
	Timeout time.Duration `envconfig:"PAGESPEED_TIMEOUT" default:"60s"`
}

// StorageConfig holds object storage settings
type StorageConfig struct {
	Endpoint       string `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
	AccessKey      string `envconfig:"STORAGE_ACCESS_KEY" default:"minioadmin"`
	SecretKey      string `envconfig:"STORAGE_SECRET_KEY" default:"minioadmin"`
	Bucket         string `envconfig:"STORAGE_BUCKET" default:"sitegrader"`
	Region         string `envconfig:"STORAGE_REGION" default:"us-east-1"`
	UseSSL         bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
	ScreenshotPath string `envconfig:"STORAGE_SCREENSHOT_PATH" default:"screenshots"`
	DebugPath      string `envconfig:"STORAGE_DEBUG_PATH" default:"debug"`
}

// AuditConfig holds pipeline defaults. These seed RunOptions; per-run options
// always win.
type AuditConfig struct {
	MaxPagesPerModule      int           `envconfig:"AUDIT_MAX_PAGES_PER_MODULE" default:"3"`
	PageTimeout            time.Duration `envconfig:"AUDIT_PAGE_TIMEOUT" default:"30s"`
	CaptureConcurrency     int           `envconfig:"AUDIT_CAPTURE_CONCURRENCY" default:"1"`
	MaxCaptureConcurrency  int           `envconfig:"AUDIT_MAX_CAPTURE_CONCURRENCY" default:"4"`
	RunTimeout             time.Duration `envconfig:"AUDIT_RUN_TIMEOUT" default:"15m"`
	StageTimeout           time.Duration `envconfig:"AUDIT_STAGE_TIMEOUT" default:"6m"`
	SynthesisTimeout       time.Duration `envconfig:"AUDIT_SYNTHESIS_TIMEOUT" default:"90s"`
	EnableCrossPageContext bool          `envconfig:"AUDIT_CROSS_PAGE_CONTEXT" default:"true"`
	EnableBenchmarkContext bool          `envconfig:"AUDIT_BENCHMARK_CONTEXT" default:"true"`
	DisabledModules        []string      `envconfig:"AUDIT_DISABLED_MODULES" default:""`
	ScreenshotDir          string        `envconfig:"AUDIT_SCREENSHOT_DIR" default:"/tmp/sitegrader"`
	Headless               bool          `envconfig:"AUDIT_HEADLESS" default:"true"`

	// SimilarityThreshold drives synthesis clustering. Empirical; see DESIGN.md.
	SimilarityThreshold float64 `envconfig:"AUDIT_SIMILARITY_THRESHOLD" default:"0.55"`
}

// BenchmarkConfig holds benchmark matching weights. Defaults mirror the
// historical behavior; they are tunable, not contracts.
type BenchmarkConfig struct {
	IndustryWeight float64       `envconfig:"BENCHMARK_INDUSTRY_WEIGHT" default:"0.50"`
	SizeWeight     float64       `envconfig:"BENCHMARK_SIZE_WEIGHT" default:"0.25"`
	LocationWeight float64       `envconfig:"BENCHMARK_LOCATION_WEIGHT" default:"0.25"`
	CacheTTL       time.Duration `envconfig:"BENCHMARK_CACHE_TTL" default:"168h"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	if c.Claude.APIKey == "" {
		errs = append(errs, "ANTHROPIC_API_KEY is required")
	}
	if c.Audit.MaxPagesPerModule < 1 {
		errs = append(errs, "AUDIT_MAX_PAGES_PER_MODULE must be at least 1")
	}
	if c.Audit.CaptureConcurrency < 1 || c.Audit.CaptureConcurrency > c.Audit.MaxCaptureConcurrency {
		errs = append(errs, fmt.Sprintf("AUDIT_CAPTURE_CONCURRENCY must be in [1,%d]", c.Audit.MaxCaptureConcurrency))
	}
	if c.Audit.SimilarityThreshold <= 0 || c.Audit.SimilarityThreshold > 1 {
		errs = append(errs, "AUDIT_SIMILARITY_THRESHOLD must be in (0,1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
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
