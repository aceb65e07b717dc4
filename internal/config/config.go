package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the intelgraph service.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service" yaml:"service"`
	Temporal  TemporalConfig  `mapstructure:"temporal" yaml:"temporal"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Research  ResearchConfig  `mapstructure:"research" yaml:"research"`
	OpenAI    OpenAIConfig    `mapstructure:"openai" yaml:"openai"`
	Archive   ArchiveConfig   `mapstructure:"archive" yaml:"archive"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	Streaming StreamingConfig `mapstructure:"streaming" yaml:"streaming"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
}

// ServiceConfig contains HTTP server settings.
type ServiceConfig struct {
	Port              int           `mapstructure:"port" yaml:"port"`
	GracefulTimeout   time.Duration `mapstructure:"graceful_timeout" yaml:"graceful_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes" yaml:"max_header_bytes"`
}

// TemporalConfig contains Temporal workflow settings.
type TemporalConfig struct {
	HostPort          string            `mapstructure:"host_port" yaml:"host_port"`
	Namespace         string            `mapstructure:"namespace" yaml:"namespace"`
	TaskQueue         string            `mapstructure:"task_queue" yaml:"task_queue"`
	WorkerConcurrency int               `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	ConnectTimeout    time.Duration     `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	RetryPolicy       RetryPolicyConfig `mapstructure:"retry_policy" yaml:"retry_policy"`
}

// RetryPolicyConfig contains activity retry settings.
type RetryPolicyConfig struct {
	InitialInterval    time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	BackoffCoefficient float64       `mapstructure:"backoff_coefficient" yaml:"backoff_coefficient"`
	MaximumInterval    time.Duration `mapstructure:"maximum_interval" yaml:"maximum_interval"`
	MaximumAttempts    int32         `mapstructure:"maximum_attempts" yaml:"maximum_attempts"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// Addr returns the host:port address for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheConfig contains research cache settings. TTL caps how long an
// entry may sit in Redis regardless of its own freshness window.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// SessionConfig contains session store settings.
type SessionConfig struct {
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MirrorSize int           `mapstructure:"mirror_size" yaml:"mirror_size"`
}

// ResearchConfig contains research pipeline settings.
type ResearchConfig struct {
	DefaultFocus             string        `mapstructure:"default_focus" yaml:"default_focus"`
	DefaultMaxAgeDays        int           `mapstructure:"default_max_age_days" yaml:"default_max_age_days"`
	DefaultMinSources        int           `mapstructure:"default_min_sources" yaml:"default_min_sources"`
	Roster                   []string      `mapstructure:"roster" yaml:"roster"`
	MaxParallel              int           `mapstructure:"max_parallel" yaml:"max_parallel"`
	ResearchTimeout          time.Duration `mapstructure:"research_timeout" yaml:"research_timeout"`
	SynthesisTimeout         time.Duration `mapstructure:"synthesis_timeout" yaml:"synthesis_timeout"`
	EstimatedCompletionMins  int           `mapstructure:"estimated_completion_mins" yaml:"estimated_completion_mins"`
}

// OpenAIConfig contains LLM provider settings. The API key is only ever
// read from the environment, never from a config file.
type OpenAIConfig struct {
	APIKey        string        `mapstructure:"-" yaml:"-"`
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	Model         string        `mapstructure:"model" yaml:"model"`
	FallbackModel string        `mapstructure:"fallback_model" yaml:"fallback_model"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxTokens     int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RateLimitFile string        `mapstructure:"rate_limit_file" yaml:"rate_limit_file"`
}

// ArchiveConfig contains session archive database settings.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Driver    string `mapstructure:"driver" yaml:"driver"` // "postgres" or "sqlite3"
	DSN       string `mapstructure:"dsn" yaml:"dsn"`
	QueueSize int    `mapstructure:"queue_size" yaml:"queue_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
	Encoding    string `mapstructure:"encoding" yaml:"encoding"` // "json" or "console"
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	ServiceName  string `mapstructure:"service_name" yaml:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
}

// StreamingConfig contains status stream settings.
type StreamingConfig struct {
	RingCapacity int `mapstructure:"ring_capacity" yaml:"ring_capacity"`
}

// HealthConfig contains health check settings.
type HealthConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Port:              8000,
			GracefulTimeout:   30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1MB
		},
		Temporal: TemporalConfig{
			HostPort:          "localhost:7233",
			Namespace:         "default",
			TaskQueue:         "intelgraph-research",
			WorkerConcurrency: 10,
			ConnectTimeout:    30 * time.Second,
			RetryPolicy: RetryPolicyConfig{
				InitialInterval:    1 * time.Second,
				BackoffCoefficient: 2.0,
				MaximumInterval:    60 * time.Second,
				MaximumAttempts:    3,
			},
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Cache: CacheConfig{
			TTL: 365 * 24 * time.Hour,
		},
		Session: SessionConfig{
			TTL:        24 * time.Hour,
			MirrorSize: 1024,
		},
		Research: ResearchConfig{
			DefaultFocus:      "AI narrative and strategic initiatives",
			DefaultMaxAgeDays: 60,
			DefaultMinSources: 3,
			Roster: []string{
				"Accenture", "IBM", "Infosys", "Cognizant",
				"Capgemini", "Wipro", "HCLTech", "Deloitte",
			},
			MaxParallel:             3,
			ResearchTimeout:         10 * time.Minute,
			SynthesisTimeout:        5 * time.Minute,
			EstimatedCompletionMins: 25,
		},
		OpenAI: OpenAIConfig{
			Model:         "gpt-4o",
			FallbackModel: "gpt-4o-mini",
			Timeout:       120 * time.Second,
			MaxTokens:     4000,
		},
		Archive: ArchiveConfig{
			Enabled:   false,
			Driver:    "postgres",
			QueueSize: 256,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ServiceName:  "intelgraph",
			OTLPEndpoint: "localhost:4317",
		},
		Streaming: StreamingConfig{
			RingCapacity: 256,
		},
		Health: HealthConfig{
			CheckInterval: 30 * time.Second,
			Timeout:       5 * time.Second,
		},
	}
}

// ResolvePath resolves the config file location: an explicit path wins,
// then CONFIG_PATH, then the default config/intelgraph.yaml.
func ResolvePath(path string) string {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config/intelgraph.yaml"
	}
	return path
}

// Load reads configuration from the file at ResolvePath(path), layered over
// defaults, then applies environment overrides. A missing file is not an
// error; a malformed one is.
func Load(path string) (*Config, error) {
	path = ResolvePath(path)

	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides on top of
// file values. Env always wins.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVICE_PORT"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Service.Port = x
		}
	}
	cfg.Temporal.HostPort = getEnvOrDefault("TEMPORAL_HOST", cfg.Temporal.HostPort)
	cfg.Temporal.Namespace = getEnvOrDefault("TEMPORAL_NAMESPACE", cfg.Temporal.Namespace)
	cfg.Temporal.TaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", cfg.Temporal.TaskQueue)

	cfg.Redis.Host = getEnvOrDefault("REDIS_HOST", cfg.Redis.Host)
	if v := os.Getenv("REDIS_PORT"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Redis.Port = x
		}
	}
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAI.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.Model = getEnvOrDefault("OPENAI_MODEL", cfg.OpenAI.Model)
	cfg.OpenAI.FallbackModel = getEnvOrDefault("OPENAI_FALLBACK_MODEL", cfg.OpenAI.FallbackModel)

	if v := os.Getenv("ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = v == "true" || v == "1"
	}
	cfg.Archive.Driver = getEnvOrDefault("ARCHIVE_DRIVER", cfg.Archive.Driver)
	cfg.Archive.DSN = getEnvOrDefault("ARCHIVE_DSN", cfg.Archive.DSN)

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)

	if v := os.Getenv("ENABLE_TRACING"); v != "" {
		cfg.Tracing.Enabled = v == "true" || v == "1"
	}
	cfg.Tracing.OTLPEndpoint = getEnvOrDefault("OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)

	if v := os.Getenv("RESEARCH_MAX_PARALLEL"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Research.MaxParallel = x
		}
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("service port must be between 1 and 65535, got %d", c.Service.Port)
	}
	if c.Temporal.HostPort == "" {
		return fmt.Errorf("temporal host_port cannot be empty")
	}
	if c.Temporal.Namespace == "" {
		return fmt.Errorf("temporal namespace cannot be empty")
	}
	if c.Temporal.TaskQueue == "" {
		return fmt.Errorf("temporal task_queue cannot be empty")
	}
	if c.Research.DefaultMaxAgeDays < 1 || c.Research.DefaultMaxAgeDays > 365 {
		return fmt.Errorf("default_max_age_days must be between 1 and 365, got %d", c.Research.DefaultMaxAgeDays)
	}
	if c.Research.DefaultMinSources < 1 || c.Research.DefaultMinSources > 10 {
		return fmt.Errorf("default_min_sources must be between 1 and 10, got %d", c.Research.DefaultMinSources)
	}
	if len(c.Research.Roster) == 0 {
		return fmt.Errorf("research roster cannot be empty")
	}
	if c.Research.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be at least 1, got %d", c.Research.MaxParallel)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %v", c.Cache.TTL)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %v", c.Session.TTL)
	}
	if c.Streaming.RingCapacity < 1 {
		return fmt.Errorf("streaming ring_capacity must be at least 1, got %d", c.Streaming.RingCapacity)
	}
	if c.OpenAI.Model == "" {
		return fmt.Errorf("openai model cannot be empty")
	}
	if c.Archive.Enabled && c.Archive.DSN == "" {
		return fmt.Errorf("archive dsn cannot be empty when archive is enabled")
	}
	return nil
}

// getEnvOrDefault returns the env value for key, or defaultValue when unset.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
