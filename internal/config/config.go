// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/viper"
)

// DefaultKey is the map key holding the fallback settings in rate_limit and
// breaker sections.
const DefaultKey = "default"

// Config holds all application configuration.
type Config struct {
	App       AppConfig                  `mapstructure:"app"`
	Router    RouterConfig               `mapstructure:"router"`
	Cache     CacheConfig                `mapstructure:"cache"`
	RateLimit map[string]RateLimitConfig `mapstructure:"rate_limit"`
	Breaker   map[string]BreakerConfig   `mapstructure:"breaker"`
	Retry     RetryConfig                `mapstructure:"retry"`
	Providers map[string]ProviderConfig  `mapstructure:"providers"`
	Telemetry TelemetryConfig            `mapstructure:"telemetry"`
	Health    HealthConfig               `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// RouterConfig holds fan-out timing and the tie-break order.
type RouterConfig struct {
	BatchDeadline  time.Duration `mapstructure:"batch_deadline"`
	AdapterTimeout time.Duration `mapstructure:"adapter_timeout"`
	Priority       []string      `mapstructure:"priority"` // earlier wins exact ties
}

// CacheConfig holds quote cache settings.
type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Backend       string        `mapstructure:"backend"` // memory | redis
	RedisURL      string        `mapstructure:"redis_url"`
}

// RateLimitConfig is the call budget of one provider.
type RateLimitConfig struct {
	PerMinute int     `mapstructure:"per_minute"`
	PerSecond float64 `mapstructure:"per_second"`
}

// BreakerConfig is the circuit breaker policy of one provider.
type BreakerConfig struct {
	Threshold    uint32        `mapstructure:"threshold"`
	OpenDuration time.Duration `mapstructure:"open_duration"`
}

// RetryConfig holds the shared retry schedule.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	GrowthFactor float64       `mapstructure:"growth_factor"`
	Jitter       bool          `mapstructure:"jitter"`
}

// ProviderConfig holds the endpoint settings of one aggregator.
type ProviderConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	BaseURL  string   `mapstructure:"base_url"` // JSON-RPC endpoint for uniswap
	APIKey   string   `mapstructure:"api_key"`
	Chains   []uint64 `mapstructure:"chains"`
	Sender   string   `mapstructure:"sender"`   // fromAddress when a request has no taker (lifi)
	Contract string   `mapstructure:"contract"` // quoter address (uniswap)
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	Exporter       string  `mapstructure:"exporter"` // zipkin | otlp-grpc | otlp-http | console
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string  `mapstructure:"otlp_headers"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	PrometheusPort int     `mapstructure:"prometheus_port"`
}

// HealthConfig holds the health/stats server settings.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("QR")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "QR_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "QR_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "QR_LOG_LEVEL", "LOG_LEVEL")

	// Router
	v.BindEnv("router.batch_deadline", "QR_BATCH_DEADLINE")
	v.BindEnv("router.adapter_timeout", "QR_ADAPTER_TIMEOUT")

	// Cache
	v.BindEnv("cache.ttl", "QR_CACHE_TTL")
	v.BindEnv("cache.backend", "QR_CACHE_BACKEND")
	v.BindEnv("cache.redis_url", "QR_REDIS_URL", "REDIS_URL")

	// Provider credentials
	v.BindEnv("providers.0x.api_key", "QR_ZEROX_API_KEY", "ZEROX_API_KEY")
	v.BindEnv("providers.1inch.api_key", "QR_ONEINCH_API_KEY", "ONEINCH_API_KEY")
	v.BindEnv("providers.lifi.api_key", "QR_LIFI_API_KEY", "LIFI_API_KEY")
	v.BindEnv("providers.uniswap.base_url", "QR_ETH_RPC_URL", "ETH_RPC_URL")

	// Telemetry
	v.BindEnv("telemetry.enabled", "QR_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "QR_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.exporter", "QR_OTEL_EXPORTER")
	v.BindEnv("telemetry.otlp_endpoint", "QR_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "QR_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")

	// Health
	v.BindEnv("health.port", "QR_HEALTH_PORT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "quote-router")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Router defaults
	v.SetDefault("router.batch_deadline", "10s")
	v.SetDefault("router.adapter_timeout", "8s")
	v.SetDefault("router.priority", []string{"0x", "1inch", "paraswap", "lifi", "uniswap"})

	// Cache defaults
	v.SetDefault("cache.ttl", "5s")
	v.SetDefault("cache.sweep_interval", "30s")
	v.SetDefault("cache.backend", "memory")

	// Rate limit defaults
	v.SetDefault("rate_limit.default.per_minute", 10)
	v.SetDefault("rate_limit.default.per_second", 1)
	v.SetDefault("rate_limit.0x.per_minute", 60)
	v.SetDefault("rate_limit.0x.per_second", 5)
	v.SetDefault("rate_limit.1inch.per_minute", 60)
	v.SetDefault("rate_limit.1inch.per_second", 1)

	// Breaker defaults
	v.SetDefault("breaker.default.threshold", 5)
	v.SetDefault("breaker.default.open_duration", "60s")

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "60s")
	v.SetDefault("retry.growth_factor", 2.0)
	v.SetDefault("retry.jitter", true)

	// Provider defaults
	v.SetDefault("providers.0x.enabled", true)
	v.SetDefault("providers.0x.base_url", "https://api.0x.org")
	v.SetDefault("providers.0x.chains", []uint64{1, 10, 56, 137, 8453, 42161})
	v.SetDefault("providers.1inch.enabled", true)
	v.SetDefault("providers.1inch.base_url", "https://api.1inch.dev")
	v.SetDefault("providers.1inch.chains", []uint64{1, 10, 56, 137, 8453, 42161})
	v.SetDefault("providers.paraswap.enabled", true)
	v.SetDefault("providers.paraswap.base_url", "https://apiv5.paraswap.io")
	v.SetDefault("providers.paraswap.chains", []uint64{1, 10, 56, 137, 8453, 42161})
	v.SetDefault("providers.lifi.enabled", true)
	v.SetDefault("providers.lifi.base_url", "https://li.quest")
	v.SetDefault("providers.lifi.chains", []uint64{1, 10, 56, 137, 8453, 42161})
	v.SetDefault("providers.lifi.sender", "0x0000000000000000000000000000000000000001")
	v.SetDefault("providers.uniswap.enabled", false)
	v.SetDefault("providers.uniswap.chains", []uint64{1})
	v.SetDefault("providers.uniswap.contract", "0x61fFE014bA17989E743c5F6cB21bF9697530B21e")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "quote-router")
	v.SetDefault("telemetry.exporter", "otlp-grpc")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.prometheus_port", 9090)

	// Health defaults
	v.SetDefault("health.port", 8080)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Router.BatchDeadline <= 0 {
		return fmt.Errorf("router.batch_deadline must be positive")
	}
	if c.Router.AdapterTimeout <= 0 {
		return fmt.Errorf("router.adapter_timeout must be positive")
	}
	if c.Cache.TTL <= 0 || c.Cache.TTL >= time.Minute {
		return fmt.Errorf("cache.ttl must be between 0 and 1m, got %s", c.Cache.TTL)
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache.backend: %q", c.Cache.Backend)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays invalid: base=%s max=%s", c.Retry.BaseDelay, c.Retry.MaxDelay)
	}
	if c.Retry.GrowthFactor < 1 {
		return fmt.Errorf("retry.growth_factor must be >= 1")
	}
	for name, b := range c.Breaker {
		if b.Threshold == 0 || b.OpenDuration <= 0 {
			return fmt.Errorf("breaker.%s: threshold and open_duration must be positive", name)
		}
	}
	for name, p := range c.Providers {
		if p.Enabled && p.BaseURL == "" {
			return fmt.Errorf("providers.%s.base_url is required", name)
		}
	}
	for _, name := range c.Router.Priority {
		if _, ok := c.Providers[name]; !ok {
			return fmt.Errorf("router.priority references unknown provider %q", name)
		}
	}
	if len(c.EnabledProviders()) == 0 {
		return fmt.Errorf("at least one provider must be enabled")
	}
	return nil
}

// EnabledProviders returns the names of enabled providers, sorted.
func (c *Config) EnabledProviders() []string {
	names := make([]string, 0, len(c.Providers))
	for name, p := range c.Providers {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// RateLimitFor returns the provider's budget, falling back to the default
// entry.
func (c *Config) RateLimitFor(provider string) RateLimitConfig {
	if rl, ok := c.RateLimit[provider]; ok {
		return rl
	}
	return c.RateLimit[DefaultKey]
}

// BreakerFor returns the provider's breaker policy, falling back to the
// default entry.
func (c *Config) BreakerFor(provider string) BreakerConfig {
	if b, ok := c.Breaker[provider]; ok {
		return b
	}
	return c.Breaker[DefaultKey]
}
