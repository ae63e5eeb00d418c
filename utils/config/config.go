// Package config loads service configuration from a YAML file with
// environment variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"` // development | production
	BaseURL     string `yaml:"baseUrl"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Name     string `yaml:"name"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Pool     struct {
			Min               int `yaml:"min"`
			Max               int `yaml:"max"`
			ConnectionTimeout int `yaml:"connectionTimeout"` // seconds
			IdleTimeout       int `yaml:"idleTimeout"`       // seconds
		} `yaml:"pool"`
	} `yaml:"database"`

	ClickHouse struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Name     string `yaml:"name"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"clickhouse"`

	Cache struct {
		Host         string   `yaml:"host"`
		Port         int      `yaml:"port"`
		Password     string   `yaml:"password"`
		DB           int      `yaml:"db"`
		ClusterNodes []string `yaml:"clusterNodes"`
		MaxRetries   int      `yaml:"maxRetries"`
		RetryDelayMs int      `yaml:"retryDelay"`
	} `yaml:"cache"`

	Bus struct {
		Brokers             []string `yaml:"brokers"`
		ClientID            string   `yaml:"clientId"`
		ConnectionTimeoutMs int      `yaml:"connectionTimeout"`
		RequestTimeoutMs    int      `yaml:"requestTimeout"`
		Retries             int      `yaml:"retries"`
		Replicas            int      `yaml:"replicas"`
		SSLEnabled          bool     `yaml:"sslEnabled"`
		SASLMechanism       string   `yaml:"saslMechanism"`
	} `yaml:"bus"`

	Security struct {
		AccessSecret       string `yaml:"accessSecret"`
		RefreshSecret      string `yaml:"refreshSecret"`
		APIKeySecret       string `yaml:"apiKeySecret"`
		PasswordHashRounds int    `yaml:"passwordHashRounds"`
	} `yaml:"security"`

	RateLimit struct {
		WindowMs    int `yaml:"windowMs"`
		MaxRequests int `yaml:"maxRequests"`
		Tiers       struct {
			Anonymous  int `yaml:"anonymous"`
			Standard   int `yaml:"standard"`
			Premium    int `yaml:"premium"`
			Enterprise int `yaml:"enterprise"`
			Strict     int `yaml:"strict"`
		} `yaml:"tiers"`
	} `yaml:"rateLimit"`

	IDGenerator struct {
		CounterBatchSize int `yaml:"counterBatchSize"`
		MinCodeLength    int `yaml:"minCodeLength"`
		MaxRetries       int `yaml:"maxRetries"`
	} `yaml:"idGenerator"`

	Expiry struct {
		SweepIntervalSec       int `yaml:"sweepIntervalSec"`
		SweepBatchSize         int `yaml:"sweepBatchSize"`
		ExpiredTombstoneTTLSec int `yaml:"expiredTombstoneTtlSec"`
	} `yaml:"expiry"`

	Analytics struct {
		BufferMax           int `yaml:"bufferMax"`
		FlushIntervalMs     int `yaml:"flushIntervalMs"`
		BusConnectTimeoutMs int `yaml:"busConnectTimeoutMs"`
	} `yaml:"analytics"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		Endpoint    string  `yaml:"endpoint"`
		SampleRatio float64 `yaml:"sampleRatio"`
	} `yaml:"tracing"`
}

// Load reads the YAML file at path (empty path uses defaults only), applies
// defaults for anything unset, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		// Re-apply defaults for zero values the file left out.
		cfg.applyDefaults()
	}

	cfg.applyEnv()

	if cfg.Environment == "production" {
		if cfg.Security.AccessSecret == "" || cfg.Security.RefreshSecret == "" {
			return nil, fmt.Errorf("security.accessSecret and security.refreshSecret are required in production")
		}
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://short.ly"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Name == "" {
		c.Database.Name = "shortly"
	}
	if c.Database.User == "" {
		c.Database.User = "shortly"
	}
	if c.Database.Pool.Min == 0 {
		c.Database.Pool.Min = 2
	}
	if c.Database.Pool.Max == 0 {
		c.Database.Pool.Max = 20
	}
	if c.Database.Pool.ConnectionTimeout == 0 {
		c.Database.Pool.ConnectionTimeout = 5
	}
	if c.Database.Pool.IdleTimeout == 0 {
		c.Database.Pool.IdleTimeout = 300
	}

	if c.ClickHouse.Host == "" {
		c.ClickHouse.Host = "localhost"
	}
	if c.ClickHouse.Port == 0 {
		c.ClickHouse.Port = 9000
	}
	if c.ClickHouse.Name == "" {
		c.ClickHouse.Name = "shortly_analytics"
	}
	if c.ClickHouse.User == "" {
		c.ClickHouse.User = "default"
	}

	if c.Cache.Host == "" {
		c.Cache.Host = "localhost"
	}
	if c.Cache.Port == 0 {
		c.Cache.Port = 6379
	}
	if c.Cache.MaxRetries == 0 {
		c.Cache.MaxRetries = 3
	}
	if c.Cache.RetryDelayMs == 0 {
		c.Cache.RetryDelayMs = 100
	}

	if len(c.Bus.Brokers) == 0 {
		c.Bus.Brokers = []string{"nats://localhost:4222"}
	}
	if c.Bus.ClientID == "" {
		c.Bus.ClientID = "shortly"
	}
	if c.Bus.ConnectionTimeoutMs == 0 {
		c.Bus.ConnectionTimeoutMs = 3000
	}
	if c.Bus.RequestTimeoutMs == 0 {
		c.Bus.RequestTimeoutMs = 5000
	}
	if c.Bus.Retries == 0 {
		c.Bus.Retries = 3
	}
	if c.Bus.Replicas == 0 {
		c.Bus.Replicas = 1
	}

	if c.Security.PasswordHashRounds == 0 {
		c.Security.PasswordHashRounds = 12
	}

	if c.RateLimit.WindowMs == 0 {
		c.RateLimit.WindowMs = 60000
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = 100
	}
	if c.RateLimit.Tiers.Anonymous == 0 {
		c.RateLimit.Tiers.Anonymous = 100
	}
	if c.RateLimit.Tiers.Standard == 0 {
		c.RateLimit.Tiers.Standard = 1000
	}
	if c.RateLimit.Tiers.Premium == 0 {
		c.RateLimit.Tiers.Premium = 5000
	}
	if c.RateLimit.Tiers.Enterprise == 0 {
		c.RateLimit.Tiers.Enterprise = 20000
	}
	if c.RateLimit.Tiers.Strict == 0 {
		c.RateLimit.Tiers.Strict = 10
	}

	if c.IDGenerator.CounterBatchSize == 0 {
		c.IDGenerator.CounterBatchSize = 10000
	}
	if c.IDGenerator.MinCodeLength == 0 {
		c.IDGenerator.MinCodeLength = 7
	}
	if c.IDGenerator.MaxRetries == 0 {
		c.IDGenerator.MaxRetries = 3
	}

	if c.Expiry.SweepIntervalSec == 0 {
		c.Expiry.SweepIntervalSec = 60
	}
	if c.Expiry.SweepBatchSize == 0 {
		c.Expiry.SweepBatchSize = 500
	}
	if c.Expiry.ExpiredTombstoneTTLSec == 0 {
		c.Expiry.ExpiredTombstoneTTLSec = 604800 // 7 days
	}

	if c.Analytics.BufferMax == 0 {
		c.Analytics.BufferMax = 1000
	}
	if c.Analytics.FlushIntervalMs == 0 {
		c.Analytics.FlushIntervalMs = 1000
	}
	if c.Analytics.BusConnectTimeoutMs == 0 {
		c.Analytics.BusConnectTimeoutMs = 3000
	}

	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4317"
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 0.1
	}
}

func (c *Config) applyEnv() {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setStr(&c.Environment, "SHORTLY_ENV")
	setStr(&c.BaseURL, "SHORTLY_BASE_URL")
	setStr(&c.Server.Host, "SHORTLY_HOST")
	setInt(&c.Server.Port, "SHORTLY_PORT")

	setStr(&c.Database.Host, "POSTGRES_HOST")
	setInt(&c.Database.Port, "POSTGRES_PORT")
	setStr(&c.Database.Name, "POSTGRES_DB")
	setStr(&c.Database.User, "POSTGRES_USER")
	setStr(&c.Database.Password, "POSTGRES_PASSWORD")

	setStr(&c.ClickHouse.Host, "CLICKHOUSE_HOST")
	setInt(&c.ClickHouse.Port, "CLICKHOUSE_PORT")
	setStr(&c.ClickHouse.User, "CLICKHOUSE_USER")
	setStr(&c.ClickHouse.Password, "CLICKHOUSE_PASSWORD")

	setStr(&c.Cache.Host, "REDIS_HOST")
	setInt(&c.Cache.Port, "REDIS_PORT")
	setStr(&c.Cache.Password, "REDIS_PASSWORD")

	if v := os.Getenv("NATS_URL"); v != "" {
		c.Bus.Brokers = []string{v}
	}

	setStr(&c.Security.AccessSecret, "JWT_ACCESS_SECRET")
	setStr(&c.Security.RefreshSecret, "JWT_REFRESH_SECRET")
	setStr(&c.Security.APIKeySecret, "API_KEY_SECRET")

	setStr(&c.Tracing.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// Convenience duration accessors.

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowMs) * time.Millisecond
}

func (c *Config) AnalyticsFlushInterval() time.Duration {
	return time.Duration(c.Analytics.FlushIntervalMs) * time.Millisecond
}

func (c *Config) BusConnectTimeout() time.Duration {
	return time.Duration(c.Analytics.BusConnectTimeoutMs) * time.Millisecond
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Expiry.SweepIntervalSec) * time.Second
}

func (c *Config) ExpiredTombstoneTTL() time.Duration {
	return time.Duration(c.Expiry.ExpiredTombstoneTTLSec) * time.Second
}

// PostgresDSN builds the pgx connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&connect_timeout=%d",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Pool.ConnectionTimeout)
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Cache.Host, c.Cache.Port)
}

func (c *Config) ClickHouseAddr() string {
	return fmt.Sprintf("%s:%d", c.ClickHouse.Host, c.ClickHouse.Port)
}
