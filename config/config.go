package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config Application Configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Lock     LockConfig     `mapstructure:"lock"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Channel  ChannelConfig  `mapstructure:"channel"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Log      LogConfig      `mapstructure:"log"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

// AppConfig Application Configuration
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Env     string `mapstructure:"env"` // development, staging, production; written on every persisted row
}

// ServerConfig Server Configuration
type ServerConfig struct {
	Port            string          `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig Rate Limiting Configuration
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Rate    float64 `mapstructure:"rate"`  // Requests per second
	Burst   int     `mapstructure:"burst"` // Burst capacity
}

// DatabaseConfig Database Configuration
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"` // mysql, mock
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	Retry           RetryConfig   `mapstructure:"retry"`
}

// RetryConfig Retry configuration for transient storage errors.
// Version conflicts are never retried at this layer.
type RetryConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	InitialDelay       time.Duration `mapstructure:"initial_delay"`
	MaxDelay           time.Duration `mapstructure:"max_delay"`
	BackoffFactor      float64       `mapstructure:"backoff_factor"`
	JitterEnabled      bool          `mapstructure:"jitter_enabled"`
	RetryOnDeadlock    bool          `mapstructure:"retry_on_deadlock"`
	RetryOnLockTimeout bool          `mapstructure:"retry_on_lock_timeout"`
}

// RedisConfig Redis Configuration
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LockConfig Distributed lock configuration
type LockConfig struct {
	Backend        string        `mapstructure:"backend"` // redis, local
	KeyPrefix      string        `mapstructure:"key_prefix"`
	DefaultTTL     time.Duration `mapstructure:"default_ttl"`
	PaddingSeconds int64         `mapstructure:"padding_seconds"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
}

// BatchConfig Batch orchestration configuration
type BatchConfig struct {
	ChunkSize int            `mapstructure:"chunk_size"`
	Pay       BatchJobConfig `mapstructure:"pay"`
	Notify    BatchJobConfig `mapstructure:"notify"`
}

// BatchJobConfig Per-job worker pool and schedule
type BatchJobConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Workers       int           `mapstructure:"workers"`
	QueueCapacity int           `mapstructure:"queue_capacity"`
	Throughput    float64       `mapstructure:"throughput"` // tasks per worker per second
	Interval      time.Duration `mapstructure:"interval"`
}

// PaymentConfig Payment command configuration
type PaymentConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	LeaseTTL   time.Duration `mapstructure:"lease_ttl"`
	Redrive    RetryConfig   `mapstructure:"redrive"` // spacing of channel request re-drives
}

// ChannelConfig Outbound payment channel configuration
type ChannelConfig struct {
	Simulated bool              `mapstructure:"simulated"`
	Endpoints map[string]string `mapstructure:"endpoints"` // channel code -> base URL
	Timeout   time.Duration     `mapstructure:"timeout"`
	Rate      float64           `mapstructure:"rate"`
	Burst     int               `mapstructure:"burst"`
	Breaker   BreakerConfig     `mapstructure:"breaker"`
}

// BreakerConfig Circuit breaker thresholds
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

// NotifyConfig Source-system notification configuration
type NotifyConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// LogConfig Log Configuration
type LogConfig struct {
	Level    string `mapstructure:"level"`  // debug, info, warn, error
	Format   string `mapstructure:"format"` // json, console
	Output   string `mapstructure:"output"` // stdout, file
	FilePath string `mapstructure:"file_path"`
}

// CORSConfig CORS Configuration
type CORSConfig struct {
	AllowOrigins     []string `mapstructure:"allow_origins"`
	AllowMethods     []string `mapstructure:"allow_methods"`
	AllowHeaders     []string `mapstructure:"allow_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// IsDevelopment Whether it's development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction Whether it's production environment
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Load Load Configuration
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("PAYTX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Use default values when config file doesn't exist
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// setDefaults Set default configuration
func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "paytx")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.env", "development")

	// Server
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.rate", 100)
	v.SetDefault("server.rate_limit.burst", 200)

	// Database
	v.SetDefault("database.type", "mock")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "3306")
	v.SetDefault("database.username", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "paytx")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("database.retry.enabled", true)
	v.SetDefault("database.retry.max_attempts", 3)
	v.SetDefault("database.retry.initial_delay", "100ms")
	v.SetDefault("database.retry.max_delay", "2s")
	v.SetDefault("database.retry.backoff_factor", 2.0)
	v.SetDefault("database.retry.jitter_enabled", true)
	v.SetDefault("database.retry.retry_on_deadlock", true)
	v.SetDefault("database.retry.retry_on_lock_timeout", true)

	// Redis
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// Lock
	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.key_prefix", "paytx:lock:")
	v.SetDefault("lock.default_ttl", "30s")
	v.SetDefault("lock.padding_seconds", 60)
	v.SetDefault("lock.retry_interval", "50ms")

	// Batch
	v.SetDefault("batch.chunk_size", 200)
	v.SetDefault("batch.pay.enabled", true)
	v.SetDefault("batch.pay.workers", 8)
	v.SetDefault("batch.pay.queue_capacity", 256)
	v.SetDefault("batch.pay.throughput", 5)
	v.SetDefault("batch.pay.interval", "10s")
	v.SetDefault("batch.notify.enabled", true)
	v.SetDefault("batch.notify.workers", 4)
	v.SetDefault("batch.notify.queue_capacity", 256)
	v.SetDefault("batch.notify.throughput", 10)
	v.SetDefault("batch.notify.interval", "15s")

	// Payment
	v.SetDefault("payment.max_retries", 5)
	v.SetDefault("payment.lease_ttl", "30s")
	v.SetDefault("payment.redrive.enabled", true)
	v.SetDefault("payment.redrive.initial_delay", "10s")
	v.SetDefault("payment.redrive.max_delay", "10m")
	v.SetDefault("payment.redrive.backoff_factor", 2.0)
	v.SetDefault("payment.redrive.jitter_enabled", true)

	// Channel
	v.SetDefault("channel.simulated", true)
	v.SetDefault("channel.endpoints", map[string]string{})
	v.SetDefault("channel.timeout", "5s")
	v.SetDefault("channel.rate", 50)
	v.SetDefault("channel.burst", 100)
	v.SetDefault("channel.breaker.failure_threshold", 5)
	v.SetDefault("channel.breaker.success_threshold", 2)
	v.SetDefault("channel.breaker.open_timeout", "10s")

	// Notify
	v.SetDefault("notify.timeout", "3s")
	v.SetDefault("notify.max_retries", 8)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "logs/app.log")

	// CORS
	v.SetDefault("cors.allow_origins", []string{"http://localhost:3000"})
	v.SetDefault("cors.allow_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allow_headers", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 86400)
}
