package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers accepted by store.driver.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
	StoreDriverMemory   = "memory"
)

type Config struct {
	App AppConfig `mapstructure:"app"`

	Store StoreConfig `mapstructure:"store"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	Clicks ClicksConfig `mapstructure:"clicks"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	Monitor MonitorConfig `mapstructure:"monitor"`
}

type AppConfig struct {
	Env         string `mapstructure:"env"`
	Addr        string `mapstructure:"addr"`
	BaseURL     string `mapstructure:"base_url"`
	LogLevel    string `mapstructure:"log_level"`
	LogEncoding string `mapstructure:"log_encoding"`
	CORSOrigin  string `mapstructure:"cors_origin"`
}

// Development reports whether the process runs outside production.
func (c AppConfig) Development() bool {
	return c.Env != "production"
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type NATSConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Stream   string `mapstructure:"stream"`
	Subject  string `mapstructure:"subject"`
	Durable  string `mapstructure:"durable"`
}

// ClicksConfig tunes the click accounting pipeline.
type ClicksConfig struct {
	// Consume starts the batch consumer inside this process.
	Consume        bool          `mapstructure:"consume"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	BatchSize      int           `mapstructure:"batch_size"`
	FetchWait      time.Duration `mapstructure:"fetch_wait"`
	AckWait        time.Duration `mapstructure:"ack_wait"`
	MaxDeliver     int           `mapstructure:"max_deliver"`
	Workers        int           `mapstructure:"workers"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	return load(v)
}

// LoadFile reads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.App.CORSOrigin = normalizeOrigin(cfg.App.CORSOrigin)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverRedis, StoreDriverMemory:
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Clicks.BatchSize < 1 {
		return fmt.Errorf("config: clicks.batch_size must be positive, got %d", c.Clicks.BatchSize)
	}
	if c.Clicks.PublishTimeout <= 0 {
		return fmt.Errorf("config: clicks.publish_timeout must be positive, got %s", c.Clicks.PublishTimeout)
	}
	return nil
}

// normalizeOrigin turns a bare host, the usual FRONTEND_DOMAIN value, into
// an http origin. Wildcards and values with a scheme pass through.
func normalizeOrigin(origin string) string {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" || origin == "*" || strings.Contains(origin, "://") {
		return origin
	}
	return "http://" + origin
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.addr", ":8080")
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.log_encoding", "console")
	v.SetDefault("app.cors_origin", "*")

	v.SetDefault("store.driver", StoreDriverPostgres)

	v.SetDefault("nats.stream", "CLICKS")
	v.SetDefault("nats.subject", "clicks.events")
	v.SetDefault("nats.durable", "click-accounting")

	v.SetDefault("clicks.consume", true)
	v.SetDefault("clicks.publish_timeout", 2*time.Second)
	v.SetDefault("clicks.batch_size", 10)
	v.SetDefault("clicks.fetch_wait", 5*time.Second)
	v.SetDefault("clicks.ack_wait", 30*time.Second)
	v.SetDefault("clicks.max_deliver", 5)
	v.SetDefault("clicks.workers", 4)

	v.SetDefault("prometheus.port", 9090)

	v.SetDefault("monitor.interval", 30*time.Second)
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("app.base_url", "BASE_URL")
	v.BindEnv("app.log_level", "LOG_LEVEL")
	v.BindEnv("app.cors_origin", "FRONTEND_DOMAIN")

	v.BindEnv("store.driver", "STORE_DRIVER")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("redis.pool_size", "REDIS_POOL_SIZE")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.subject", "STATS_QUEUE")

	// Prometheus
	v.BindEnv("prometheus.enabled", "PROM_ENABLED")
	v.BindEnv("prometheus.port", "PROM_PORT")
}
