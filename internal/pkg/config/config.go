package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Valkey     ValkeyConfig     `mapstructure:"valkey"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Aerobotics AeroboticsConfig `mapstructure:"aerobotics"`
	Imputer    ImputerConfig    `mapstructure:"imputer"`
	Plots      PlotsConfig      `mapstructure:"plots"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
	Watcher    WatcherConfig    `mapstructure:"watcher"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
	// RateLimit is the number of requests per minute per client IP.
	RateLimit   int    `mapstructure:"rate_limit"`
	CORSOrigins string `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// AeroboticsConfig configures the survey provider.
type AeroboticsConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	AuthToken string `mapstructure:"auth_token"`
	// Timeout is the per-request timeout in seconds.
	Timeout        int     `mapstructure:"timeout"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
	PageSize       int     `mapstructure:"page_size"`
}

func (a AeroboticsConfig) RequestTimeout() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// ImputerConfig holds the admission rule multipliers.
type ImputerConfig struct {
	NeighborFactor   float64 `mapstructure:"neighbor_factor"`
	SeparationFactor float64 `mapstructure:"separation_factor"`
	InsetFactor      float64 `mapstructure:"inset_factor"`
}

type PlotsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Width   int    `mapstructure:"width"`
}

// CacheConfig holds cache TTLs in seconds.
type CacheConfig struct {
	ResultTTL int `mapstructure:"result_ttl"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// WatcherConfig configures the survey watcher.
type WatcherConfig struct {
	// Interval between polls in seconds.
	Interval int `mapstructure:"interval"`
}

func (w WatcherConfig) PollInterval() time.Duration {
	return time.Duration(w.Interval) * time.Second
}

// Load reads configuration from a .env file, an optional config file and
// environment variables, in increasing order of precedence.
func Load(service string) (*Config, error) {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Environment variables: ORCHARDGAP_AEROBOTICS_AUTH_TOKEN → aerobotics.auth_token
	v.SetEnvPrefix("ORCHARDGAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.cors_origins", "http://localhost:3000, http://localhost:5173")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "orchardgap")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "orchardgap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("aerobotics.base_url", "https://api.aerobotics.com")
	v.SetDefault("aerobotics.auth_token", "")
	v.SetDefault("aerobotics.timeout", 20)
	v.SetDefault("aerobotics.requests_per_sec", 5)
	v.SetDefault("aerobotics.page_size", 500)
	v.SetDefault("imputer.neighbor_factor", 15)
	v.SetDefault("imputer.separation_factor", 2)
	v.SetDefault("imputer.inset_factor", 2)
	v.SetDefault("plots.enabled", true)
	v.SetDefault("plots.dir", "plots")
	v.SetDefault("plots.width", 1200)
	v.SetDefault("cache.result_ttl", 900)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "orchard-imputation")
	v.SetDefault("watcher.interval", 3600)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if u, err := url.Parse(c.Aerobotics.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("aerobotics.base_url must be an absolute URL, got %q", c.Aerobotics.BaseURL))
	}
	if c.Aerobotics.Timeout <= 0 {
		errs = append(errs, "aerobotics.timeout must be positive")
	}
	if c.Aerobotics.RequestsPerSec <= 0 {
		errs = append(errs, "aerobotics.requests_per_sec must be positive")
	}
	if c.Aerobotics.PageSize <= 0 {
		errs = append(errs, "aerobotics.page_size must be positive")
	}
	if c.Imputer.NeighborFactor <= 0 {
		errs = append(errs, "imputer.neighbor_factor must be positive")
	}
	if c.Imputer.SeparationFactor < 0 {
		errs = append(errs, "imputer.separation_factor must not be negative")
	}
	if c.Imputer.InsetFactor < 0 {
		errs = append(errs, "imputer.inset_factor must not be negative")
	}
	if c.Plots.Enabled && c.Plots.Dir == "" {
		errs = append(errs, "plots.dir is required when plots are enabled")
	}
	if c.Plots.Width < 200 {
		errs = append(errs, fmt.Sprintf("plots.width must be at least 200, got %d", c.Plots.Width))
	}
	if c.Cache.ResultTTL < 0 {
		errs = append(errs, "cache.result_ttl must not be negative")
	}
	if c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required")
	}
	if c.Watcher.Interval <= 0 {
		errs = append(errs, "watcher.interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
