package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/zatekoja/quizfunnel/pkg/secrets"
)

// ConfigPathEnvVar overrides the location of the optional YAML config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is not set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/quizfunnel/config.yaml",
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Meta      MetaConfig      `koanf:"meta"`
	Admin     AdminConfig     `koanf:"admin"`
	Queue     QueueConfig     `koanf:"queue"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	CORS      CORSConfig      `koanf:"cors"`
	Log       LogConfig       `koanf:"log"`
	OTEL      OTELConfig      `koanf:"otel"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver       string `koanf:"driver"`
	URL          string `koanf:"url"`
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	User         string `koanf:"user"`
	Password     string `koanf:"password"`
	Name         string `koanf:"name"`
	SSLMode      string `koanf:"sslmode"`
	SQLitePath   string `koanf:"sqlite_path"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
	MaxOpenConns int    `koanf:"max_open_conns"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// MetaConfig holds the Conversions API destination.
type MetaConfig struct {
	PixelID       string        `koanf:"pixel_id"`
	AccessToken   string        `koanf:"access_token"`
	APIVersion    string        `koanf:"api_version"`
	BaseURL       string        `koanf:"base_url"`
	TestEventCode string        `koanf:"test_event_code"`
	Timeout       time.Duration `koanf:"timeout"`
}

// AdminConfig holds the admin dashboard shared secret.
type AdminConfig struct {
	Key           string        `koanf:"key"`
	StatsCacheTTL time.Duration `koanf:"stats_cache_ttl"`
}

// QueueConfig configures the outbound conversions queue.
type QueueConfig struct {
	Backend     string        `koanf:"backend"`
	Workers     int           `koanf:"workers"`
	Buffer      int           `koanf:"buffer"`
	SendTimeout time.Duration `koanf:"send_timeout"`
	RedisKey    string        `koanf:"redis_key"`
}

// AnalyticsConfig holds browser-facing analytics identifiers.
type AnalyticsConfig struct {
	GAMeasurementID string `koanf:"ga_measurement_id"`
}

// CORSConfig holds the comma separated list of allowed origins.
type CORSConfig struct {
	AllowedOrigins string `koanf:"allowed_origins"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Env   string `koanf:"env"`
	Level string `koanf:"level"`
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`
	Endpoint       string `koanf:"endpoint"`
	Enabled        bool   `koanf:"enabled"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       DriverPostgres,
			Host:         "localhost",
			Port:         5432,
			User:         "postgres",
			Name:         "quizfunnel",
			SSLMode:      "disable",
			SQLitePath:   "quizfunnel.db",
			AutoMigrate:  true,
			MaxOpenConns: 25,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Meta: MetaConfig{
			APIVersion: "v18.0",
			BaseURL:    "https://graph.facebook.com",
			Timeout:    10 * time.Second,
		},
		Admin: AdminConfig{
			StatsCacheTTL: time.Minute,
		},
		Queue: QueueConfig{
			Backend:     QueueBackendMemory,
			Workers:     4,
			Buffer:      256,
			SendTimeout: 10 * time.Second,
			RedisKey:    "quizfunnel:conversions",
		},
		CORS: CORSConfig{AllowedOrigins: "*"},
		Log: LogConfig{
			Env:   "production",
			Level: "info",
		},
		OTEL: OTELConfig{
			ServiceName:    "quizfunnel",
			ServiceVersion: "1.0.0",
		},
	}
}

// Load reads configuration from defaults, an optional YAML file, an optional
// Vault secret and the environment, in increasing order of precedence.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Vault secrets sit between the file and the environment.
	if vault := secrets.LoadVaultConfigFromEnv(); vault.Enabled {
		if err := k.Load(secrets.Provider(vault, envTransform), nil); err != nil {
			return nil, fmt.Errorf("failed to load vault secrets: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Variable names used by the previous deployment keep working.
var legacyEnv = map[string]string{
	"port":                    "server.port",
	"database_url":            "database.url",
	"fb_pixel_id":             "meta.pixel_id",
	"next_public_fb_pixel_id": "meta.pixel_id",
	"fb_access_token":         "meta.access_token",
	"admin_password":          "admin.key",
	"next_public_ga_id":       "analytics.ga_measurement_id",
	"allowed_origins":         "cors.allowed_origins",
	"app_env":                 "log.env",
}

var envSections = map[string]string{
	"server_":    "server.",
	"db_":        "database.",
	"database_":  "database.",
	"redis_":     "redis.",
	"meta_":      "meta.",
	"admin_":     "admin.",
	"queue_":     "queue.",
	"analytics_": "analytics.",
	"cors_":      "cors.",
	"log_":       "log.",
	"otel_":      "otel.",
}

// envTransform maps SERVER_PORT to server.port. Unknown variables are ignored.
func envTransform(key string) string {
	key = strings.ToLower(key)
	if mapped, ok := legacyEnv[key]; ok {
		return mapped
	}
	for prefix, section := range envSections {
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return section + strings.TrimPrefix(key, prefix)
		}
	}
	return ""
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}

	switch c.Queue.Backend {
	case QueueBackendMemory:
	case QueueBackendRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("queue.backend %q requires redis.enabled", QueueBackendRedis)
		}
	default:
		return fmt.Errorf("queue.backend must be %q or %q, got %q", QueueBackendMemory, QueueBackendRedis, c.Queue.Backend)
	}

	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be positive, got %d", c.Queue.Workers)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// DatabaseDSN returns the connection string for the configured driver
func (c *DatabaseConfig) DatabaseDSN() string {
	if c.Driver == DriverSQLite {
		return c.SQLitePath
	}
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Configured reports whether both Conversions API secrets are present.
func (c *MetaConfig) Configured() bool {
	return c.PixelID != "" && c.AccessToken != ""
}

// Origins splits AllowedOrigins into a trimmed list.
func (c *CORSConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
