package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/nemscan/backend/pkg/timewindow"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Buffer      BufferConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
	Statistics  StatisticsConfig
	Catalog     CatalogConfig
}

type HTTPConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxConn      int
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret    string
	Issuer    string
	RoleClaim string
}

type BufferConfig struct {
	Path           string
	RetentionHours int
	SyncInterval   time.Duration
	MaxRetry       int
	BatchSize      int
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// StatisticsConfig tunes the aggregation engine.
type StatisticsConfig struct {
	Timezone          string
	LowStockLimit     int
	LowStockThreshold float64
	ErrorRateDays     int
	DefaultLanguage   string
}

// CatalogConfig points at the POS product catalog and its auth server.
type CatalogConfig struct {
	BaseURL       string
	AuthURL       string
	ClientID      string
	APIKey        string
	Audience      string
	Scope         string
	Timeout       time.Duration
	TokenTTL      time.Duration
	GroupCacheTTL time.Duration
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the service can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "nemscan-backend"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "0.0.0.0"),
			Port:         getString("SERVER_PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:      getInt("SERVER_MAX_CONN", 0),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "nemscan"),
			User:            getString("DB_USER", "nemscan"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:    os.Getenv("JWT_SECRET"),
			Issuer:    getString("JWT_ISSUER", "nemscan-backend"),
			RoleClaim: getString("JWT_ROLE_CLAIM", "role"),
		},
		Buffer: BufferConfig{
			Path:           getString("BOLTDB_PATH", "./data/buffer.db"),
			RetentionHours: getInt("BUFFER_RETENTION_HOURS", 24),
			SyncInterval:   getDuration("SYNC_INTERVAL_SECONDS", 30*time.Second),
			MaxRetry:       getInt("MAX_RETRY_ATTEMPTS", 3),
			BatchSize:      getInt("BUFFER_BATCH_SIZE", 50),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
		Statistics: StatisticsConfig{
			Timezone:          getString("STATS_TIMEZONE", "Europe/Copenhagen"),
			LowStockLimit:     getInt("STATS_LOW_STOCK_LIMIT", 5),
			LowStockThreshold: getFloat("STATS_LOW_STOCK_THRESHOLD", 100),
			ErrorRateDays:     getInt("STATS_ERROR_RATE_DAYS", 7),
			DefaultLanguage:   getString("STATS_DEFAULT_LANGUAGE", "da"),
		},
		Catalog: CatalogConfig{
			BaseURL:       getString("CATALOG_BASE_URL", "https://api.flexpos.com"),
			AuthURL:       os.Getenv("CATALOG_AUTH_URL"),
			ClientID:      os.Getenv("CATALOG_CLIENT_ID"),
			APIKey:        os.Getenv("CATALOG_API_KEY"),
			Audience:      os.Getenv("CATALOG_AUDIENCE"),
			Scope:         os.Getenv("CATALOG_SCOPE"),
			Timeout:       getDuration("CATALOG_TIMEOUT", 10*time.Second),
			TokenTTL:      getDuration("CATALOG_TOKEN_TTL", 50*time.Minute),
			GroupCacheTTL: getDuration("CATALOG_GROUP_CACHE_TTL", time.Hour),
		},
	}

	if cfg.Statistics.LowStockLimit < 0 {
		return nil, fmt.Errorf("STATS_LOW_STOCK_LIMIT must not be negative, got %d", cfg.Statistics.LowStockLimit)
	}
	if t := cfg.Statistics.LowStockThreshold; math.IsNaN(t) || math.IsInf(t, 0) {
		return nil, fmt.Errorf("STATS_LOW_STOCK_THRESHOLD must be a finite number, got %v", t)
	}
	if cfg.Statistics.ErrorRateDays <= 0 {
		return nil, fmt.Errorf("STATS_ERROR_RATE_DAYS must be positive, got %d", cfg.Statistics.ErrorRateDays)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = cfg.Database.DSN()
	}

	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}

// Location resolves the statistics timezone, falling back to UTC when unknown.
func (c *Config) Location() *time.Location {
	return timewindow.LoadLocation(c.Statistics.Timezone)
}

// CatalogEnabled reports whether enough credentials exist to call the catalog.
func (c *Config) CatalogEnabled() bool {
	return c.Catalog.BaseURL != "" && c.Catalog.AuthURL != "" && c.Catalog.ClientID != ""
}

// DSN builds a postgres connection string, preferring DATABASE_URL when set.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
}
