package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Import        ImportConfig
	Splitwise     SplitwiseConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	BaseURL            string
	RateLimitPerSecond int
	RateLimitBurst     int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

// ImportConfig bounds the resource usage of a single import run.
type ImportConfig struct {
	MaxFileBytes       int64
	MaxRows            int
	AuditRetentionDays int
}

// SplitwiseConfig configures the Splitwise API client. An empty APIKey
// disables the integration.
type SplitwiseConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// Load reads configuration from the environment, with .env files applied
// first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 100),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 200),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "moneta-dev"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
		Import: ImportConfig{
			MaxFileBytes:       getEnvAsInt64("IMPORT_MAX_FILE_BYTES", 10*1024*1024),
			MaxRows:            getEnvAsInt("IMPORT_MAX_ROWS", 5000),
			AuditRetentionDays: getEnvAsInt("IMPORT_AUDIT_RETENTION_DAYS", 365),
		},
		Splitwise: SplitwiseConfig{
			BaseURL:        getEnv("SPLITWISE_BASE_URL", "https://secure.splitwise.com/api/v3.0"),
			APIKey:         getEnv("SPLITWISE_API_KEY", ""),
			TimeoutSeconds: getEnvAsInt("SPLITWISE_TIMEOUT_SECONDS", 30),
		},
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
