package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	GitHub    GitHubConfig
	JobServer JobServerConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
	AdminToken  string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// CacheConfig holds settings for the upstream HTTP response cache
type CacheConfig struct {
	Enabled bool
	// Backend is "memory" or "redis"
	Backend   string
	Namespace string
	// DefaultTTL of zero means entries never expire; they are only removed
	// by the namespaced clear when a report's source repo changes
	DefaultTTL time.Duration
	RedisAddr  string
	RedisDB    int
}

// GitHubConfig holds hosting-backend API settings
type GitHubConfig struct {
	// Token is optional; without it only public repos are reachable
	Token string
	// Org is the organisation all report repos live under
	Org string
	// BaseURL overrides the public API endpoint, for GitHub Enterprise
	BaseURL string
}

// JobServerConfig holds direct-file backend settings
type JobServerConfig struct {
	Token     string
	UserAgent string
	// Timeout for file fetches; the job server is internal and expected to be fast
	Timeout time.Duration
	// AllowedHosts restricts which hosts a job_server_url may point at.
	// Empty means any host is accepted.
	AllowedHosts []string
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
			AdminToken:  getEnv("ADMIN_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "reports"),
			User:        getEnv("POSTGRES_USER", "reports"),
			Password:    getEnv("POSTGRES_PASSWORD", "reports"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", time.Hour),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("REQUESTS_CACHE_ENABLED", true),
			Backend:    getEnv("REQUESTS_CACHE_BACKEND", "memory"),
			Namespace:  getEnv("REQUESTS_CACHE_NAME", "http_cache"),
			DefaultTTL: getEnvDuration("REQUESTS_CACHE_TTL", 0),
			RedisAddr:  getEnv("REDIS_ADDR", "localhost:6379"),
			RedisDB:    getEnvInt("REDIS_DB", 0),
		},
		GitHub: GitHubConfig{
			Token:   getEnv("GITHUB_TOKEN", ""),
			Org:     getEnv("GITHUB_ORG", "opensafely"),
			BaseURL: getEnv("GITHUB_BASE_URL", ""),
		},
		JobServer: JobServerConfig{
			Token:        getEnv("JOB_SERVER_TOKEN", ""),
			UserAgent:    getEnv("JOB_SERVER_USER_AGENT", "reports"),
			Timeout:      getEnvDuration("JOB_SERVER_TIMEOUT", time.Second),
			AllowedHosts: getEnvSlice("JOB_SERVER_ALLOWED_HOSTS", nil),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", false),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}
