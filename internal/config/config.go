package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Registry and edits store drivers.
const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	ServerPort string
	GinMode    string
	LogLevel   string
	LogFormat  string

	RedisURL    string
	DatabaseURL string
	MaxDBConns  int32

	// JobRegistryDriver selects where submitted diagnostics are tracked:
	// redis, postgres or memory.
	JobRegistryDriver string
	// EditsStoreDriver selects where unsaved answers live: redis or memory.
	EditsStoreDriver string

	JWTSecret string

	BackendBaseURL      string
	BackendServiceToken string
	BackendTimeout      time.Duration

	PollInterval    time.Duration
	JobTTL          time.Duration
	SummaryCacheTTL time.Duration
	// SessionIdleTTL evicts in-memory survey sessions; their unsaved edits
	// stay in the edits store.
	SessionIdleTTL time.Duration

	SurveySchemaPath   string
	RateLimitPerMinute int
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:          getEnv("SERVER_PORT", "8080"),
		GinMode:             getEnv("GIN_MODE", "debug"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "pretty"),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		MaxDBConns:          int32(getEnvInt("MAX_DB_CONNS", 8)),
		JobRegistryDriver:   strings.ToLower(getEnv("JOB_REGISTRY_DRIVER", DriverRedis)),
		EditsStoreDriver:    strings.ToLower(getEnv("EDITS_STORE_DRIVER", DriverRedis)),
		JWTSecret:           getEnv("JWT_SECRET", defaultJWTSecret),
		BackendBaseURL:      strings.TrimRight(getEnv("BACKEND_BASE_URL", "http://localhost:8000/api"), "/"),
		BackendServiceToken: getEnv("BACKEND_SERVICE_TOKEN", ""),
		BackendTimeout:      getEnvDuration("BACKEND_TIMEOUT", 30*time.Second),
		PollInterval:        getEnvDuration("POLL_INTERVAL", 5*time.Second),
		JobTTL:              getEnvDuration("JOB_TTL", 30*time.Minute),
		SummaryCacheTTL:     getEnvDuration("SUMMARY_CACHE_TTL", 5*time.Minute),
		SessionIdleTTL:      getEnvDuration("SESSION_IDLE_TTL", time.Hour),
		SurveySchemaPath:    getEnv("SURVEY_SCHEMA_PATH", ""),
		RateLimitPerMinute:  getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		AllowedOrigins:      parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

const defaultJWTSecret = "change-this-to-a-secure-random-string"

// Warnings lists settings that let the gateway start but leave part of it
// broken or unsafe.
func (c *Config) Warnings() []string {
	var out []string
	if c.BackendServiceToken == "" {
		out = append(out, "BACKEND_SERVICE_TOKEN is empty; completion polling will be rejected by the backend and no diagnostic notifications will be sent")
	}
	if c.JWTSecret == defaultJWTSecret {
		out = append(out, "JWT_SECRET is the built-in default; set a random secret outside development")
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go duration strings ("5s", "30m") or a bare number
// of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
