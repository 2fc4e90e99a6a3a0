package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetDuration retrieves an environment variable as a Go duration string
// ("30s", "5m") or returns fallback.
func GetDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// Config holds runtime configuration for the reminder service.
type Config struct {
	Environment   string
	Addr          string
	DatabaseURL   string
	MigrationsDir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	ReminderSweepInterval time.Duration
	ShutdownTimeout       time.Duration
}

// Load constructs a Config from environment variables. An empty DATABASE_URL
// selects the in-memory store.
func Load() Config {
	return Config{
		Environment:           GetString("APP_ENV", "development"),
		Addr:                  GetString("API_ADDR", ":8080"),
		DatabaseURL:           GetString("DATABASE_URL", ""),
		MigrationsDir:         GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		RedisAddr:             GetString("REDIS_ADDR", ""),
		RedisPassword:         GetString("REDIS_PASSWORD", ""),
		RedisDB:               GetInt("REDIS_DB", 0),
		CacheTTL:              GetDuration("CACHE_TTL", 30*time.Second),
		ReminderSweepInterval: GetDuration("REMINDER_SWEEP_INTERVAL", time.Minute),
		ShutdownTimeout:       GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}
