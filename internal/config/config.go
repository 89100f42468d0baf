package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	Environment   string

	SessionTTL           time.Duration
	SessionPruneInterval time.Duration
	CookieSecure         bool

	// SecretCodeSeed lists the per-city bootstrap codes as
	// comma-separated "city:CODE" pairs, e.g. "pune:CLEAN_PUNE,mumbai:CLEAN_MUMBAI".
	SecretCodeSeed string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getenv("DATABASE_URL", ""),
		RedisAddr:            getenv("REDIS_ADDR", ""),
		RedisPassword:        getenv("REDIS_PASSWORD", ""),
		Environment:          getenv("ENVIRONMENT", "development"),
		SessionTTL:           getenvDuration("SESSION_TTL", 24*time.Hour),
		SessionPruneInterval: getenvDuration("SESSION_PRUNE_INTERVAL", 10*time.Minute),
		CookieSecure:         getenvBool("COOKIE_SECURE", false),
		SecretCodeSeed:       getenv("SECRET_CODE_SEED", ""),
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
