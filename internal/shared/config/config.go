package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the gateway
type Config struct {
	// Server
	Port string
	Env  string

	// Directory (PostgreSQL)
	DatabaseURL string

	// Shared counter store (Redis)
	RedisURL string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Providers
	OpenAIAPIKey    string
	ProviderTimeout time.Duration

	// Policy cache
	PolicyCacheTTL time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:       getEnv("JWT_SECRET_KEY", ""),
		TokenTTL:        time.Duration(getEnvInt("TOKEN_TTL_MINUTES", 30)) * time.Minute,
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		ProviderTimeout: time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 60)) * time.Second,
		PolicyCacheTTL:  time.Duration(getEnvInt("POLICY_CACHE_TTL_SECONDS", 300)) * time.Second,
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY is required")
	}

	return cfg, nil
}

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
