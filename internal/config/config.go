// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Port string

	// Completion provider
	OpenAIBaseURL string
	OpenAIAPIKey  string
	DefaultModel  string
	ImageModel    string
	ProviderRPS   float64
	ProviderBurst int
	ImageRPS      float64
	ImageBurst    int

	// Persistence
	BadgerPath  string
	AuditDBPath string

	// Memory layer stores
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	DgraphAlphaURL string

	// History summarization
	HistoryTurnBudget int
	HistoryKeepTurns  int

	DispatchTimeout time.Duration
}

// Load reads configuration from a .env file (if present) and the
// environment. Environment variables win over the file.
func Load() (*Config, error) {
	// Missing .env is not an error; deployments set real env vars.
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		DefaultModel:      getEnv("DEFAULT_MODEL", "gpt-4o-mini"),
		ImageModel:        getEnv("IMAGE_MODEL", "dall-e-3"),
		ProviderRPS:       getEnvFloat("PROVIDER_RPS", 2),
		ProviderBurst:     getEnvInt("PROVIDER_BURST", 4),
		ImageRPS:          getEnvFloat("IMAGE_RPS", 0.5),
		ImageBurst:        getEnvInt("IMAGE_BURST", 1),
		BadgerPath:        getEnv("BADGER_PATH", "./data/badger"),
		AuditDBPath:       getEnv("AUDIT_DB_PATH", "./data/audit.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		DgraphAlphaURL:    getEnv("DGRAPH_ALPHA_URL", ""),
		HistoryTurnBudget: getEnvInt("HISTORY_TURN_BUDGET", 30),
		HistoryKeepTurns:  getEnvInt("HISTORY_KEEP_TURNS", 10),
		DispatchTimeout:   getEnvDuration("DISPATCH_TIMEOUT", 5*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.BadgerPath == "" {
		return fmt.Errorf("BADGER_PATH cannot be empty")
	}
	if c.DefaultModel == "" {
		return fmt.Errorf("DEFAULT_MODEL cannot be empty")
	}
	if c.HistoryTurnBudget <= 0 || c.HistoryKeepTurns <= 0 {
		return fmt.Errorf("history budgets must be > 0")
	}
	if c.HistoryKeepTurns >= c.HistoryTurnBudget {
		return fmt.Errorf("HISTORY_KEEP_TURNS must be below HISTORY_TURN_BUDGET")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
