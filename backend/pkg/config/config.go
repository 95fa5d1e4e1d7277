package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	apperrors "warmintro/backend/pkg/errors"
)

// Company match modes
const (
	CompanyMatchExact      = "exact"
	CompanyMatchNormalized = "normalized"
)

// Path strength policies
const (
	PathStrengthExclude   = "exclude"
	PathStrengthZeroFill  = "zero_fill"
	PathStrengthKnowsOnly = "knows_only"
)

// Config holds all application configuration
type Config struct {
	// App
	Port     string
	Env      string
	LogLevel string

	// Neo4j
	Neo4jURI          string
	Neo4jUser         string
	Neo4jPassword     string
	Neo4jQueryTimeout time.Duration

	// Redis (optional, disables caching when empty)
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	IntentCacheTTL time.Duration

	// Job tracking store: postgres DSN or sqlite file path
	JobsDSN string

	// AI
	LiteLLMURL       string
	ModelID          string
	OpenRouterAPIKey string
	LLMTimeout       time.Duration

	// Graph engine policies
	PlaceholderDomainSuffix string
	CompanyMatchMode        string
	PathStrengthPolicy      string

	// Maintenance
	MaintenanceInterval    time.Duration
	MaintenanceConcurrency int
	// ServerScheduler runs maintenance inside the API server. Turn it off
	// when a `worker run` process owns the schedule.
	ServerScheduler bool
	EnrichmentConcurrency  int
	EnrichmentRPS          float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		LogLevel:                getEnv("LOG_LEVEL", ""),
		Neo4jURI:                getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:               getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:           getEnv("NEO4J_PASSWORD", "password"),
		Neo4jQueryTimeout:       getEnvDuration("NEO4J_QUERY_TIMEOUT", 15*time.Second),
		RedisAddr:               getEnv("REDIS_ADDR", ""),
		RedisPassword:           getEnv("REDIS_PASSWORD", ""),
		RedisDB:                 getEnvInt("REDIS_DB", 0),
		IntentCacheTTL:          getEnvDuration("INTENT_CACHE_TTL", time.Hour),
		JobsDSN:                 getEnv("JOBS_DSN", "warmintro_jobs.db"),
		LiteLLMURL:              getEnv("LITELLM_URL", "http://localhost:4000"),
		ModelID:                 getEnv("MODEL_ID", "openrouter/anthropic/claude-3.5-sonnet"),
		OpenRouterAPIKey:        getEnv("OPENROUTER_API_KEY", ""),
		LLMTimeout:              getEnvDuration("LLM_TIMEOUT", 8*time.Second),
		PlaceholderDomainSuffix: getEnv("PLACEHOLDER_DOMAIN_SUFFIX", ".placeholder"),
		CompanyMatchMode:        getEnv("COMPANY_MATCH_MODE", CompanyMatchExact),
		PathStrengthPolicy:      getEnv("PATH_STRENGTH_POLICY", PathStrengthExclude),
		MaintenanceInterval:     getEnvDuration("MAINTENANCE_INTERVAL", 24*time.Hour),
		MaintenanceConcurrency:  getEnvInt("MAINTENANCE_CONCURRENCY", 4),
		ServerScheduler:         getEnvBool("SERVER_SCHEDULER", true),
		EnrichmentConcurrency:   getEnvInt("ENRICHMENT_CONCURRENCY", 5),
		EnrichmentRPS:           getEnvFloat("ENRICHMENT_RPS", 2),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.Neo4jUser == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_USER")
	}
	if c.Neo4jPassword == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
	}
	if c.Neo4jQueryTimeout <= 0 {
		return apperrors.NewConfigValidationFailed("NEO4J_QUERY_TIMEOUT", "must be positive")
	}
	if c.LiteLLMURL == "" {
		return apperrors.NewConfigMissingRequired("LITELLM_URL")
	}
	if c.ModelID == "" {
		return apperrors.NewConfigMissingRequired("MODEL_ID")
	}
	if c.PlaceholderDomainSuffix == "" {
		return apperrors.NewConfigMissingRequired("PLACEHOLDER_DOMAIN_SUFFIX")
	}
	switch c.CompanyMatchMode {
	case CompanyMatchExact, CompanyMatchNormalized:
	default:
		return apperrors.NewConfigValidationFailed("COMPANY_MATCH_MODE", fmt.Sprintf("must be %q or %q, got %q", CompanyMatchExact, CompanyMatchNormalized, c.CompanyMatchMode))
	}
	switch c.PathStrengthPolicy {
	case PathStrengthExclude, PathStrengthZeroFill, PathStrengthKnowsOnly:
	default:
		return apperrors.NewConfigValidationFailed("PATH_STRENGTH_POLICY", fmt.Sprintf("%q is not supported", c.PathStrengthPolicy))
	}
	if c.MaintenanceConcurrency < 1 {
		return apperrors.NewConfigValidationFailed("MAINTENANCE_CONCURRENCY", "must be at least 1")
	}
	if c.EnrichmentConcurrency < 1 {
		return apperrors.NewConfigValidationFailed("ENRICHMENT_CONCURRENCY", "must be at least 1")
	}
	if c.EnrichmentRPS <= 0 {
		return apperrors.NewConfigValidationFailed("ENRICHMENT_RPS", "must be positive")
	}
	// OpenRouter key and Redis are optional for development
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// CacheEnabled reports whether a Redis address was configured
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
