// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides Redis/asynq settings for background processing.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetMetricsAddr() string
}

// SequenceConfig provides tuning for the sequence automation engine.
type SequenceConfig interface {
	GetSequenceBatchLimit() int
	GetSequenceTickInterval() time.Duration
	GetSequenceClaimLease() time.Duration
	GetInactivitySweepInterval() time.Duration
	GetInactivityDays() int
	GetExternalCallTimeout() time.Duration
}

// MessagingConfig provides settings for AI message generation.
type MessagingConfig interface {
	GetAIProvider() string
	GetOpenAIAPIKey() string
	GetOpenAIModel() string
	GetGeminiAPIKey() string
	GetGeminiModel() string
	GetExternalCallTimeout() time.Duration
}

// WebhookConfig provides settings for the n8n automation endpoints.
type WebhookConfig interface {
	GetN8NWebhookSecret() string
}

// LeadIntakeConfig provides settings used when capturing new leads.
type LeadIntakeConfig interface {
	GetPhoneDefaultRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	DatabaseURL             string
	CORSAllowAll            bool
	CORSOrigins             []string
	CORSAllowCreds          bool
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	AsynqConcurrency        int
	MetricsAddr             string
	SequenceBatchLimit      int
	SequenceTickInterval    time.Duration
	SequenceClaimLease      time.Duration
	InactivitySweepInterval time.Duration
	InactivityDays          int
	ExternalCallTimeout     time.Duration
	AIProvider              string
	OpenAIAPIKey            string
	OpenAIModel             string
	GeminiAPIKey            string
	GeminiModel             string
	N8NWebhookSecret        string
	PhoneDefaultRegion      string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }
func (c *Config) GetMetricsAddr() string     { return c.MetricsAddr }

// SequenceConfig implementation
func (c *Config) GetSequenceBatchLimit() int                { return c.SequenceBatchLimit }
func (c *Config) GetSequenceTickInterval() time.Duration    { return c.SequenceTickInterval }
func (c *Config) GetSequenceClaimLease() time.Duration      { return c.SequenceClaimLease }
func (c *Config) GetInactivitySweepInterval() time.Duration { return c.InactivitySweepInterval }
func (c *Config) GetInactivityDays() int                    { return c.InactivityDays }
func (c *Config) GetExternalCallTimeout() time.Duration     { return c.ExternalCallTimeout }

// MessagingConfig implementation
func (c *Config) GetAIProvider() string   { return c.AIProvider }
func (c *Config) GetOpenAIAPIKey() string { return c.OpenAIAPIKey }
func (c *Config) GetOpenAIModel() string  { return c.OpenAIModel }
func (c *Config) GetGeminiAPIKey() string { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string  { return c.GeminiModel }

// WebhookConfig implementation
func (c *Config) GetN8NWebhookSecret() string { return c.N8NWebhookSecret }

// LeadIntakeConfig implementation
func (c *Config) GetPhoneDefaultRegion() string { return c.PhoneDefaultRegion }

// IsRedisEnabled reports whether background ticks should go through asynq.
func (c *Config) IsRedisEnabled() bool { return strings.TrimSpace(c.RedisURL) != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		CORSAllowAll:            corsAllowAll,
		CORSOrigins:             corsOrigins,
		CORSAllowCreds:          strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:        mustInt(getEnv("ASYNQ_CONCURRENCY", "4"), 4),
		MetricsAddr:             getEnv("SCHEDULER_METRICS_ADDR", ":9091"),
		SequenceBatchLimit:      mustInt(getEnv("SEQUENCE_BATCH_LIMIT", "100"), 100),
		SequenceTickInterval:    mustDuration(getEnv("SEQUENCE_TICK_INTERVAL", "5m"), 5*time.Minute),
		SequenceClaimLease:      mustDuration(getEnv("SEQUENCE_CLAIM_LEASE", "5m"), 5*time.Minute),
		InactivitySweepInterval: mustDuration(getEnv("INACTIVITY_SWEEP_INTERVAL", "1h"), time.Hour),
		InactivityDays:          mustInt(getEnv("INACTIVITY_DAYS", "7"), 7),
		ExternalCallTimeout:     mustDuration(getEnv("EXTERNAL_CALL_TIMEOUT", "10s"), 10*time.Second),
		AIProvider:              strings.ToLower(strings.TrimSpace(getEnv("AI_PROVIDER", "openai"))),
		OpenAIAPIKey:            getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		GeminiModel:             getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		N8NWebhookSecret:        getEnv("N8N_WEBHOOK_SECRET", ""),
		PhoneDefaultRegion:      strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "MX")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	switch cfg.AIProvider {
	case "openai", "gemini", "none":
	default:
		return nil, fmt.Errorf("AI_PROVIDER must be one of openai, gemini, none; got %q", cfg.AIProvider)
	}
	if cfg.SequenceBatchLimit < 1 {
		return nil, fmt.Errorf("SEQUENCE_BATCH_LIMIT must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func mustInt(value string, fallback int) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
