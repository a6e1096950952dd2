package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port      string
	AdminPort string
	Env       string
	LogLevel  string
	LogFormat string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	UseMemoryQueue       bool
	WorkerCount          int
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	IntegrationQueueURL  string
	IntegrationJobsTable string
	JobMaxAttempts       int
	JobRetryBaseDelay    time.Duration

	// Bot service. An empty URL disables the agent bot orchestrator.
	BotEndpointURL string
	BotTimeout     time.Duration

	// Identity service used for contact enrichment.
	EnrichmentEnabled   bool
	IdentityServiceURL  string
	IdentityNamespace   string
	IdentityTimeout     time.Duration
	IdentityPhonePrefix string
	EnrichmentClaimTTL  time.Duration
}

// LoadDotEnv reads a .env file into the process environment when one exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: load dotenv: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		AdminPort: getEnv("ADMIN_PORT", "9090"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 2),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		IntegrationQueueURL:  getEnv("INTEGRATION_QUEUE_URL", ""),
		IntegrationJobsTable: getEnv("INTEGRATION_JOBS_TABLE", "integration_jobs"),
		JobMaxAttempts:       getEnvAsInt("JOB_MAX_ATTEMPTS", 3),
		JobRetryBaseDelay:    getEnvAsDuration("JOB_RETRY_BASE_DELAY", 10*time.Second),

		BotEndpointURL: strings.TrimSpace(getEnv("BOT_ENDPOINT_URL", "")),
		BotTimeout:     getEnvAsDuration("BOT_TIMEOUT", 10*time.Second),

		EnrichmentEnabled:   getEnvAsBool("ENRICHMENT_ENABLED", true),
		IdentityServiceURL:  strings.TrimSpace(getEnv("IDENTITY_SERVICE_URL", "")),
		IdentityNamespace:   strings.TrimSpace(getEnv("IDENTITY_NAMESPACE", "")),
		IdentityTimeout:     getEnvAsDuration("IDENTITY_TIMEOUT", 10*time.Second),
		IdentityPhonePrefix: getEnv("IDENTITY_PHONE_PREFIX", "+91"),
		EnrichmentClaimTTL:  getEnvAsDuration("ENRICHMENT_CLAIM_TTL", 2*time.Minute),
	}
}

// IdentityHost returns the identity service base URL. An explicit URL wins;
// otherwise the in-cluster host is derived from the namespace.
func (c *Config) IdentityHost() string {
	if c == nil {
		return ""
	}
	if c.IdentityServiceURL != "" {
		return strings.TrimRight(c.IdentityServiceURL, "/")
	}
	if c.IdentityNamespace != "" {
		return "http://thor." + c.IdentityNamespace
	}
	return ""
}

// BotEnabled reports whether agent bot replies should be requested at all.
func (c *Config) BotEnabled() bool {
	return c != nil && c.BotEndpointURL != ""
}

// Validate reports configuration that would make the worker unusable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil config")
	}
	var problems []string
	if c.EnrichmentEnabled && c.IdentityHost() == "" {
		problems = append(problems, "IDENTITY_SERVICE_URL or IDENTITY_NAMESPACE is required when ENRICHMENT_ENABLED=true")
	}
	if !c.UseMemoryQueue && c.IntegrationQueueURL == "" {
		problems = append(problems, "INTEGRATION_QUEUE_URL is required unless USE_MEMORY_QUEUE=true")
	}
	if c.JobMaxAttempts < 1 {
		problems = append(problems, "JOB_MAX_ATTEMPTS must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
