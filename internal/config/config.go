package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at startup and injected into every component.
type Config struct {
	// Server
	ServerPort int
	LogLevel   string

	// Database
	DatabaseURL string

	// Pipeline
	ResourcePrefix       string
	EventBusName         string
	FeedConsumer         string
	FeedPollInterval     time.Duration
	FeedBatchSize        int
	BusPollInterval      time.Duration
	BusBatchSize         int
	BusVisibilityTimeout time.Duration
	BusMaxAttempts       int
	CallTimeout          time.Duration
	HandlerTimeout       time.Duration

	// Cloud
	AWSRegion      string
	AWSEndpointURL string
	// SandboxMode skips calls the local emulator does not support (retention
	// policies). It is set explicitly and never derived from AWSEndpointURL.
	SandboxMode bool

	// Federation
	DefaultCredentialDuration time.Duration
	FederationEndpoint        string
	FederationIssuer          string
	ConsoleDestination        string

	// API
	AdminAPIKey    string
	RateLimitRPS   float64
	RateLimitBurst int
}

// LoadEnv reads the .env file specified by TENANTOPS_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
func LoadEnv() {
	envFile := os.Getenv("TENANTOPS_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the process environment still applies.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")
}

// Load loads the env files and builds a validated Config from the environment.
func Load() (*Config, error) {
	LoadEnv()
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		ResourcePrefix:       getEnv("RESOURCE_PREFIX", "tenantops"),
		EventBusName:         getEnv("EVENT_BUS_NAME", "tenant-lifecycle"),
		FeedConsumer:         getEnv("FEED_CONSUMER", "classifier"),
		FeedPollInterval:     getEnvDuration("FEED_POLL_INTERVAL", time.Second),
		FeedBatchSize:        getEnvInt("FEED_BATCH_SIZE", 100),
		BusPollInterval:      getEnvDuration("BUS_POLL_INTERVAL", time.Second),
		BusBatchSize:         getEnvInt("BUS_BATCH_SIZE", 10),
		BusVisibilityTimeout: getEnvDuration("BUS_VISIBILITY_TIMEOUT", 2*time.Minute),
		BusMaxAttempts:       getEnvInt("BUS_MAX_ATTEMPTS", 8),
		CallTimeout:          getEnvDuration("CALL_TIMEOUT", 10*time.Second),
		HandlerTimeout:       getEnvDuration("HANDLER_TIMEOUT", time.Minute),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		SandboxMode:    getEnvBool("SANDBOX_MODE", false),

		DefaultCredentialDuration: getEnvDuration("DEFAULT_CREDENTIAL_DURATION", time.Hour),
		FederationEndpoint:        getEnv("FEDERATION_ENDPOINT", "https://signin.aws.amazon.com/federation"),
		FederationIssuer:          getEnv("FEDERATION_ISSUER", "tenantops"),
		ConsoleDestination:        getEnv("CONSOLE_DESTINATION", "https://console.aws.amazon.com/"),

		AdminAPIKey:    getEnv("ADMIN_API_KEY", ""),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.AdminAPIKey == "" {
		return fmt.Errorf("ADMIN_API_KEY is required")
	}
	if c.ResourcePrefix == "" {
		return fmt.Errorf("RESOURCE_PREFIX must not be empty")
	}
	if c.EventBusName == "" {
		return fmt.Errorf("EVENT_BUS_NAME must not be empty")
	}
	if c.FeedBatchSize <= 0 || c.BusBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if c.BusMaxAttempts <= 0 {
		return fmt.Errorf("BUS_MAX_ATTEMPTS must be positive")
	}
	if c.DefaultCredentialDuration < 15*time.Minute || c.DefaultCredentialDuration > 12*time.Hour {
		return fmt.Errorf("DEFAULT_CREDENTIAL_DURATION must be between 15m and 12h, got %s", c.DefaultCredentialDuration)
	}
	return nil
}

func (c *Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
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
