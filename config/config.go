package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds application configuration
type Config struct {
	// HTTP API
	APIPort int

	// Salla platform endpoints
	SallaAPIBaseURL   string
	SallaTokenURL     string
	SallaSearchURL    string
	SallaClientID     string
	SallaClientSecret string

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Optimizer configuration
	Optimizer OptimizerConfig
}

// OptimizerConfig holds scheduling, safety-control, and pricing parameters
type OptimizerConfig struct {
	// Scheduling
	WorkerCount       int
	QueueSize         int
	CadenceSweepEvery time.Duration
	BatchSweepEvery   time.Duration
	TokenSweepEvery   time.Duration
	RetentionEvery    time.Duration
	MaxRunDuration    time.Duration
	LeaseTTL          time.Duration

	// Token refresh
	TokenRefreshHorizon time.Duration

	// Circuit breaker
	BreakerFailureThreshold int
	BreakerFailureWindow    time.Duration
	BreakerRecoveryTimeout  time.Duration

	// Rate limiter
	MinCallInterval time.Duration
	MaxRateWait     time.Duration

	// Retries
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCeiling time.Duration

	// Pricing thresholds
	MinConfidence     float64
	UndercutDecrement float64
	PremiumFactor     float64
	HealthyMarginPct  float64
	SmallChangePct    float64
	LargeChangePct    float64

	// Data retention
	LogRetentionDays   int
	QuoteRetentionDays int
	RunRetentionDays   int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	return &Config{
		APIPort: getEnvInt("API_PORT", 8080),

		SallaAPIBaseURL:   getEnvOrDefault("SALLA_API_BASE_URL", "https://api.salla.dev/admin/v2"),
		SallaTokenURL:     getEnvOrDefault("SALLA_TOKEN_URL", "https://accounts.salla.sa/oauth2/token"),
		SallaSearchURL:    getEnvOrDefault("SALLA_SEARCH_URL", "https://api.salla.sa/store/v1/products/search"),
		SallaClientID:     os.Getenv("SALLA_CLIENT_ID"),
		SallaClientSecret: os.Getenv("SALLA_CLIENT_SECRET"),

		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "salla_repricer"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "repricer"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "repricer123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		Optimizer: OptimizerConfig{
			WorkerCount:       getEnvInt("OPTIMIZER_WORKERS", 4),
			QueueSize:         getEnvInt("OPTIMIZER_QUEUE_SIZE", 256),
			CadenceSweepEvery: getEnvDuration("OPTIMIZER_CADENCE_SWEEP", time.Hour),
			BatchSweepEvery:   getEnvDuration("OPTIMIZER_BATCH_SWEEP", 6*time.Hour),
			TokenSweepEvery:   getEnvDuration("OPTIMIZER_TOKEN_SWEEP", 12*time.Hour),
			RetentionEvery:    getEnvDuration("OPTIMIZER_RETENTION_SWEEP", 24*time.Hour),
			MaxRunDuration:    getEnvDuration("OPTIMIZER_MAX_RUN_DURATION", 30*time.Minute),
			LeaseTTL:          getEnvDuration("OPTIMIZER_LEASE_TTL", 45*time.Minute),

			TokenRefreshHorizon: getEnvDuration("TOKEN_REFRESH_HORIZON", 24*time.Hour),

			BreakerFailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
			BreakerFailureWindow:    getEnvDuration("BREAKER_FAILURE_WINDOW", time.Minute),
			BreakerRecoveryTimeout:  getEnvDuration("BREAKER_RECOVERY_TIMEOUT", 30*time.Second),

			MinCallInterval: getEnvDuration("RATE_MIN_CALL_INTERVAL", time.Second),
			MaxRateWait:     getEnvDuration("RATE_MAX_WAIT", 30*time.Second),

			MaxAttempts:    getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			BackoffBase:    getEnvDuration("RETRY_BACKOFF_BASE", 500*time.Millisecond),
			BackoffCeiling: getEnvDuration("RETRY_BACKOFF_CEILING", 15*time.Second),

			MinConfidence:     getEnvFloat("PRICING_MIN_CONFIDENCE", 0.5),
			UndercutDecrement: getEnvFloat("PRICING_UNDERCUT_DECREMENT", 2.0),
			PremiumFactor:     getEnvFloat("PRICING_PREMIUM_FACTOR", 1.05),
			HealthyMarginPct:  getEnvFloat("PRICING_HEALTHY_MARGIN_PCT", 20.0),
			SmallChangePct:    getEnvFloat("PRICING_SMALL_CHANGE_PCT", 10.0),
			LargeChangePct:    getEnvFloat("PRICING_LARGE_CHANGE_PCT", 20.0),

			LogRetentionDays:   getEnvInt("RETENTION_LOG_DAYS", 90),
			QuoteRetentionDays: getEnvInt("RETENTION_QUOTE_DAYS", 30),
			RunRetentionDays:   getEnvInt("RETENTION_RUN_DAYS", 60),
		},
	}
}

// Validate checks required policy fields. A misconfigured optimizer must
// refuse to start rather than make pricing calls with nonsense thresholds.
func (c *Config) Validate() error {
	o := c.Optimizer
	if o.WorkerCount <= 0 {
		return fmt.Errorf("config: OPTIMIZER_WORKERS must be > 0, got %d", o.WorkerCount)
	}
	if o.BreakerFailureThreshold <= 0 {
		return fmt.Errorf("config: BREAKER_FAILURE_THRESHOLD must be > 0, got %d", o.BreakerFailureThreshold)
	}
	if o.MaxAttempts <= 0 {
		return fmt.Errorf("config: RETRY_MAX_ATTEMPTS must be > 0, got %d", o.MaxAttempts)
	}
	if o.LeaseTTL <= o.MaxRunDuration {
		return fmt.Errorf("config: OPTIMIZER_LEASE_TTL (%s) must exceed OPTIMIZER_MAX_RUN_DURATION (%s)", o.LeaseTTL, o.MaxRunDuration)
	}
	if o.MinConfidence < 0 || o.MinConfidence > 1 {
		return fmt.Errorf("config: PRICING_MIN_CONFIDENCE must be within [0,1], got %.2f", o.MinConfidence)
	}
	if o.PremiumFactor < 1 {
		return fmt.Errorf("config: PRICING_PREMIUM_FACTOR must be >= 1, got %.2f", o.PremiumFactor)
	}
	if o.UndercutDecrement < 0 {
		return fmt.Errorf("config: PRICING_UNDERCUT_DECREMENT must be >= 0, got %.2f", o.UndercutDecrement)
	}
	return nil
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvDuration gets environment variable as time.Duration or returns default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
