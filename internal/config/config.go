package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	App      AppConfig
	Stripe   StripeConfig
	Billing  BillingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// AppConfig holds application configuration
type AppConfig struct {
	Environment string
	LogLevel    string
}

// StripeConfig holds payment processor configuration
type StripeConfig struct {
	SecretKey      string
	PublishableKey string
}

// BillingConfig holds subscription billing behavior configuration
type BillingConfig struct {
	// GraceDays is how long a canceled business keeps serving before it is
	// moved to pending_deletion.
	GraceDays int
	// DefaultCurrency is the ISO currency code used for payment intents.
	DefaultCurrency string
	// SessionTTLHours is how long an idle registration session is kept.
	SessionTTLHours int
	// SweepIntervalMins is how often the grace-window sweep runs.
	SweepIntervalMins int
}

// New creates a new configuration instance
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnvWithDefault("SERVER_HOST", "0.0.0.0"),
			Port: getEnvWithDefault("SERVER_PORT", "8086"),
		},
		Database: DatabaseConfig{
			Host:     getEnvWithDefault("DB_HOST", "localhost"),
			Port:     getEnvWithDefault("DB_PORT", "5432"),
			User:     getEnvWithDefault("DB_USER", "postgres"),
			Password: getEnvWithDefault("DB_PASSWORD", "postgres"),
			Name:     getEnvWithDefault("DB_NAME", "registration_db"),
			SSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnvWithDefault("REDIS_HOST", "localhost"),
			Port:     getEnvWithDefault("REDIS_PORT", "6379"),
			Password: getEnvWithDefault("REDIS_PASSWORD", ""),
			DB:       getEnvAsIntWithDefault("REDIS_DB", 0),
		},
		App: AppConfig{
			Environment: getEnvWithDefault("APP_ENV", "development"),
			LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		},
		Stripe: StripeConfig{
			SecretKey:      getEnvWithDefault("STRIPE_SECRET_KEY", ""),
			PublishableKey: getEnvWithDefault("STRIPE_PUBLISHABLE_KEY", ""),
		},
		Billing: BillingConfig{
			GraceDays:         getEnvAsIntWithDefault("BILLING_GRACE_DAYS", 30),
			DefaultCurrency:   getEnvWithDefault("BILLING_CURRENCY", "eur"),
			SessionTTLHours:   getEnvAsIntWithDefault("SESSION_TTL_HOURS", 48),
			SweepIntervalMins: getEnvAsIntWithDefault("SWEEP_INTERVAL_MINS", 60),
		},
	}
}

// getEnvWithDefault gets environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntWithDefault gets environment variable as integer with default fallback
func getEnvAsIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
