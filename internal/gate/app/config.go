package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Host string // Required: the domain the gate runs against, used for entitlement matching

	ProfileURL  string // Optional: identity profile endpoint (session stays unauthenticated without it)
	RefreshURL  string // Optional: token refresh endpoint (no refresh without it)
	LicenseURL  string // Optional: license document URL (GET)
	ValidateURL string // Optional: precomputed validation endpoint (POST), used when LicenseURL is unset
	LicenseFile string // Optional: local license document file, takes precedence over both URLs

	StorageMode  string // Optional: storage mode (ephemeral, persistent) (default: persistent)
	DatabaseFile string // Optional: path to SQLite database file (default: ./gate.db)
	SecretFile   string // Optional: path to the installation secret used to seal credentials at rest (default: ./gate.secret)

	ExtractAttempts   int           // Optional: extraction attempts per cycle (default: 5)
	ExtractRetryDelay time.Duration // Optional: delay between extraction attempts (default: 2s)
	StaleThreshold    time.Duration // Optional: pre-expiry refresh window (default: 5m)
	DefaultLifetime   time.Duration // Optional: assumed credential lifetime when no expiry is known (default: 1h)

	SessionTimeout       time.Duration // Optional: session idle timeout (default: 30m)
	SessionCheckInterval time.Duration // Optional: proactive expiry check cadence (default: 60s)

	RevalidateInterval time.Duration // Optional: entitlement revalidation cadence (default: 24h)
	DocumentTTL        time.Duration // Optional: license document reuse window (default: 1h)
	RenewalWarningDays int           // Optional: renewal warning window in days (default: 30)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8321)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	cfg := Config{
		Host: os.Getenv("GATE_HOST"),

		ProfileURL:  os.Getenv("GATE_PROFILE_URL"),
		RefreshURL:  os.Getenv("GATE_REFRESH_URL"),
		LicenseURL:  os.Getenv("GATE_LICENSE_URL"),
		ValidateURL: os.Getenv("GATE_VALIDATE_URL"),
		LicenseFile: os.Getenv("GATE_LICENSE_FILE"),

		StorageMode:  getEnvOrDefault("GATE_STORAGE_MODE", "persistent"),
		DatabaseFile: getEnvOrDefault("GATE_DATABASE_FILE", "gate.db"),
		SecretFile:   getEnvOrDefault("GATE_SECRET_FILE", "gate.secret"),

		ExtractAttempts:   getEnvIntOrDefault("GATE_EXTRACT_ATTEMPTS", 5),
		ExtractRetryDelay: getEnvDurationOrDefault("GATE_EXTRACT_RETRY_DELAY", 2*time.Second),
		StaleThreshold:    getEnvDurationOrDefault("GATE_STALE_THRESHOLD", 5*time.Minute),
		DefaultLifetime:   getEnvDurationOrDefault("GATE_DEFAULT_LIFETIME", time.Hour),

		SessionTimeout:       getEnvDurationOrDefault("GATE_SESSION_TIMEOUT", 30*time.Minute),
		SessionCheckInterval: getEnvDurationOrDefault("GATE_SESSION_CHECK_INTERVAL", time.Minute),

		RevalidateInterval: getEnvDurationOrDefault("GATE_REVALIDATE_INTERVAL", 24*time.Hour),
		DocumentTTL:        getEnvDurationOrDefault("GATE_DOCUMENT_TTL", time.Hour),
		RenewalWarningDays: getEnvIntOrDefault("GATE_RENEWAL_WARNING_DAYS", 30),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8321),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	if cfg.Host == "" {
		cfg.Host = "localhost"
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
