package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Appointments backend
	BackendURL         string
	BackendTimeout     time.Duration
	BackendListTimeout time.Duration
	BackendSyncTimeout time.Duration
	BackendListLimit   int
	SyncSettleDelay    time.Duration
	ClinicTimezone     string

	// Sessions
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	SessionSecret      string
	SessionTTL         time.Duration
	SessionRememberTTL time.Duration
	StaffDirectoryJSON string

	// HTTP facade
	CORSAllowedOrigins []string
	LoginRateLimit     float64
	LoginRateBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BackendURL:         getEnv("BACKEND_URL", "http://localhost:8000"),
		BackendTimeout:     getEnvAsDuration("BACKEND_TIMEOUT", 10*time.Second),
		BackendListTimeout: getEnvAsDuration("BACKEND_LIST_TIMEOUT", 20*time.Second),
		BackendSyncTimeout: getEnvAsDuration("BACKEND_SYNC_TIMEOUT", 30*time.Second),
		BackendListLimit:   getEnvAsInt("BACKEND_LIST_LIMIT", 5000),
		SyncSettleDelay:    getEnvAsDuration("SYNC_SETTLE_DELAY", time.Second),
		ClinicTimezone:     getEnv("CLINIC_TIMEZONE", "Europe/Madrid"),

		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SessionTTL:         getEnvAsDuration("SESSION_TTL", 12*time.Hour),
		SessionRememberTTL: getEnvAsDuration("SESSION_REMEMBER_TTL", 30*24*time.Hour),
		StaffDirectoryJSON: getEnv("STAFF_DIRECTORY_JSON", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		LoginRateLimit:     getEnvAsFloat("LOGIN_RATE_LIMIT", 0.2),
		LoginRateBurst:     getEnvAsInt("LOGIN_RATE_BURST", 5),
	}
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BackendURL) == "" {
		errs = append(errs, errors.New("BACKEND_URL is required"))
	}
	if c.SessionSecret == "" && c.IsProduction() {
		errs = append(errs, errors.New("SESSION_SECRET is required in production"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location is the clinic's time zone, used to pick "today".
func (c *Config) Location() (*time.Location, error) {
	if c.ClinicTimezone == "" || strings.EqualFold(c.ClinicTimezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
