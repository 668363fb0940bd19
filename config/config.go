package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL          string
	Port                 string
	GoEnv                string
	Auth0Domain          string
	Auth0Audience        string
	AWSRegion            string
	AWSS3Bucket          string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	LogLevel             string
	ResendAPIKey         string
	MailFrom             string
	LabNotifyEmail       string
	DisplayTimezone      string
	BoardRefreshInterval time.Duration
	PublicRateLimit      float64
	PublicRateBurst      int
	CORSAllowedOrigins   []string
}

var (
	current   *Config
	currentMu sync.RWMutex
)

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	// Determine which environment file to load
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Try to load environment-specific file first
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		// In production environment variables are set directly
		if err := godotenv.Load(); err != nil {
			log.Info().Msg("No .env file found, using system environment variables")
		}
	} else {
		log.Info().Str("file", envFile).Msg("Loaded configuration")
	}

	config := &Config{
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		Port:                 getEnv("PORT", "8080"),
		GoEnv:                getEnv("GO_ENV", "development"),
		Auth0Domain:          getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience:        getEnv("AUTH0_AUDIENCE", ""),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSS3Bucket:          getEnv("AWS_S3_BUCKET", ""),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		ResendAPIKey:         getEnv("RESEND_API_KEY", ""),
		MailFrom:             getEnv("MAIL_FROM", "DentalFlow <noreply@dentalflow.app>"),
		LabNotifyEmail:       getEnv("LAB_NOTIFY_EMAIL", ""),
		DisplayTimezone:      getEnv("DISPLAY_TIMEZONE", "America/Guatemala"),
		BoardRefreshInterval: getEnvDuration("BOARD_REFRESH_INTERVAL", 60*time.Second),
		PublicRateLimit:      getEnvFloat("PUBLIC_RATE_LIMIT", 0.2),
		PublicRateBurst:      getEnvInt("PUBLIC_RATE_BURST", 5),
		CORSAllowedOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	SetConfig(config)
	return config, nil
}

// GetConfig returns the loaded configuration, or nil before Load
func GetConfig() *Config {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

// SetConfig replaces the process configuration (used in tests)
func SetConfig(c *Config) {
	currentMu.Lock()
	defer currentMu.Unlock()
	current = c
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		return fmt.Errorf("DISPLAY_TIMEZONE %q is invalid: %w", c.DisplayTimezone, err)
	}
	if c.BoardRefreshInterval <= 0 {
		return fmt.Errorf("BOARD_REFRESH_INTERVAL must be positive")
	}
	return nil
}

// Location returns the display timezone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// GetDatabaseURL returns the database URL
func (c *Config) GetDatabaseURL() string {
	return c.DatabaseURL
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid duration, using default")
		return defaultValue
	}
	return d
}

func getEnvFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid number, using default")
		return defaultValue
	}
	return f
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid integer, using default")
		return defaultValue
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
