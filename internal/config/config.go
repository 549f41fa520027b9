package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        string
	Environment string

	// Database
	DatabaseURL string

	// Storage
	UploadDir   string
	MaxFileSize int64

	// Google OAuth
	GoogleClientID     string
	GoogleClientSecret string
	RedirectURI        string
	FrontendURL        string

	// Provider endpoints, overridable for tests and proxies
	GoogleAuthURL  string
	GoogleTokenURL string
	GoogleDriveURL string
	GoogleIssuer   string
	GoogleJWKSURL  string

	// Sessions
	SessionTTL         time.Duration
	TokenRefreshBuffer time.Duration
	OAuthStateTTL      time.Duration
	OAuthStateSecret   string

	// Provider call bounds
	ProviderTimeout time.Duration
	TransferTimeout time.Duration

	AuthRateLimitPerMinute int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", "5001"),
		Environment:            getEnv("ENVIRONMENT", "development"),
		DatabaseURL:            getEnv("DATABASE_URL", "sqlite://dataroom.db"),
		UploadDir:              getEnv("UPLOAD_DIR", "./uploads"),
		MaxFileSize:            int64(getEnvInt("MAX_FILE_SIZE_MB", 100)) * 1024 * 1024,
		GoogleClientID:         getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:     getEnv("GOOGLE_CLIENT_SECRET", ""),
		RedirectURI:            getEnv("REDIRECT_URI", "http://localhost:5001/auth/google/callback"),
		FrontendURL:            getEnv("FRONTEND_URL", "http://localhost:5173"),
		GoogleAuthURL:          getEnv("GOOGLE_AUTH_URL", "https://accounts.google.com/o/oauth2/auth"),
		GoogleTokenURL:         getEnv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		GoogleDriveURL:         getEnv("GOOGLE_DRIVE_URL", "https://www.googleapis.com/drive/v3"),
		GoogleIssuer:           getEnv("GOOGLE_ISSUER", "https://accounts.google.com"),
		GoogleJWKSURL:          getEnv("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs"),
		SessionTTL:             getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		TokenRefreshBuffer:     getEnvDuration("TOKEN_REFRESH_BUFFER", 5*time.Minute),
		OAuthStateTTL:          getEnvDuration("OAUTH_STATE_TTL", 10*time.Minute),
		OAuthStateSecret:       getEnv("OAUTH_STATE_SECRET", ""),
		ProviderTimeout:        getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
		TransferTimeout:        getEnvDuration("TRANSFER_TIMEOUT", 10*time.Minute),
		AuthRateLimitPerMinute: getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", ""),
	}

	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET environment variables are required")
	}

	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("MAX_FILE_SIZE_MB must be positive")
	}

	return cfg, nil
}

// IsDevelopment reports whether verbose, human-oriented output is wanted.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration syntax ("90s", "168h").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
