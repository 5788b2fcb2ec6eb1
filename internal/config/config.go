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
	ServerPort  string
	BaseURL     string
	FrontendURL string
	DebugMode   bool

	// Identity provider
	Auth0Domain         string
	APIIdentifier       string
	JWKSCacheTTL        time.Duration
	JWKSRefreshInterval time.Duration
	TokenClockSkew      time.Duration

	// Delegated mailbox
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GmailTokenFile     string

	// Hosted models
	OpenAIKey          string
	OpenAIBaseURL      string
	TranslationModel   string
	GoogleSpeechAPIKey string
	FFmpegPath         string
	SphinxPath         string

	DatabaseURL      string
	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int

	CORSAllowedOrigins []string
	MaxUploadBytes     int64
	RequestTimeout     time.Duration
	UpstreamTimeout    time.Duration

	OTELEnabled  bool
	OTELEndpoint string
}

// Load loads configuration from the environment. A .env file in the working
// directory is read first if present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "5000"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:5000"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		DebugMode:   getEnvBool("DEBUG", false),

		Auth0Domain:         getEnv("AUTH0_DOMAIN", ""),
		APIIdentifier:       getEnv("API_IDENTIFIER", ""),
		JWKSCacheTTL:        getEnvDuration("JWKS_CACHE_TTL", 24*time.Hour),
		JWKSRefreshInterval: getEnvDuration("JWKS_REFRESH_INTERVAL", time.Minute),
		TokenClockSkew:      getEnvDuration("TOKEN_CLOCK_SKEW", 30*time.Second),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:5000/oauth2/callback"),
		GmailTokenFile:     getEnv("GMAIL_TOKEN_FILE", "token.json"),

		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		TranslationModel:   getEnv("TRANSLATION_MODEL", "gpt-4o-mini"),
		GoogleSpeechAPIKey: getEnv("GOOGLE_SPEECH_API_KEY", ""),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		SphinxPath:         getEnv("SPHINX_PATH", "pocketsphinx"),

		DatabaseURL:      getEnv("DATABASE_URL", "sqlite://users.db"),
		RedisURL:         getEnv("REDIS_URL", ""),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 25<<20)),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 2*time.Minute),
		UpstreamTimeout:    getEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second),

		OTELEnabled:  getEnvBool("ENABLE_OTEL", false),
		OTELEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required settings are present
func (c *Config) Validate() error {
	if c.Auth0Domain == "" {
		return fmt.Errorf("AUTH0_DOMAIN is required")
	}
	if c.APIIdentifier == "" {
		return fmt.Errorf("API_IDENTIFIER is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// Issuer returns the expected token issuer for the configured Auth0 tenant
func (c *Config) Issuer() string {
	return "https://" + strings.TrimSuffix(c.Auth0Domain, "/") + "/"
}

// JWKSURL returns the tenant's published key set location
func (c *Config) JWKSURL() string {
	return c.Issuer() + ".well-known/jwks.json"
}

// MailEnabled reports whether Google OAuth client credentials are configured
func (c *Config) MailEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// AsyncJobsEnabled reports whether the queue and job store are both configured
func (c *Config) AsyncJobsEnabled() bool {
	return c.RabbitMQURL != "" && c.RedisURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
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

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
