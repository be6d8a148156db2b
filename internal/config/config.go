package config

import (
	"os"
	"strconv"
	"time"

	"cvperfect-server/internal/domain"
)

// AppConfig implements the domain.Config interface
type AppConfig struct {
	ServerPort     string
	LogLevel       string
	MaxUploadSize  int64
	FrontendOrigin string
	AdminSecret    string

	SupabaseURL          string
	SupabaseKey          string
	StorageRetryAttempts int
	StorageRetryBackoff  time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceIDs      map[domain.PlanCode]string
	StripeTimeout       time.Duration

	GCPProjectID          string
	GCPLocation           string
	GoogleCredentialsFile string
	GeminiModel           string
}

// NewConfig creates a new configuration instance with default values
func NewConfig() domain.Config {
	return &AppConfig{
		// Cloud Run (and many PaaS) provide the listening port via PORT.
		// Keep SERVER_PORT for local/dev compatibility.
		ServerPort:     getEnvOrDefault("PORT", getEnvOrDefault("SERVER_PORT", "8080")),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		MaxUploadSize:  getEnvInt64OrDefault("MAX_UPLOAD_SIZE", 10*1024*1024), // 10MB default
		FrontendOrigin: getEnvOrDefault("FRONTEND_ORIGIN", "http://localhost:3000"),
		AdminSecret:    getEnvOrDefault("ADMIN_API_SECRET", ""),

		SupabaseURL:          getEnvOrDefault("SUPABASE_URL", ""),
		SupabaseKey:          getEnvOrDefault("SUPABASE_SERVICE_ROLE_KEY", ""),
		StorageRetryAttempts: int(getEnvInt64OrDefault("STORAGE_RETRY_ATTEMPTS", 2)),
		StorageRetryBackoff:  getEnvDurationOrDefault("STORAGE_RETRY_BACKOFF", 200*time.Millisecond),

		StripeSecretKey:     getEnvOrDefault("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnvOrDefault("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceIDs: map[domain.PlanCode]string{
			domain.PlanBasic:   getEnvOrDefault("STRIPE_PRICE_BASIC", ""),
			domain.PlanGold:    getEnvOrDefault("STRIPE_PRICE_GOLD", ""),
			domain.PlanPro:     getEnvOrDefault("STRIPE_PRICE_PRO", ""),
			domain.PlanPremium: getEnvOrDefault("STRIPE_PRICE_PREMIUM", ""),
		},
		StripeTimeout: getEnvDurationOrDefault("STRIPE_TIMEOUT", 10*time.Second),

		GCPProjectID:          getEnvOrDefault("GCP_PROJECT_ID", ""),
		GCPLocation:           getEnvOrDefault("GCP_LOCATION", "us-central1"),
		GoogleCredentialsFile: getEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GeminiModel:           getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash-001"),
	}
}

// GetServerPort returns the server port
func (c *AppConfig) GetServerPort() string {
	return c.ServerPort
}

// GetLogLevel returns the logging level
func (c *AppConfig) GetLogLevel() string {
	return c.LogLevel
}

// GetMaxUploadSize returns the maximum accepted CV upload size
func (c *AppConfig) GetMaxUploadSize() int64 {
	return c.MaxUploadSize
}

// GetFrontendOrigin returns the origin allowed by CORS
func (c *AppConfig) GetFrontendOrigin() string {
	return c.FrontendOrigin
}

// GetAdminSecret returns the shared secret for admin endpoints
func (c *AppConfig) GetAdminSecret() string {
	return c.AdminSecret
}

// GetSupabaseURL returns the Supabase URL
func (c *AppConfig) GetSupabaseURL() string {
	return c.SupabaseURL
}

// GetSupabaseKey returns the Supabase service role key
func (c *AppConfig) GetSupabaseKey() string {
	return c.SupabaseKey
}

func (c *AppConfig) GetStorageRetryAttempts() int {
	if c.StorageRetryAttempts < 0 {
		return 0
	}
	return c.StorageRetryAttempts
}

func (c *AppConfig) GetStorageRetryBackoff() time.Duration {
	return c.StorageRetryBackoff
}

func (c *AppConfig) GetStripeSecretKey() string {
	return c.StripeSecretKey
}

func (c *AppConfig) GetStripeWebhookSecret() string {
	return c.StripeWebhookSecret
}

// GetStripePriceID returns the Stripe price configured for a plan, or "".
func (c *AppConfig) GetStripePriceID(plan domain.PlanCode) string {
	return c.StripePriceIDs[plan]
}

// GetStripeTimeout bounds every call to the Stripe API
func (c *AppConfig) GetStripeTimeout() time.Duration {
	return c.StripeTimeout
}

func (c *AppConfig) GetGCPProjectID() string {
	return c.GCPProjectID
}

func (c *AppConfig) GetGCPLocation() string {
	return c.GCPLocation
}

func (c *AppConfig) GetGoogleCredentialsFile() string {
	return c.GoogleCredentialsFile
}

func (c *AppConfig) GetGeminiModel() string {
	return c.GeminiModel
}

// Helper functions for environment variable handling
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
