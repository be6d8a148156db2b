package domain

import "time"

// Logger defines the interface for logging operations
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, err error, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
}

// Config defines the interface for configuration management
type Config interface {
	GetServerPort() string
	GetLogLevel() string
	GetMaxUploadSize() int64
	GetFrontendOrigin() string
	GetAdminSecret() string

	GetSupabaseURL() string
	GetSupabaseKey() string
	GetStorageRetryAttempts() int
	GetStorageRetryBackoff() time.Duration

	GetStripeSecretKey() string
	GetStripeWebhookSecret() string
	GetStripePriceID(plan PlanCode) string
	GetStripeTimeout() time.Duration

	GetGCPProjectID() string
	GetGCPLocation() string
	GetGoogleCredentialsFile() string
	GetGeminiModel() string
}
