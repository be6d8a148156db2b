package config

import (
	"context"
	"fmt"

	"cvperfect-server/internal/domain"
	"cvperfect-server/internal/infra/billing"
	"cvperfect-server/internal/infra/supabase"
	"cvperfect-server/internal/infra/vertex"
	"cvperfect-server/internal/repository"
	"cvperfect-server/internal/service"
	"cvperfect-server/pkg/logger"
)

// Container holds all application dependencies
type Container struct {
	Config             domain.Config
	Logger             domain.Logger
	SupabaseClient     domain.SupabaseClient
	UserRepository     domain.UserRepository
	PaymentLedger      domain.PaymentLedger
	PaymentGateway     domain.PaymentGateway
	TextGenerator      domain.TextGenerator
	CVTextExtractor    domain.CVTextExtractor
	EntitlementService domain.EntitlementService
	UsageService       domain.UsageService
	ExportService      domain.ExportService
	OptimizeService    domain.OptimizeService

	closers []func() error
}

// NewContainer creates a new dependency injection container. Every external
// client is built once here and shared by the handlers.
func NewContainer(ctx context.Context) (*Container, error) {
	config := NewConfig()
	appLogger := logger.NewLogger(config.GetLogLevel())

	// Initialize Supabase client
	supabaseClient := supabase.NewSupabaseClient(config, appLogger)
	if err := supabaseClient.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize supabase: %w", err)
	}

	userRepo := repository.NewSupabaseUserRepository(
		supabaseClient,
		appLogger,
		config.GetStorageRetryAttempts(),
		config.GetStorageRetryBackoff(),
	)

	paymentLedger := repository.NewSupabasePaymentRepository(
		supabaseClient,
		appLogger,
		config.GetStorageRetryAttempts(),
		config.GetStorageRetryBackoff(),
	)

	gateway := billing.NewStripeGateway(config, appLogger)
	extractor := service.NewCVTextExtractor(appLogger)
	usageService := service.NewUsageService(userRepo, appLogger)

	c := &Container{
		Config:             config,
		Logger:             appLogger,
		SupabaseClient:     supabaseClient,
		UserRepository:     userRepo,
		PaymentLedger:      paymentLedger,
		PaymentGateway:     gateway,
		CVTextExtractor:    extractor,
		EntitlementService: service.NewEntitlementService(userRepo, paymentLedger, gateway, appLogger),
		UsageService:       usageService,
		ExportService:      service.NewExportService(userRepo, appLogger),
	}

	// Optimization is optional: without Vertex credentials the rest of the
	// server still runs and /optimize answers 503.
	if config.GetGCPProjectID() == "" {
		appLogger.Warn("GCP_PROJECT_ID not set, optimization disabled")
		return c, nil
	}
	generator, err := vertex.NewGeminiGenerator(ctx, config, appLogger)
	if err != nil {
		appLogger.Error("Vertex AI unavailable, optimization disabled", err)
		return c, nil
	}
	c.TextGenerator = generator
	c.OptimizeService = service.NewOptimizeService(usageService, generator, extractor, appLogger)
	c.closers = append(c.closers, generator.Close)

	return c, nil
}

// Close releases clients that hold connections.
func (c *Container) Close() {
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			c.Logger.Error("Failed to close client", err)
		}
	}
}

// GetConfig returns the configuration instance
func (c *Container) GetConfig() domain.Config {
	return c.Config
}

// GetLogger returns the logger instance
func (c *Container) GetLogger() domain.Logger {
	return c.Logger
}

// GetSupabaseClient returns the Supabase client instance
func (c *Container) GetSupabaseClient() domain.SupabaseClient {
	return c.SupabaseClient
}

// GetUserRepository returns the user repository instance
func (c *Container) GetUserRepository() domain.UserRepository {
	return c.UserRepository
}
