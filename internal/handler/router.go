package handler

import (
	"net/http"

	"cvperfect-server/internal/config"
	"cvperfect-server/internal/domain"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(container *config.Container) http.Handler {
	router := mux.NewRouter()
	router.Use(RequestLogger(container.Logger))
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// API prefix
	api := router.PathPrefix("/api/v1").Subrouter()
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// Health check endpoint (no auth required)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"cvperfect-server"}`))
	}).Methods("GET")

	// Initialize handlers
	billingHandler := NewBillingHandler(container, container.Logger)
	usageHandler := NewUsageHandler(container, container.Logger)
	cvHandler := NewCVHandler(container, container.Logger)
	adminHandler := NewAdminHandler(container, container.Logger)

	// Billing routes
	api.HandleFunc("/checkout", billingHandler.CreateCheckout).Methods("POST")
	api.HandleFunc("/stripe/webhook", billingHandler.StripeWebhook).Methods("POST")
	api.HandleFunc("/users/from-session", billingHandler.ProvisionFromSession).Methods("POST")
	api.HandleFunc("/users/entitlement", billingHandler.GetEntitlement).Methods("GET")

	// Usage routes
	api.HandleFunc("/usage/authorize", usageHandler.Authorize).Methods("POST")
	api.HandleFunc("/usage/commit", usageHandler.Commit).Methods("POST")
	api.HandleFunc("/export", usageHandler.Export).Methods("POST")

	// CV routes
	api.HandleFunc("/cv/parse", cvHandler.ParseCV).Methods("POST")
	api.HandleFunc("/optimize", cvHandler.Optimize).Methods("POST")

	// Admin routes (require X-Admin-Secret)
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(AdminMiddleware(container.Config.GetAdminSecret(), container.Logger))
	admin.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	admin.HandleFunc("/users", adminHandler.ListUsers).Methods("GET")
	admin.HandleFunc("/users/reset-usage", adminHandler.ResetUsage).Methods("POST")

	// Configure CORS
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins(container.Config),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Admin-Secret",
			"X-Request-ID",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
		},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	})

	return c.Handler(router)
}

// allowedOrigins lists the browser origins served by the API. Checkout
// redirects only ever point back at one of them.
func allowedOrigins(cfg domain.Config) []string {
	return []string{
		cfg.GetFrontendOrigin(),
		"http://localhost:3000", // Next.js dev server
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
