package routes

import (
	"github.com/BradenHooton/loginserver/internal/auth"
	"github.com/BradenHooton/loginserver/internal/handlers"
	"github.com/BradenHooton/loginserver/internal/metrics"
	"github.com/BradenHooton/loginserver/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *auth.TokenManager,
	revocation auth.TokenRevocationChecker,
	rateLimitConfig middleware.RateLimitConfig,
) {
	router.Get("/health", healthHandler.Health)
	router.Handle("/metrics", metrics.Handler())

	// Public routes, limited per client IP
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/validate-token", authHandler.ValidateToken)
	})

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager, revocation))

		r.Post("/auth/logout", authHandler.Logout)
	})
}
