package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/cardguard/internal/auth"
	"github.com/BradenHooton/cardguard/internal/handlers"
	"github.com/BradenHooton/cardguard/internal/middleware"
	"github.com/BradenHooton/cardguard/internal/models"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	guard *middleware.RedemptionGuard,
	redemptionHandler *handlers.RedemptionHandler,
	fraudLogHandler *handlers.FraudLogHandler,
	cardHandler *handlers.CardHandler,
	tokenManager *auth.TokenManager,
) {
	// Public redemption endpoints behind the fraud guard chain. Order
	// matters: payload integrity, then rate limit, then replay guard.
	router.Group(func(r chi.Router) {
		r.Use(guard.ParsePayload)
		r.Use(guard.RateLimit)
		r.Use(guard.ReplayGuard)

		r.Post("/redemptions", redemptionHandler.Redeem)
		r.Post("/redemptions/check", redemptionHandler.Check)
	})

	// Dashboard routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))

		r.Get("/fraud/logs", fraudLogHandler.GetLogs)
		r.Get("/cards/{gan}", cardHandler.GetByGAN)
		r.Get("/cards/{gan}/redemptions", cardHandler.GetRedemptions)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Get("/fraud/stats", fraudLogHandler.GetStats)
		})
	})
}
