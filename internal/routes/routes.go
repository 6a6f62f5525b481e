package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Deps are the handlers and guards mounted by RegisterRoutes
type Deps struct {
	Auth          *handlers.AuthHandler
	Health        *handlers.HealthHandler
	Authenticator auth.Authenticator
	// AdminProxy is nil when no backend is configured.
	AdminProxy http.Handler
	// AuthRateLimit throttles the unauthenticated /auth/* endpoints per client IP.
	AuthRateLimit middleware.RateLimitConfig
	// AdminRateLimit throttles relayed calls per admin.
	AdminRateLimit middleware.RateLimitConfig
	Logger         *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, d Deps) {
	router.Get("/health", d.Health.Health)

	// Public routes - each step of the login protocol
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(d.AuthRateLimit))
		r.Post("/auth/login", d.Auth.Login)
		r.Post("/auth/totp/verify", d.Auth.VerifyTOTP)
		r.Post("/auth/hardware-key/verify", d.Auth.VerifyHardwareKey)
	})

	// Protected routes - a completed triple-factor session is required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAdminSession(d.Authenticator, d.Logger))

		r.Post("/auth/logout", d.Auth.Logout)
		r.Get("/auth/session", d.Auth.Session)

		if d.AdminProxy != nil {
			r.With(middleware.RateLimitByAdmin(d.AdminRateLimit)).Handle("/api/admin/*", d.AdminProxy)
		}
	})
}
