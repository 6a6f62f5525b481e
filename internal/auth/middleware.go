package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// PrincipalContextKey is the key for storing the authenticated admin in context
	PrincipalContextKey contextKey = "admin_principal"
)

// Authenticator resolves a bearer token presented from a device into an admin principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token, fingerprint string) (*models.AdminPrincipal, error)
}

// RequireAdminSession admits only requests carrying a token whose session completed all three
// factors and whose fingerprint matches the device that created it.
func RequireAdminSession(authn Authenticator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := pkghttp.BearerToken(r)
			if !ok {
				pkghttp.WriteRetry(w, "authentication required")
				return
			}

			principal, err := authn.Authenticate(r.Context(), token, FingerprintFromRequest(r))
			if err != nil {
				if errors.Is(err, models.ErrStoreUnavailable) {
					logger.Error("session check unavailable", "error", err, "path", r.URL.Path)
					pkghttp.WriteServiceUnavailable(w, "authentication temporarily unavailable")
					return
				}
				pkghttp.WriteRetry(w, "authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *models.AdminPrincipal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// GetPrincipalFromContext extracts the admin principal from request context
func GetPrincipalFromContext(r *http.Request) *models.AdminPrincipal {
	p, ok := r.Context().Value(PrincipalContextKey).(*models.AdminPrincipal)
	if !ok {
		return nil
	}
	return p
}
