package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/go-account-service/internal/api"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

// Typed context key; the identity context is the only value this package
// attaches to a request.
type contextKey string

const identityContextKey contextKey = "identityContext"

// IdentityFromContext returns the identity bound to the request, if any.
func IdentityFromContext(ctx context.Context) (types.IdentityContext, bool) {
	identity, ok := ctx.Value(identityContextKey).(types.IdentityContext)
	return identity, ok
}

// Authenticate is middleware to validate bearer tokens and bind the resolved
// identity to the request context. The identity is a minimal projection of the
// user, immutable after attachment; each request carries its own copy.
func Authenticate(service AuthService, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.With(slog.String("middleware", "Authenticate"))

			claims, err := service.VerifyAccessToken(r.Header.Get("Authorization"))
			if err != nil {
				l.WarnContext(ctx, "Token verification failed", slog.Any("error", err))
				api.DomainErrorResponse(w, r, err)
				return
			}

			user, err := service.GetUserByID(ctx, claims.UserID)
			if err != nil {
				if errors.Is(err, api.ErrNotFound) {
					// Token is valid but the subject no longer exists; surface
					// as unauthorized rather than leaking record existence.
					l.WarnContext(ctx, "Token subject no longer exists", slog.String("userID", claims.UserID))
					api.DomainErrorResponse(w, r, api.ErrAuthTokenInvalid)
					return
				}
				l.ErrorContext(ctx, "Failed to load token subject", slog.Any("error", err))
				api.DomainErrorResponse(w, r, err)
				return
			}

			identity := types.IdentityContext{
				UserID:          user.ID,
				Email:           user.Email,
				Username:        user.Username,
				Role:            user.Role,
				IsEmailVerified: user.IsEmailVerified,
			}
			ctx = context.WithValue(ctx, identityContextKey, identity)
			l.DebugContext(ctx, "Identity bound to request", slog.String("userID", identity.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireVerifiedEmail gates a route on the bound identity having a verified
// email. Must be composed AFTER Authenticate; it never resolves identity itself.
func RequireVerifiedEmail(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				logger.ErrorContext(r.Context(), "RequireVerifiedEmail composed before Authenticate")
				api.DomainErrorResponse(w, r, api.ErrUnauthenticated)
				return
			}
			if !identity.IsEmailVerified {
				api.DomainErrorResponse(w, r, api.ErrEmailNotVerified)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole gates a route on the bound identity holding the given role.
// This is the upstream access-control gate for admin-only surfaces.
func RequireRole(role string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				logger.ErrorContext(r.Context(), "RequireRole composed before Authenticate")
				api.DomainErrorResponse(w, r, api.ErrUnauthenticated)
				return
			}
			if identity.Role != role {
				logger.WarnContext(r.Context(), "Role check failed",
					slog.String("required", role),
					slog.String("actual", identity.Role),
				)
				api.DomainErrorResponse(w, r, api.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
