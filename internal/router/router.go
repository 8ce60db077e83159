package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/FACorreiaa/go-account-service/internal/api/auth"
	"github.com/FACorreiaa/go-account-service/internal/api/user"
)

// Config contains dependencies needed for the router setup.
type Config struct {
	AuthHandler *auth.AuthHandler
	UserHandler *user.UserHandler

	// Middleware built in main.go so the router stays wiring-only.
	Authenticate         func(http.Handler) http.Handler
	RequireVerifiedEmail func(http.Handler) http.Handler
	RequireAdmin         func(http.Handler) http.Handler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) are expected to be
// applied before mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong")) //nolint:errcheck
	})

	r.Route("/api/v1", func(r chi.Router) {

		// --- Public auth routes ---
		r.Group(func(r chi.Router) {
			// Credential endpoints are brute-forceable; rate limit by client IP.
			r.Use(httprate.LimitByIP(20, 1*time.Minute))

			r.Post("/auth/register", cfg.AuthHandler.Register)
			r.Post("/auth/login", cfg.AuthHandler.Login)
			r.Post("/auth/exchange", cfg.AuthHandler.ExchangeToken)
		})

		// --- OAuth provider flow (public; identity is established upstream) ---
		r.Group(func(r chi.Router) {
			r.Get("/auth/{provider}", cfg.AuthHandler.BeginOAuth)
			r.Get("/auth/{provider}/callback", cfg.AuthHandler.OAuthCallback)
		})

		// --- Protected routes ---
		r.Group(func(r chi.Router) {
			r.Use(cfg.Authenticate)

			r.Get("/users/me", cfg.UserHandler.Me)

			// Verified-email gate composes after Authenticate, never before.
			r.Group(func(r chi.Router) {
				r.Use(cfg.RequireVerifiedEmail)
				r.Put("/users/me/password", cfg.AuthHandler.UpdatePassword)
			})
		})

		// --- Admin routes ---
		r.Group(func(r chi.Router) {
			r.Use(cfg.Authenticate)
			r.Use(cfg.RequireAdmin)

			r.Put("/admin/users/{userID}/role", cfg.UserHandler.ChangeRole)
		})
	})

	return r
}
