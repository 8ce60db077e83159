package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
	"github.com/patrickmn/go-cache"

	"github.com/FACorreiaa/go-account-service/config"
	"github.com/FACorreiaa/go-account-service/internal/api"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

const (
	exchangeCodeTTL     = 5 * time.Minute
	exchangeCodePurge   = 10 * time.Minute
	sessionCookieMaxAge = 600
)

// ConfigureOAuthProviders wires the goth provider registry and the cookie
// session store gothic uses for the state parameter. Call once at startup.
func ConfigureOAuthProviders(cfg config.OAuthConfig) {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.MaxAge(sessionCookieMaxAge)
	store.Options.HttpOnly = true
	gothic.Store = store

	if cfg.Google.ClientKey != "" {
		goth.UseProviders(
			google.New(cfg.Google.ClientKey, cfg.Google.Secret, cfg.Google.CallbackURL, "email", "profile"),
		)
	}
}

type AuthHandler struct {
	service    AuthService
	logger     *slog.Logger
	cfg        *config.Config
	exchange   *cache.Cache // one-time exchange codes, short-lived, never user state
	exchangeMu sync.Mutex   // serializes redemption so each code is taken at most once
}

func NewAuthHandler(service AuthService, cfg *config.Config, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		logger:   logger,
		cfg:      cfg,
		exchange: cache.New(exchangeCodeTTL, exchangeCodePurge),
	}
}

func (h *AuthHandler) tokenResponse(token string) TokenResponse {
	return TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.cfg.JWT.AccessTokenTTL.Seconds()),
	}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponseWithCode(w, r, http.StatusBadRequest, api.CodeDataInvalid, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		api.ErrorResponseWithCode(w, r, http.StatusBadRequest, api.CodeDataInvalid, "email and password are required")
		return
	}

	token, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		api.DomainErrorResponse(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusCreated, h.tokenResponse(token))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponseWithCode(w, r, http.StatusBadRequest, api.CodeDataInvalid, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		api.ErrorResponseWithCode(w, r, http.StatusBadRequest, api.CodeDataInvalid, "email and password are required")
		return
	}

	token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		api.DomainErrorResponse(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, h.tokenResponse(token))
}

// UpdatePassword handles PUT /users/me/password for the bound identity.
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		api.DomainErrorResponse(w, r, api.ErrUnauthenticated)
		return
	}

	var req ChangePasswordRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponseWithCode(w, r, http.StatusBadRequest, api.CodeDataInvalid, err.Error())
		return
	}

	if err := h.service.UpdatePassword(r.Context(), identity.UserID, req.OldPassword, req.NewPassword); err != nil {
		api.DomainErrorResponse(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{Success: true, Message: "Password updated"})
}

// withProviderName makes the chi route parameter visible to gothic.
func withProviderName(r *http.Request) *http.Request {
	provider := chi.URLParam(r, "provider")
	return r.WithContext(context.WithValue(r.Context(), gothic.ProviderParamKey, provider))
}

// BeginOAuth handles GET /auth/{provider} by redirecting to the provider's
// consent page.
func (h *AuthHandler) BeginOAuth(w http.ResponseWriter, r *http.Request) {
	gothic.BeginAuthHandler(w, withProviderName(r))
}

// OAuthCallback handles GET /auth/{provider}/callback. It completes the
// provider handshake, links or creates the local account, and hands back an
// access token, either directly as JSON or via a one-time exchange code when
// a frontend redirect is configured.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	r = withProviderName(r)
	provider := chi.URLParam(r, "provider")
	l := h.logger.With(slog.String("handler", "OAuthCallback"), slog.String("provider", provider))

	providerUser, err := gothic.CompleteUserAuth(w, r)
	if err != nil {
		l.WarnContext(r.Context(), "OAuth handshake failed", slog.Any("error", err))
		api.ErrorResponseWithCode(w, r, http.StatusBadGateway, api.CodeSystemError, "OAuth provider handshake failed")
		return
	}

	user, err := h.service.GetOrCreateUserFromProvider(r.Context(), provider, providerUser)
	if err != nil {
		api.DomainErrorResponse(w, r, err)
		return
	}

	token, err := h.service.IssueAccessToken(user)
	if err != nil {
		api.DomainErrorResponse(w, r, err)
		return
	}

	if redirect := h.cfg.OAuth.SuccessRedirect; redirect != "" {
		code := uuid.NewString()
		h.exchange.SetDefault(code, token)
		http.Redirect(w, r, fmt.Sprintf("%s?code=%s", redirect, url.QueryEscape(code)), http.StatusTemporaryRedirect)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, struct {
		TokenResponse
		User *types.UserAuth `json:"user"`
	}{h.tokenResponse(token), user})
}

// ExchangeToken handles POST /auth/exchange, swapping a one-time code issued
// during the OAuth redirect for the access token. Codes are single-use.
func (h *AuthHandler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponseWithCode(w, r, http.StatusBadRequest, api.CodeDataInvalid, err.Error())
		return
	}

	h.exchangeMu.Lock()
	val, found := h.exchange.Get(req.Code)
	if found {
		h.exchange.Delete(req.Code)
	}
	h.exchangeMu.Unlock()
	if !found {
		api.ErrorResponseWithCode(w, r, http.StatusUnauthorized, api.CodeAuthTokenInvalid, "unknown or expired exchange code")
		return
	}

	token, _ := val.(string)
	api.WriteJSONResponse(w, r, http.StatusOK, h.tokenResponse(token))
}
