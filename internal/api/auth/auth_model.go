package auth

import (
	"time"
)

// RegisterRequest represents the expected JSON body for user registration.
type RegisterRequest struct {
	Username string `json:"username,omitempty" example:"testuser"`                        // Optional display name.
	Email    string `json:"email" binding:"required,email" example:"newuser@example.com"` // User's email address. Must be unique.
	Password string `json:"password" binding:"required,min=8" example:"Str0ngP@ss!"`      // User's desired password (min length 8).
}

// LoginRequest represents the expected JSON body for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" example:"user@example.com"`
	Password string `json:"password" binding:"required" example:"password123"`
}

// TokenResponse represents the successful JSON response after login,
// registration, or an OAuth exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token" example:"eyJhbGciOiJI..."` // Short-lived JWT access token.
	TokenType   string `json:"token_type" example:"Bearer"`
	ExpiresIn   int64  `json:"expires_in" example:"900"` // Lifetime in seconds.
}

// ChangePasswordRequest represents the expected JSON body for changing the
// authenticated user's password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required" example:"currentPassword123"`
	NewPassword string `json:"new_password" binding:"required,min=8" example:"NewStr0ngP@ss!"`
}

// ExchangeRequest swaps a one-time code issued during the OAuth callback
// redirect for an access token.
type ExchangeRequest struct {
	Code string `json:"code" binding:"required"`
}

// OAuthLinkParams carries the normalized external-provider profile into the
// repository's link-or-create transaction.
type OAuthLinkParams struct {
	Provider       string
	ProviderUserID string
	Email          string
	Username       string
	AvatarURL      string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
}
