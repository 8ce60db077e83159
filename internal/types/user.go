package types

import (
	"time"
)

// Role values recognised by the service.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ValidRole reports whether role is one of the recognised role values.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// UserAuth represents the core user entity in the domain.
type UserAuth struct {
	ID              string         `json:"id" example:"d290f1ee-6c54-4b01-90e6-d701748f0851"` // Unique identifier (UUID).
	Username        string         `json:"username,omitempty" example:"johndoe"`              // Optional display name.
	Email           string         `json:"email" example:"john.doe@example.com"`              // Unique email address, stored lower-cased.
	PasswordHash    *string        `json:"-"`                                                 // Hashed password; nil for OAuth-only accounts.
	Role            string         `json:"role" example:"user"`                               // User role ('user' or 'admin').
	IsEmailVerified bool           `json:"is_email_verified"`                                 // Set true when a trusted OAuth provider confirms the address.
	AvatarURL       *string        `json:"avatar_url,omitempty"`                              // Optional avatar; only auto-populated when absent.
	OAuthProviders  []ProviderLink `json:"oauth_providers,omitempty"`                         // At most one entry per provider.
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ProviderLink associates a local user with an external identity-provider account.
type ProviderLink struct {
	Provider       string     `json:"provider" example:"google"` // Provider name.
	ProviderUserID string     `json:"provider_user_id"`          // Provider-assigned subject identifier.
	AccessToken    string     `json:"-"`                         // Transient credential material, never serialised.
	RefreshToken   *string    `json:"-"`
	TokenExpiresAt *time.Time `json:"-"`
}

// IdentityContext is the minimal, request-scoped projection of a user used for
// authorization decisions. It is attached to the request context by the
// authentication middleware and is never persisted.
type IdentityContext struct {
	UserID          string `json:"user_id"`
	Email           string `json:"email"`
	Username        string `json:"username,omitempty"`
	Role            string `json:"role"`
	IsEmailVerified bool   `json:"is_email_verified"`
}
