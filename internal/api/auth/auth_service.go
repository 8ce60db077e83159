package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/markbates/goth"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-account-service/app/observability/metrics"
	"github.com/FACorreiaa/go-account-service/config"
	"github.com/FACorreiaa/go-account-service/internal/api"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService defines the business logic contract for the identity core.
type AuthService interface {
	// Register creates a credential-based user and returns an access token.
	Register(ctx context.Context, username, email, password string) (string, error)
	// Login validates credentials and returns an access token.
	Login(ctx context.Context, email, password string) (string, error)
	// UpdatePassword verifies the old password before storing a hash of the new one.
	UpdatePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	// VerifyAccessToken validates the raw Authorization header value and
	// returns the token claims. A missing header fails with ErrUnauthenticated,
	// everything else with ErrAuthTokenInvalid.
	VerifyAccessToken(authorizationHeader string) (*types.Claims, error)
	// GetUserByID loads the user a verified claim refers to.
	GetUserByID(ctx context.Context, userID string) (*types.UserAuth, error)
	// GetOrCreateUserFromProvider resolves an external-provider profile to an
	// existing or new local account, merging provider links idempotently.
	GetOrCreateUserFromProvider(ctx context.Context, provider string, providerUser goth.User) (*types.UserAuth, error)
	// IssueAccessToken signs a fresh access token for an already-resolved user.
	IssueAccessToken(user *types.UserAuth) (string, error)
}

// AuthServiceImpl provides the implementation for AuthService.
type AuthServiceImpl struct {
	logger *slog.Logger
	repo   AuthRepo
	jwtCfg config.JWTConfig
}

// NewAuthService creates a new auth service instance.
func NewAuthService(repo AuthRepo, jwtCfg config.JWTConfig, logger *slog.Logger) *AuthServiceImpl {
	metrics.InitAppMetrics()
	return &AuthServiceImpl{
		logger: logger,
		repo:   repo,
		jwtCfg: jwtCfg,
	}
}

// NormalizeEmail lower-cases and trims an email address; it is the only
// canonical form ever handed to the repository.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string) (string, error) {
	l := s.logger.With(slog.String("method", "Register"))

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return "", fmt.Errorf("email and password are required: %w", api.ErrDataInvalid)
	}

	hashed, err := HashPassword(password)
	if err != nil {
		l.ErrorContext(ctx, "Failed to hash password", slog.Any("error", err))
		return "", err
	}

	userID, err := s.repo.CreateUser(ctx, username, email, hashed)
	if err != nil {
		return "", err
	}
	l.InfoContext(ctx, "User registered", slog.String("userID", userID))

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.IssueAccessToken(user)
}

func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (string, error) {
	l := s.logger.With(slog.String("method", "Login"))
	m := metrics.Get()

	user, err := s.repo.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			m.LoginAttemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "unknown_email")))
			return "", fmt.Errorf("invalid credentials: %w", api.ErrUnauthenticated)
		}
		return "", err
	}

	if !CheckPassword(user.PasswordHash, password) {
		m.LoginAttemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "bad_password")))
		l.WarnContext(ctx, "Login failed, password mismatch", slog.String("userID", user.ID))
		return "", fmt.Errorf("invalid credentials: %w", api.ErrUnauthenticated)
	}

	m.LoginAttemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	return s.IssueAccessToken(user)
}

func (s *AuthServiceImpl) UpdatePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("new password is required: %w", api.ErrDataInvalid)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(user.PasswordHash, oldPassword) {
		return fmt.Errorf("invalid credentials: %w", api.ErrUnauthenticated)
	}

	hashed, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, userID, hashed)
}

func (s *AuthServiceImpl) VerifyAccessToken(authorizationHeader string) (*types.Claims, error) {
	m := metrics.Get()
	ctx := context.Background()

	if strings.TrimSpace(authorizationHeader) == "" {
		m.TokenVerificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "missing")))
		return nil, fmt.Errorf("authorization header required: %w", api.ErrUnauthenticated)
	}

	headerParts := strings.Split(authorizationHeader, " ")
	if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], "bearer") {
		m.TokenVerificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "bad_envelope")))
		return nil, fmt.Errorf("authorization header format must be Bearer {token}: %w", api.ErrAuthTokenInvalid)
	}
	tokenString := headerParts[1]

	claims := &types.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtCfg.SecretKey), nil
	})
	if err != nil {
		m.TokenVerificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "invalid")))
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("token has expired: %w", api.ErrAuthTokenInvalid)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("malformed token: %w", api.ErrAuthTokenInvalid)
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, fmt.Errorf("invalid token signature: %w", api.ErrAuthTokenInvalid)
		default:
			return nil, fmt.Errorf("invalid token: %w", api.ErrAuthTokenInvalid)
		}
	}
	if !token.Valid {
		m.TokenVerificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "invalid")))
		return nil, fmt.Errorf("invalid token: %w", api.ErrAuthTokenInvalid)
	}

	if claims.ExpiresAt == nil || time.Now().After(claims.ExpiresAt.Time) {
		m.TokenVerificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "expired")))
		return nil, fmt.Errorf("token has expired: %w", api.ErrAuthTokenInvalid)
	}
	if s.jwtCfg.Issuer != "" && claims.Issuer != s.jwtCfg.Issuer {
		m.TokenVerificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "bad_issuer")))
		return nil, fmt.Errorf("invalid token issuer: %w", api.ErrAuthTokenInvalid)
	}
	if !api.VerifyAudience(claims.Audience, s.jwtCfg.Audience) {
		m.TokenVerificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "bad_audience")))
		return nil, fmt.Errorf("invalid token audience: %w", api.ErrAuthTokenInvalid)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		m.TokenVerificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "missing_subject")))
		return nil, fmt.Errorf("token carries no user id claim: %w", api.ErrAuthTokenInvalid)
	}

	m.TokenVerificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	return claims, nil
}

func (s *AuthServiceImpl) GetUserByID(ctx context.Context, userID string) (*types.UserAuth, error) {
	return s.repo.GetUserByID(ctx, userID)
}

func (s *AuthServiceImpl) GetOrCreateUserFromProvider(ctx context.Context, provider string, providerUser goth.User) (*types.UserAuth, error) {
	l := s.logger.With(slog.String("method", "GetOrCreateUserFromProvider"), slog.String("provider", provider))
	m := metrics.Get()

	// Identity cannot be established without both a stable subject id and an
	// email; there is no recovery, so the whole operation fails up front.
	if strings.TrimSpace(providerUser.UserID) == "" {
		return nil, fmt.Errorf("provider profile is missing a subject id: %w", api.ErrDataInvalid)
	}
	email := NormalizeEmail(providerUser.Email)
	if email == "" {
		return nil, fmt.Errorf("provider profile is missing an email: %w", api.ErrDataInvalid)
	}

	params := OAuthLinkParams{
		Provider:       provider,
		ProviderUserID: providerUser.UserID,
		Email:          email,
		Username:       strings.TrimSpace(providerUser.Name),
		AvatarURL:      providerUser.AvatarURL,
		AccessToken:    providerUser.AccessToken,
		RefreshToken:   providerUser.RefreshToken,
		TokenExpiresAt: providerUser.ExpiresAt,
	}

	user, err := s.repo.LinkOrCreateProviderUser(ctx, params)
	if err != nil {
		m.OAuthLinksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		l.ErrorContext(ctx, "Failed to link or create provider user", slog.Any("error", err))
		return nil, err
	}

	m.OAuthLinksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "linked")))
	l.InfoContext(ctx, "Resolved provider profile to local account", slog.String("userID", user.ID))
	return user, nil
}

func (s *AuthServiceImpl) IssueAccessToken(user *types.UserAuth) (string, error) {
	now := time.Now()
	claims := types.Claims{
		UserID:        user.ID,
		Email:         user.Email,
		Role:          user.Role,
		EmailVerified: user.IsEmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.jwtCfg.Issuer,
			Audience:  jwt.ClaimStrings{s.jwtCfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtCfg.AccessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtCfg.SecretKey))
	if err != nil {
		return "", fmt.Errorf("%w: signing access token: %v", api.ErrInternal, err)
	}
	return signed, nil
}
