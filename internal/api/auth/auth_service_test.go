package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/markbates/goth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/FACorreiaa/go-account-service/config"
	"github.com/FACorreiaa/go-account-service/internal/api"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

// MockAuthRepo is a mock implementation of the AuthRepo interface
type MockAuthRepo struct {
	mock.Mock
}

func (m *MockAuthRepo) GetUserByEmail(ctx context.Context, email string) (*types.UserAuth, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.UserAuth), args.Error(1)
}

func (m *MockAuthRepo) GetUserByID(ctx context.Context, userID string) (*types.UserAuth, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.UserAuth), args.Error(1)
}

func (m *MockAuthRepo) CreateUser(ctx context.Context, username, email, hashedPassword string) (string, error) {
	args := m.Called(ctx, username, email, hashedPassword)
	return args.String(0), args.Error(1)
}

func (m *MockAuthRepo) UpdatePassword(ctx context.Context, userID, newHashedPassword string) error {
	args := m.Called(ctx, userID, newHashedPassword)
	return args.Error(0)
}

func (m *MockAuthRepo) LinkOrCreateProviderUser(ctx context.Context, params OAuthLinkParams) (*types.UserAuth, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.UserAuth), args.Error(1)
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		SecretKey:      "test-access-secret",
		AccessTokenTTL: 15 * time.Minute,
		Issuer:         "test-issuer",
		Audience:       "test-audience",
	}
}

func testUser() *types.UserAuth {
	hash, _ := HashPassword("password123")
	return &types.UserAuth{
		ID:              "user123",
		Username:        "testuser",
		Email:           "test@example.com",
		PasswordHash:    &hash,
		Role:            types.RoleUser,
		IsEmailVerified: true,
	}
}

// newTestService returns a fresh mock repo and service per (sub)test so call
// records never bleed between cases.
func newTestService() (*MockAuthRepo, *AuthServiceImpl) {
	mockRepo := new(MockAuthRepo)
	return mockRepo, NewAuthService(mockRepo, testJWTConfig(), slog.Default())
}

func TestLogin(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockRepo, service := newTestService()
		ctx := context.Background()
		user := testUser()

		mockRepo.On("GetUserByEmail", ctx, user.Email).Return(user, nil).Once()

		token, err := service.Login(ctx, user.Email, "password123")

		assert.NoError(t, err)
		assert.NotEmpty(t, token)
		mockRepo.AssertExpectations(t)
	})

	t.Run("NormalizesEmail", func(t *testing.T) {
		mockRepo, service := newTestService()
		ctx := context.Background()
		user := testUser()

		mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(user, nil).Once()

		_, err := service.Login(ctx, "  Test@Example.COM ", "password123")

		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})

	t.Run("UserNotFound", func(t *testing.T) {
		mockRepo, service := newTestService()
		ctx := context.Background()
		mockRepo.On("GetUserByEmail", ctx, "missing@example.com").Return(nil, api.ErrNotFound).Once()

		_, err := service.Login(ctx, "missing@example.com", "password123")

		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		mockRepo.AssertExpectations(t)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		mockRepo, service := newTestService()
		ctx := context.Background()
		user := testUser()
		mockRepo.On("GetUserByEmail", ctx, user.Email).Return(user, nil).Once()

		_, err := service.Login(ctx, user.Email, "not-the-password")

		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		mockRepo.AssertExpectations(t)
	})

	t.Run("OAuthOnlyAccountHasNoHash", func(t *testing.T) {
		mockRepo, service := newTestService()
		ctx := context.Background()
		user := testUser()
		user.PasswordHash = nil
		mockRepo.On("GetUserByEmail", ctx, user.Email).Return(user, nil).Once()

		_, err := service.Login(ctx, user.Email, "password123")

		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		mockRepo.AssertExpectations(t)
	})
}

func TestRegister(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockRepo, service := newTestService()
		ctx := context.Background()
		user := testUser()

		mockRepo.On("CreateUser", ctx, "testuser", "test@example.com", mock.MatchedBy(func(hash string) bool {
			// The repository must only ever see a bcrypt hash, never plaintext.
			return IsHashed(hash) && hash != "password123"
		})).Return(user.ID, nil).Once()
		mockRepo.On("GetUserByID", ctx, user.ID).Return(user, nil).Once()

		token, err := service.Register(ctx, "testuser", "Test@Example.com", "password123")

		assert.NoError(t, err)
		assert.NotEmpty(t, token)
		mockRepo.AssertExpectations(t)
	})

	t.Run("MissingFields", func(t *testing.T) {
		mockRepo, service := newTestService()

		_, err := service.Register(context.Background(), "testuser", "", "password123")
		assert.ErrorIs(t, err, api.ErrDataInvalid)

		_, err = service.Register(context.Background(), "testuser", "a@b.com", "")
		assert.ErrorIs(t, err, api.ErrDataInvalid)

		mockRepo.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestVerifyAccessToken(t *testing.T) {
	mockRepo := new(MockAuthRepo)
	cfg := testJWTConfig()
	service := NewAuthService(mockRepo, cfg, slog.Default())

	signToken := func(claims types.Claims, secret string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(secret))
		assert.NoError(t, err)
		return signed
	}

	validClaims := func() types.Claims {
		now := time.Now()
		return types.Claims{
			UserID: "user123",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user123",
				Issuer:    cfg.Issuer,
				Audience:  jwt.ClaimStrings{cfg.Audience},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
	}

	t.Run("Success", func(t *testing.T) {
		token, err := service.IssueAccessToken(testUser())
		assert.NoError(t, err)

		claims, err := service.VerifyAccessToken("Bearer " + token)
		assert.NoError(t, err)
		assert.Equal(t, "user123", claims.UserID)
	})

	t.Run("MissingHeaderIsUnauthorized", func(t *testing.T) {
		_, err := service.VerifyAccessToken("")
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		assert.NotErrorIs(t, err, api.ErrAuthTokenInvalid)
	})

	t.Run("BadEnvelope", func(t *testing.T) {
		_, err := service.VerifyAccessToken("Token abc")
		assert.ErrorIs(t, err, api.ErrAuthTokenInvalid)

		_, err = service.VerifyAccessToken("Bearer")
		assert.ErrorIs(t, err, api.ErrAuthTokenInvalid)
	})

	t.Run("MalformedToken", func(t *testing.T) {
		_, err := service.VerifyAccessToken("Bearer not-a-jwt")
		assert.ErrorIs(t, err, api.ErrAuthTokenInvalid)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		claims := validClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := service.VerifyAccessToken("Bearer " + signToken(claims, cfg.SecretKey))
		assert.ErrorIs(t, err, api.ErrAuthTokenInvalid)
	})

	t.Run("WrongSignature", func(t *testing.T) {
		_, err := service.VerifyAccessToken("Bearer " + signToken(validClaims(), "some-other-secret"))
		assert.ErrorIs(t, err, api.ErrAuthTokenInvalid)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		claims := validClaims()
		claims.Issuer = "someone-else"
		_, err := service.VerifyAccessToken("Bearer " + signToken(claims, cfg.SecretKey))
		assert.ErrorIs(t, err, api.ErrAuthTokenInvalid)
	})

	t.Run("MissingUserIDClaim", func(t *testing.T) {
		claims := validClaims()
		claims.UserID = ""
		_, err := service.VerifyAccessToken("Bearer " + signToken(claims, cfg.SecretKey))
		assert.ErrorIs(t, err, api.ErrAuthTokenInvalid)
	})
}

func TestUpdatePassword(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockRepo, service := newTestService()
		ctx := context.Background()
		user := testUser()

		mockRepo.On("GetUserByID", ctx, user.ID).Return(user, nil).Once()
		mockRepo.On("UpdatePassword", ctx, user.ID, mock.MatchedBy(IsHashed)).Return(nil).Once()

		err := service.UpdatePassword(ctx, user.ID, "password123", "newPassword456")

		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})

	t.Run("WrongOldPassword", func(t *testing.T) {
		mockRepo, service := newTestService()
		ctx := context.Background()
		user := testUser()
		mockRepo.On("GetUserByID", ctx, user.ID).Return(user, nil).Once()

		err := service.UpdatePassword(ctx, user.ID, "wrong", "newPassword456")

		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		mockRepo.AssertExpectations(t)
	})
}

func TestGetOrCreateUserFromProvider(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockRepo, service := newTestService()
		ctx := context.Background()
		expiry := time.Now().Add(time.Hour)
		providerUser := goth.User{
			UserID:       "g123",
			Email:        "A@X.com",
			Name:         "Alice Example",
			AvatarURL:    "https://example.com/a.png",
			AccessToken:  "provider-access",
			RefreshToken: "provider-refresh",
			ExpiresAt:    expiry,
		}
		linked := &types.UserAuth{ID: "user123", Email: "a@x.com", Role: types.RoleUser, IsEmailVerified: true}

		mockRepo.On("LinkOrCreateProviderUser", ctx, OAuthLinkParams{
			Provider:       "google",
			ProviderUserID: "g123",
			Email:          "a@x.com",
			Username:       "Alice Example",
			AvatarURL:      "https://example.com/a.png",
			AccessToken:    "provider-access",
			RefreshToken:   "provider-refresh",
			TokenExpiresAt: expiry,
		}).Return(linked, nil).Once()

		user, err := service.GetOrCreateUserFromProvider(ctx, "google", providerUser)

		assert.NoError(t, err)
		assert.Equal(t, "user123", user.ID)
		mockRepo.AssertExpectations(t)
	})

	t.Run("MissingSubjectID", func(t *testing.T) {
		mockRepo, service := newTestService()

		_, err := service.GetOrCreateUserFromProvider(context.Background(), "google", goth.User{Email: "a@x.com"})
		assert.ErrorIs(t, err, api.ErrDataInvalid)
		mockRepo.AssertNotCalled(t, "LinkOrCreateProviderUser", mock.Anything, mock.Anything)
	})

	t.Run("MissingEmail", func(t *testing.T) {
		mockRepo, service := newTestService()

		_, err := service.GetOrCreateUserFromProvider(context.Background(), "google", goth.User{UserID: "g123"})
		assert.ErrorIs(t, err, api.ErrDataInvalid)
		mockRepo.AssertNotCalled(t, "LinkOrCreateProviderUser", mock.Anything, mock.Anything)
	})
}
