package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-account-service/internal/api"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

var userRowColumns = []string{
	"id", "username", "email", "password_hash", "role",
	"is_email_verified", "avatar_url", "created_at", "updated_at",
}

func userRow(mock pgxmock.PgxPoolIface, id, email string, avatar *string) *pgxmock.Rows {
	now := time.Now()
	return mock.NewRows(userRowColumns).
		AddRow(id, "someone", email, nil, types.RoleUser, true, avatar, now, now)
}

func newRepoWithMock(t *testing.T) (*PostgresAuthRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresAuthRepo(mock, slog.Default()), mock
}

func TestGetUserByEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE email = \$1`).
			WithArgs("a@x.com").
			WillReturnRows(userRow(mock, "user123", "a@x.com", nil))

		user, err := repo.GetUserByEmail(ctx, "a@x.com")

		assert.NoError(t, err)
		assert.Equal(t, "user123", user.ID)
		assert.Nil(t, user.PasswordHash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE email = \$1`).
			WithArgs("missing@x.com").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetUserByEmail(ctx, "missing@x.com")

		assert.ErrorIs(t, err, api.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("someone", "a@x.com", "$2a$10$fakehash", types.RoleUser).
			WillReturnRows(mock.NewRows([]string{"id"}).AddRow("user123"))

		userID, err := repo.CreateUser(ctx, "someone", "a@x.com", "$2a$10$fakehash")

		assert.NoError(t, err)
		assert.Equal(t, "user123", userID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("someone", "a@x.com", "$2a$10$fakehash", types.RoleUser).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err := repo.CreateUser(ctx, "someone", "a@x.com", "$2a$10$fakehash")

		assert.ErrorIs(t, err, api.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdatePasswordRepo(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs("$2a$10$fakehash", "user123").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.UpdatePassword(ctx, "user123", "$2a$10$fakehash"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UserMissing", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs("$2a$10$fakehash", "ghost").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdatePassword(ctx, "ghost", "$2a$10$fakehash")

		assert.ErrorIs(t, err, api.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func linkParams() OAuthLinkParams {
	return OAuthLinkParams{
		Provider:       "google",
		ProviderUserID: "g123",
		Email:          "a@x.com",
		Username:       "Alice Example",
		AvatarURL:      "https://example.com/a.png",
		AccessToken:    "provider-access",
	}
}

func TestLinkOrCreateProviderUser(t *testing.T) {
	ctx := context.Background()

	linkRows := func(mock pgxmock.PgxPoolIface, providerUserID string) *pgxmock.Rows {
		return mock.NewRows([]string{"provider", "provider_user_id", "access_token", "refresh_token", "token_expires_at"}).
			AddRow("google", providerUserID, "provider-access", nil, nil)
	}

	t.Run("CreatesNewUser", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		avatar := "https://example.com/a.png"

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE email = \$1 FOR UPDATE`).
			WithArgs("a@x.com").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("Alice Example", "a@x.com", types.RoleUser, "https://example.com/a.png").
			WillReturnRows(userRow(mock, "user123", "a@x.com", &avatar))
		mock.ExpectExec(`INSERT INTO user_oauth_providers`).
			WithArgs("user123", "google", "g123", "provider-access", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery(`SELECT provider, provider_user_id`).
			WithArgs("user123").
			WillReturnRows(linkRows(mock, "g123"))
		mock.ExpectCommit()
		mock.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		user, err := repo.LinkOrCreateProviderUser(ctx, linkParams())

		assert.NoError(t, err)
		assert.Equal(t, "user123", user.ID)
		assert.True(t, user.IsEmailVerified)
		assert.Equal(t, types.RoleUser, user.Role)
		require.Len(t, user.OAuthProviders, 1)
		assert.Equal(t, "g123", user.OAuthProviders[0].ProviderUserID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AppendsLinkToExistingUser", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		avatar := "https://example.com/existing.png"

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE email = \$1 FOR UPDATE`).
			WithArgs("a@x.com").
			WillReturnRows(userRow(mock, "user123", "a@x.com", &avatar))
		mock.ExpectQuery(`SELECT provider_user_id FROM user_oauth_providers`).
			WithArgs("user123", "google").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectExec(`INSERT INTO user_oauth_providers`).
			WithArgs("user123", "google", "g123", "provider-access", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		// Avatar already set, so no users UPDATE is expected.
		mock.ExpectQuery(`SELECT provider, provider_user_id`).
			WithArgs("user123").
			WillReturnRows(linkRows(mock, "g123"))
		mock.ExpectCommit()
		mock.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		user, err := repo.LinkOrCreateProviderUser(ctx, linkParams())

		assert.NoError(t, err)
		require.NotNil(t, user.AvatarURL)
		assert.Equal(t, "https://example.com/existing.png", *user.AvatarURL, "existing avatar must never be overwritten")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("OverwritesDriftedProviderID", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)

		params := linkParams()
		params.ProviderUserID = "g456"

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE email = \$1 FOR UPDATE`).
			WithArgs("a@x.com").
			WillReturnRows(userRow(mock, "user123", "a@x.com", nil))
		mock.ExpectQuery(`SELECT provider_user_id FROM user_oauth_providers`).
			WithArgs("user123", "google").
			WillReturnRows(mock.NewRows([]string{"provider_user_id"}).AddRow("g123"))
		mock.ExpectExec(`INSERT INTO user_oauth_providers`).
			WithArgs("user123", "google", "g456", "provider-access", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`UPDATE users SET avatar_url`).
			WithArgs("https://example.com/a.png", "user123").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectQuery(`SELECT provider, provider_user_id`).
			WithArgs("user123").
			WillReturnRows(linkRows(mock, "g456"))
		mock.ExpectCommit()
		mock.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		user, err := repo.LinkOrCreateProviderUser(ctx, params)

		assert.NoError(t, err)
		require.Len(t, user.OAuthProviders, 1)
		assert.Equal(t, "g456", user.OAuthProviders[0].ProviderUserID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("LosesCreateRaceAndMerges", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE email = \$1 FOR UPDATE`).
			WithArgs("a@x.com").
			WillReturnError(pgx.ErrNoRows)
		// Concurrent callback committed first: ON CONFLICT DO NOTHING returns no row.
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("Alice Example", "a@x.com", types.RoleUser, "https://example.com/a.png").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE email = \$1 FOR UPDATE`).
			WithArgs("a@x.com").
			WillReturnRows(userRow(mock, "user123", "a@x.com", nil))
		mock.ExpectQuery(`SELECT provider_user_id FROM user_oauth_providers`).
			WithArgs("user123", "google").
			WillReturnRows(mock.NewRows([]string{"provider_user_id"}).AddRow("g123"))
		mock.ExpectExec(`INSERT INTO user_oauth_providers`).
			WithArgs("user123", "google", "g123", "provider-access", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`UPDATE users SET avatar_url`).
			WithArgs("https://example.com/a.png", "user123").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectQuery(`SELECT provider, provider_user_id`).
			WithArgs("user123").
			WillReturnRows(linkRows(mock, "g123"))
		mock.ExpectCommit()
		mock.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		user, err := repo.LinkOrCreateProviderUser(ctx, linkParams())

		assert.NoError(t, err)
		assert.Equal(t, "user123", user.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
