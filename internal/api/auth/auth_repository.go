package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-account-service/app/observability/metrics"
	"github.com/FACorreiaa/go-account-service/internal/api"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

// DB is the subset of pgxpool.Pool the repository needs. pgxmock's pool
// interface satisfies it too, which is what the repository tests use.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ AuthRepo = (*PostgresAuthRepo)(nil)

// AuthRepo defines the contract for identity and credential persistence.
// All operations are atomic at single-record granularity; LinkOrCreateProviderUser
// additionally runs its read-modify-write inside a transaction with the user
// row locked, which is what closes the concurrent-callback race.
type AuthRepo interface {
	GetUserByEmail(ctx context.Context, email string) (*types.UserAuth, error)
	GetUserByID(ctx context.Context, userID string) (*types.UserAuth, error)
	// CreateUser stores a new credential-based user. hashedPassword must
	// already have gone through HashPassword.
	CreateUser(ctx context.Context, username, email, hashedPassword string) (string, error)
	// UpdatePassword replaces the stored hash. newHashedPassword must already
	// have gone through HashPassword.
	UpdatePassword(ctx context.Context, userID, newHashedPassword string) error
	LinkOrCreateProviderUser(ctx context.Context, params OAuthLinkParams) (*types.UserAuth, error)
}

type PostgresAuthRepo struct {
	logger *slog.Logger
	db     DB
}

func NewPostgresAuthRepo(db DB, logger *slog.Logger) *PostgresAuthRepo {
	metrics.InitAppMetrics()
	return &PostgresAuthRepo{
		logger: logger,
		db:     db,
	}
}

const userColumns = `id, username, email, password_hash, role, is_email_verified, avatar_url, created_at, updated_at`

func scanUser(row pgx.Row) (*types.UserAuth, error) {
	var user types.UserAuth
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.IsEmailVerified,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", api.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: scanning user row: %v", api.ErrInternal, err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email. Email is expected to be
// lower-cased by the caller.
func (r *PostgresAuthRepo) GetUserByEmail(ctx context.Context, email string) (*types.UserAuth, error) {
	defer metrics.Get().RecordDBQuery(ctx, "GetUserByEmail", time.Now())
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetUserByID retrieves a user by its unique ID.
func (r *PostgresAuthRepo) GetUserByID(ctx context.Context, userID string) (*types.UserAuth, error) {
	defer metrics.Get().RecordDBQuery(ctx, "GetUserByID", time.Now())
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// CreateUser inserts a new credential-based user and returns its assigned ID.
func (r *PostgresAuthRepo) CreateUser(ctx context.Context, username, email, hashedPassword string) (string, error) {
	defer metrics.Get().RecordDBQuery(ctx, "CreateUser", time.Now())
	var userID string
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, role)
         VALUES ($1, $2, $3, $4)
         RETURNING id`,
		username, email, hashedPassword, types.RoleUser).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", fmt.Errorf("email already registered: %w", api.ErrConflict)
		}
		return "", fmt.Errorf("%w: inserting user: %v", api.ErrInternal, err)
	}
	return userID, nil
}

// UpdatePassword replaces the stored password hash for a user.
func (r *PostgresAuthRepo) UpdatePassword(ctx context.Context, userID, newHashedPassword string) error {
	defer metrics.Get().RecordDBQuery(ctx, "UpdatePassword", time.Now())
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`,
		newHashedPassword, userID)
	if err != nil {
		return fmt.Errorf("%w: updating password: %v", api.ErrInternal, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %w", api.ErrNotFound)
	}
	return nil
}

// LinkOrCreateProviderUser resolves an external-provider profile to a local
// account. The whole read-modify-write runs in one transaction with the user
// row locked (SELECT ... FOR UPDATE) so two concurrent callbacks for the same
// email cannot both take the create branch or append duplicate links.
func (r *PostgresAuthRepo) LinkOrCreateProviderUser(ctx context.Context, params OAuthLinkParams) (*types.UserAuth, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "LinkOrCreateProviderUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
		attribute.String("oauth.provider", params.Provider),
	))
	defer span.End()
	defer metrics.Get().RecordDBQuery(ctx, "LinkOrCreateProviderUser", time.Now())

	l := r.logger.With(
		slog.String("method", "LinkOrCreateProviderUser"),
		slog.String("provider", params.Provider),
	)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "begin failed")
		return nil, fmt.Errorf("%w: beginning transaction: %v", api.ErrInternal, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	user, err := r.lockUserByEmail(ctx, tx, params.Email)
	if err != nil && !errors.Is(err, api.ErrNotFound) {
		span.SetStatus(codes.Error, "lookup failed")
		return nil, err
	}

	if user == nil {
		user, err = r.createProviderUser(ctx, tx, params)
		if err != nil {
			span.SetStatus(codes.Error, "create failed")
			return nil, err
		}
		l.InfoContext(ctx, "Created new user from OAuth provider", slog.String("userID", user.ID))
	} else {
		if err = r.mergeProviderLink(ctx, tx, user, params, l); err != nil {
			span.SetStatus(codes.Error, "merge failed")
			return nil, err
		}
	}

	links, err := loadProviderLinks(ctx, tx, user.ID)
	if err != nil {
		span.SetStatus(codes.Error, "load links failed")
		return nil, err
	}
	user.OAuthProviders = links

	if err = tx.Commit(ctx); err != nil {
		span.SetStatus(codes.Error, "commit failed")
		return nil, fmt.Errorf("%w: committing transaction: %v", api.ErrInternal, err)
	}
	return user, nil
}

// lockUserByEmail selects the user row FOR UPDATE, returning api.ErrNotFound
// wrapped when no row exists.
func (r *PostgresAuthRepo) lockUserByEmail(ctx context.Context, tx pgx.Tx, email string) (*types.UserAuth, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 FOR UPDATE`, email)
	return scanUser(row)
}

func (r *PostgresAuthRepo) createProviderUser(ctx context.Context, tx pgx.Tx, params OAuthLinkParams) (*types.UserAuth, error) {
	// ON CONFLICT DO NOTHING plus re-lock handles the case where another
	// callback for the same email committed between our lock attempt and here.
	row := tx.QueryRow(ctx,
		`INSERT INTO users (username, email, role, is_email_verified, avatar_url)
         VALUES ($1, $2, $3, TRUE, NULLIF($4, ''))
         ON CONFLICT (email) DO NOTHING
         RETURNING `+userColumns,
		params.Username, params.Email, types.RoleUser, params.AvatarURL)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			// Lost the create race; the row exists now, lock and merge instead.
			existing, lockErr := r.lockUserByEmail(ctx, tx, params.Email)
			if lockErr != nil {
				return nil, lockErr
			}
			if mergeErr := r.mergeProviderLink(ctx, tx, existing, params, r.logger); mergeErr != nil {
				return nil, mergeErr
			}
			return existing, nil
		}
		return nil, err
	}

	if err = upsertProviderLink(ctx, tx, user.ID, params); err != nil {
		return nil, err
	}
	return user, nil
}

// mergeProviderLink applies the existing-user branch of the linking algorithm:
// detect provider-id drift, upsert the link, backfill the avatar only when absent.
func (r *PostgresAuthRepo) mergeProviderLink(ctx context.Context, tx pgx.Tx, user *types.UserAuth, params OAuthLinkParams, l *slog.Logger) error {
	var storedProviderID string
	err := tx.QueryRow(ctx,
		`SELECT provider_user_id FROM user_oauth_providers
         WHERE user_id = $1 AND provider = $2`,
		user.ID, params.Provider).Scan(&storedProviderID)
	switch {
	case err == nil:
		if storedProviderID != params.ProviderUserID {
			// Provider reissued the subject id under the same email. Trust the
			// latest assertion over the stored one, but leave a trace.
			l.WarnContext(ctx, "Provider subject id changed for linked account, overwriting",
				slog.String("userID", user.ID),
				slog.String("stored_provider_user_id", storedProviderID),
				slog.String("incoming_provider_user_id", params.ProviderUserID),
			)
		}
	case errors.Is(err, pgx.ErrNoRows):
		// No link for this provider yet; the upsert below appends it.
	default:
		return fmt.Errorf("%w: querying provider link: %v", api.ErrInternal, err)
	}

	if err = upsertProviderLink(ctx, tx, user.ID, params); err != nil {
		return err
	}

	if user.AvatarURL == nil && params.AvatarURL != "" {
		_, err = tx.Exec(ctx,
			`UPDATE users SET avatar_url = $1, updated_at = now() WHERE id = $2`,
			params.AvatarURL, user.ID)
		if err != nil {
			return fmt.Errorf("%w: updating avatar: %v", api.ErrInternal, err)
		}
		avatar := params.AvatarURL
		user.AvatarURL = &avatar
	}
	return nil
}

func upsertProviderLink(ctx context.Context, tx pgx.Tx, userID string, params OAuthLinkParams) error {
	var refreshToken *string
	if params.RefreshToken != "" {
		refreshToken = &params.RefreshToken
	}
	var expiresAt *time.Time
	if !params.TokenExpiresAt.IsZero() {
		expiresAt = &params.TokenExpiresAt
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO user_oauth_providers (user_id, provider, provider_user_id, access_token, refresh_token, token_expires_at)
         VALUES ($1, $2, $3, $4, $5, $6)
         ON CONFLICT (user_id, provider) DO UPDATE SET
             provider_user_id = EXCLUDED.provider_user_id,
             access_token     = EXCLUDED.access_token,
             refresh_token    = EXCLUDED.refresh_token,
             token_expires_at = EXCLUDED.token_expires_at,
             updated_at       = now()`,
		userID, params.Provider, params.ProviderUserID, params.AccessToken, refreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: upserting provider link: %v", api.ErrInternal, err)
	}
	return nil
}

func loadProviderLinks(ctx context.Context, tx pgx.Tx, userID string) ([]types.ProviderLink, error) {
	rows, err := tx.Query(ctx,
		`SELECT provider, provider_user_id, access_token, refresh_token, token_expires_at
         FROM user_oauth_providers
         WHERE user_id = $1
         ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying provider links: %v", api.ErrInternal, err)
	}
	defer rows.Close()

	var links []types.ProviderLink
	for rows.Next() {
		var link types.ProviderLink
		if err := rows.Scan(&link.Provider, &link.ProviderUserID, &link.AccessToken, &link.RefreshToken, &link.TokenExpiresAt); err != nil {
			return nil, fmt.Errorf("%w: scanning provider link: %v", api.ErrInternal, err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating provider links: %v", api.ErrInternal, err)
	}
	return links, nil
}
