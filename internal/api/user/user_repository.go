package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-account-service/app/observability/metrics"
	"github.com/FACorreiaa/go-account-service/internal/api"
	"github.com/FACorreiaa/go-account-service/internal/api/auth"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

var _ UserRepo = (*PostgresUserRepo)(nil)

// UserRepo defines the contract for user profile and role persistence.
type UserRepo interface {
	// GetUserByID retrieves a user's record by its unique ID.
	// Returns api.ErrNotFound (wrapped) if the user doesn't exist.
	GetUserByID(ctx context.Context, userID string) (*types.UserAuth, error)
	// UpdateRole persists a new role value for the user.
	UpdateRole(ctx context.Context, userID, role string) error
	// GetProviderLinks lists the user's OAuth provider links in link order.
	GetProviderLinks(ctx context.Context, userID string) ([]types.ProviderLink, error)
}

type PostgresUserRepo struct {
	logger *slog.Logger
	db     auth.DB
}

func NewPostgresUserRepo(db auth.DB, logger *slog.Logger) *PostgresUserRepo {
	metrics.InitAppMetrics()
	return &PostgresUserRepo{
		logger: logger,
		db:     db,
	}
}

func (r *PostgresUserRepo) GetUserByID(ctx context.Context, userID string) (*types.UserAuth, error) {
	defer metrics.Get().RecordDBQuery(ctx, "GetUserByID", time.Now())
	var user types.UserAuth
	err := r.db.QueryRow(ctx,
		`SELECT id, username, email, role, is_email_verified, avatar_url, created_at, updated_at
         FROM users WHERE id = $1`,
		userID).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
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
		return nil, fmt.Errorf("%w: querying user: %v", api.ErrInternal, err)
	}
	return &user, nil
}

func (r *PostgresUserRepo) UpdateRole(ctx context.Context, userID, role string) error {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "UpdateRole", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()
	defer metrics.Get().RecordDBQuery(ctx, "UpdateRole", time.Now())

	tag, err := r.db.Exec(ctx,
		`UPDATE users SET role = $1, updated_at = now() WHERE id = $2`,
		role, userID)
	if err != nil {
		return fmt.Errorf("%w: updating role: %v", api.ErrInternal, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %w", api.ErrNotFound)
	}
	return nil
}

func (r *PostgresUserRepo) GetProviderLinks(ctx context.Context, userID string) ([]types.ProviderLink, error) {
	defer metrics.Get().RecordDBQuery(ctx, "GetProviderLinks", time.Now())
	rows, err := r.db.Query(ctx,
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
