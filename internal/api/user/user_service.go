package user

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-account-service/app/observability/metrics"
	"github.com/FACorreiaa/go-account-service/internal/api"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

// RoleChangeResult reports the outcome of a role mutation. Changed is false
// when the target already held the requested role and no write was issued.
type RoleChangeResult struct {
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
	Changed bool   `json:"changed"`
}

var _ UserService = (*UserServiceImpl)(nil)

// UserService defines the business logic contract for user operations.
type UserService interface {
	// GetUserProfile retrieves a user's profile, including provider links.
	GetUserProfile(ctx context.Context, userID string) (*types.UserAuth, error)
	// ChangeRole authorizes and applies a role mutation. It enforces role
	// validity and the self-demotion lockout rule; whether the actor is
	// allowed to manage roles at all is the router's RequireRole gate.
	ChangeRole(ctx context.Context, actor types.IdentityContext, targetUserID, newRole string) (RoleChangeResult, error)
}

// UserServiceImpl provides the implementation for UserService.
type UserServiceImpl struct {
	logger *slog.Logger
	repo   UserRepo
}

// NewUserService creates a new user service instance.
func NewUserService(repo UserRepo, logger *slog.Logger) *UserServiceImpl {
	metrics.InitAppMetrics()
	return &UserServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

func (s *UserServiceImpl) GetUserProfile(ctx context.Context, userID string) (*types.UserAuth, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	links, err := s.repo.GetProviderLinks(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.OAuthProviders = links
	return user, nil
}

func (s *UserServiceImpl) ChangeRole(ctx context.Context, actor types.IdentityContext, targetUserID, newRole string) (RoleChangeResult, error) {
	l := s.logger.With(
		slog.String("method", "ChangeRole"),
		slog.String("actorID", actor.UserID),
		slog.String("targetID", targetUserID),
		slog.String("newRole", newRole),
	)
	m := metrics.Get()

	if !types.ValidRole(newRole) {
		m.RoleChangesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "invalid_role")))
		return RoleChangeResult{}, fmt.Errorf("unrecognized role %q: %w", newRole, api.ErrDataInvalid)
	}

	// An actor may not demote themself to the base role; the last admin acting
	// on their own account would otherwise lock the service out of privileged
	// operations entirely.
	if actor.UserID == targetUserID && newRole == types.RoleUser {
		m.RoleChangesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "self_demotion")))
		l.WarnContext(ctx, "Actor attempted to demote themself")
		return RoleChangeResult{}, fmt.Errorf("cannot demote your own account to %q: %w", types.RoleUser, api.ErrDataInvalid)
	}

	target, err := s.repo.GetUserByID(ctx, targetUserID)
	if err != nil {
		m.RoleChangesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "target_missing")))
		return RoleChangeResult{}, err
	}

	if target.Role == newRole {
		// Idempotent short-circuit: no write, no spurious updated_at bump.
		m.RoleChangesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "unchanged")))
		return RoleChangeResult{UserID: targetUserID, Role: newRole, Changed: false}, nil
	}

	if err := s.repo.UpdateRole(ctx, targetUserID, newRole); err != nil {
		m.RoleChangesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return RoleChangeResult{}, err
	}

	m.RoleChangesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "changed")))
	l.InfoContext(ctx, "Role changed", slog.String("from", target.Role))
	return RoleChangeResult{UserID: targetUserID, Role: newRole, Changed: true}, nil
}
