package user

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FACorreiaa/go-account-service/internal/api"
	"github.com/FACorreiaa/go-account-service/internal/api/auth"
)

// ChangeRoleRequest represents the expected JSON body for a role mutation.
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required" example:"admin"`
}

type UserHandler struct {
	service UserService
	logger  *slog.Logger
}

func NewUserHandler(service UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		logger:  logger,
	}
}

// Me handles GET /users/me for the bound identity.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		api.DomainErrorResponse(w, r, api.ErrUnauthenticated)
		return
	}

	profile, err := h.service.GetUserProfile(r.Context(), identity.UserID)
	if err != nil {
		api.DomainErrorResponse(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, profile)
}

// ChangeRole handles PUT /admin/users/{userID}/role. The admin gate is applied
// by the router; the service enforces validity and the self-lockout rule.
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		api.DomainErrorResponse(w, r, api.ErrUnauthenticated)
		return
	}

	targetUserID := chi.URLParam(r, "userID")
	if targetUserID == "" {
		api.ErrorResponseWithCode(w, r, http.StatusBadRequest, api.CodeDataInvalid, "user id is required")
		return
	}

	var req ChangeRoleRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponseWithCode(w, r, http.StatusBadRequest, api.CodeDataInvalid, err.Error())
		return
	}

	result, err := h.service.ChangeRole(r.Context(), identity, targetUserID, req.Role)
	if err != nil {
		api.DomainErrorResponse(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, result)
}
