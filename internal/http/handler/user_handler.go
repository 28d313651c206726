package handler

import (
	"net/http"

	"github.com/videoplaying/auth-service/internal/http/middleware"
	"github.com/videoplaying/auth-service/internal/http/response"
	"github.com/videoplaying/auth-service/internal/observability"
	"github.com/videoplaying/auth-service/internal/service"
)

type UserHandler struct {
	sessions *service.SessionService
}

func NewUserHandler(sessions *service.SessionService) *UserHandler {
	return &UserHandler{sessions: sessions}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTH_REQUIRED", "authentication required", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, toUserView(identity.User))
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTH_REQUIRED", "authentication required", nil)
		return
	}
	views, err := h.sessions.ListActiveSessions(r.Context(), identity.User.ID, identity.SessionID)
	if err != nil {
		response.FromServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, views)
}

func (h *UserHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTH_REQUIRED", "authentication required", nil)
		return
	}
	revoked, err := h.sessions.RevokeOtherSessions(r.Context(), identity.User.ID, identity.SessionID)
	if err != nil {
		response.FromServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.sessions.revoke_others", "user_id", identity.User.ID, "revoked", revoked)
	response.JSON(w, r, http.StatusOK, map[string]int64{"revoked": revoked})
}
