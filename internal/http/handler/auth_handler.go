package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/videoplaying/auth-service/internal/domain"
	"github.com/videoplaying/auth-service/internal/http/response"
	"github.com/videoplaying/auth-service/internal/observability"
	"github.com/videoplaying/auth-service/internal/security"
	"github.com/videoplaying/auth-service/internal/service"
)

type AuthHandler struct {
	auth       *service.AuthService
	cookies    security.CookieOptions
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthHandler(auth *service.AuthService, cookies security.CookieOptions, accessTTL, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{auth: auth, cookies: cookies, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

type registerRequest struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName *string `json:"display_name,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserView(u *domain.User) userView {
	v := userView{ID: u.ID, Email: u.Email, Username: u.Username, CreatedAt: u.CreatedAt}
	if u.DisplayName != nil {
		v.DisplayName = *u.DisplayName
	}
	return v
}

// Register creates the account and signs the user straight in, the way the
// web client expects.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email and a password of at least 8 characters are required", nil)
		return
	}

	user, err := h.auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		observability.RecordAuthRegister(r.Context(), "failure")
		response.FromServiceError(w, r, err)
		return
	}

	login, err := h.auth.CreateLoginSession(r.Context(), user)
	if err != nil {
		observability.RecordAuthRegister(r.Context(), "failure")
		response.FromServiceError(w, r, err)
		return
	}

	observability.RecordAuthRegister(r.Context(), "success")
	observability.Audit(r, "auth.register", "user_id", user.ID, "session_id", login.Session.ID)
	h.setCookies(w, login)
	response.JSON(w, r, http.StatusCreated, toUserView(user))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	user, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		observability.RecordAuthLogin(r.Context(), "password", "failure")
		response.FromServiceError(w, r, err)
		return
	}

	login, err := h.auth.CreateLoginSession(r.Context(), user)
	if err != nil {
		observability.RecordAuthLogin(r.Context(), "password", "failure")
		response.FromServiceError(w, r, err)
		return
	}

	observability.RecordAuthLogin(r.Context(), "password", "success")
	observability.Audit(r, "auth.login", "user_id", user.ID, "session_id", login.Session.ID)
	h.setCookies(w, login)
	response.JSON(w, r, http.StatusOK, toUserView(user))
}

// Refresh rotates the refresh token. The session cookie is re-issued
// unchanged; only the access and refresh cookies carry new values.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := security.GetCookie(r, security.CookieRefreshToken)
	sessionSecret := security.GetCookie(r, security.CookieSessionSecret)

	access, refresh, session, err := h.auth.RefreshWithCredentials(r.Context(), refreshToken, sessionSecret)
	if err != nil {
		observability.RecordAuthRefresh(r.Context(), "failure")
		if errors.Is(err, service.ErrAuthInvalid) {
			observability.Audit(r, "auth.refresh.denied")
		}
		response.FromServiceError(w, r, err)
		return
	}

	observability.RecordAuthRefresh(r.Context(), "success")
	observability.Audit(r, "auth.refresh", "session_id", session.ID)
	security.SetAuthCookies(w, h.cookies, access, refresh, sessionSecret, h.accessTTL, h.refreshTTL, session.ExpiresAt)
	w.WriteHeader(http.StatusNoContent)
}

// Logout clears the cookies and revokes the session if the secret matches
// one. A stale or missing secret still returns 204.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionSecret := security.GetCookie(r, security.CookieSessionSecret)
	security.ClearAuthCookies(w, h.cookies)

	if sessionSecret != "" {
		if err := h.auth.RevokeSessionBySecret(r.Context(), sessionSecret); err != nil {
			observability.RecordAuthLogout(r.Context(), "failure")
			response.FromServiceError(w, r, err)
			return
		}
	}

	observability.RecordAuthLogout(r.Context(), "success")
	observability.Audit(r, "auth.logout")
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setCookies(w http.ResponseWriter, login *service.LoginSession) {
	security.SetAuthCookies(w, h.cookies,
		login.AccessToken, login.RefreshToken, login.SessionSecret,
		h.accessTTL, h.refreshTTL, login.Session.ExpiresAt)
}
