package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/auth"
)

// defaultInviteTTL applies when an invite request does not set a TTL.
const defaultInviteTTL = 72 * time.Hour

// AuthHandler serves the admin console session endpoints.
type AuthHandler struct {
	sessions      *auth.Service
	secureCookies bool
	logger        *zap.Logger
}

// NewAuthHandler creates an AuthHandler. secureCookies should be true
// whenever the console is served over TLS.
func NewAuthHandler(sessions *auth.Service, secureCookies bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, secureCookies: secureCookies, logger: logger.Named("auth_handler")}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /admin/auth/login. On success the session token is set
// as an HttpOnly cookie and also returned in the body for non-browser
// clients.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		Fail(w, h.logger, apperr.BadRequest("email and password are required"))
		return
	}

	result, err := h.sessions.Login(r.Context(), req.Email, req.Password, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	Ok(w, map[string]any{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt,
		"user":      result.User,
	})
}

// Logout handles POST /admin/auth/logout. Always succeeds; the cookie is
// cleared even when the token was already invalid.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := h.sessions.Logout(r.Context(), token); err != nil {
			Fail(w, h.logger, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	NoContent(w)
}

type registerRequest struct {
	InviteToken string `json:"inviteToken"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// Register handles POST /admin/auth/register, redeeming an invite token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}
	if req.InviteToken == "" || req.Email == "" {
		Fail(w, h.logger, apperr.BadRequest("inviteToken and email are required"))
		return
	}

	user, err := h.sessions.Register(r.Context(), req.InviteToken, req.Email, req.Password, req.DisplayName)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Created(w, map[string]any{"user": user})
}

// Me handles GET /admin/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	Ok(w, map[string]any{"user": userFromCtx(r.Context())})
}

type inviteRequest struct {
	Role     string `json:"role"`
	TTLHours int    `json:"ttlHours"`
}

// CreateInvite handles POST /admin/invites. The plaintext token appears in
// this response and nowhere else.
func (h *AuthHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		Fail(w, h.logger, err)
		return
	}
	if req.Role == "" {
		req.Role = "admin"
	}
	ttl := defaultInviteTTL
	if req.TTLHours > 0 {
		ttl = time.Duration(req.TTLHours) * time.Hour
	}

	var createdBy *uuid.UUID
	if user := userFromCtx(r.Context()); user != nil {
		createdBy = &user.ID
	}

	invite, token, err := h.sessions.CreateInvite(r.Context(), req.Role, ttl, createdBy)
	if err != nil {
		Fail(w, h.logger, err)
		return
	}
	Created(w, map[string]any{"invite": invite, "token": token})
}
