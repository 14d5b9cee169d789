package handlers

import (
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/helpdesk-auth/internal/models"
	"github.com/pribylovaa/helpdesk-auth/internal/service"
	"github.com/pribylovaa/helpdesk-auth/internal/transport/http/apierrors"
	"github.com/pribylovaa/helpdesk-auth/internal/transport/http/middleware"
)

type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DeviceLabel string `json:"device_label,omitempty"`
}

type tokenPairResponse struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	TokenType       string    `json:"token_type"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	SessionID       string    `json:"session_id"`
}

func tokenPairToResponse(p *models.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:     p.AccessToken,
		RefreshToken:    p.RefreshToken,
		TokenType:       "Bearer",
		AccessExpiresAt: p.AccessExpiresAt,
		SessionID:       p.SessionID.String(),
	}
}

// Login — POST /auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, errInvalidArgument())
		return
	}

	pair, _, err := h.svc.Login(r.Context(), in.Email, in.Password, deviceMetaFrom(r, in.DeviceLabel))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairToResponse(pair))
}

// Refresh — POST /auth/refresh. Токен берём из X-Refresh-Token / cookie,
// тело запроса не требуется.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	rawToken := refreshTokenFrom(r)
	if rawToken == "" {
		apierrors.WriteError(w, r, service.ErrInvalidToken)
		return
	}

	pair, err := h.svc.Refresh(r.Context(), rawToken, deviceMetaFrom(r, ""))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairToResponse(pair))
}

type logoutRequest struct {
	Everywhere bool `json:"everywhere,omitempty"`
}

// Logout — POST /auth/logout (требует Bearer). Тело опционально.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrInvalidToken)
		return
	}

	var in logoutRequest
	if r.ContentLength > 0 {
		if err := decodeStrict(r, &in); err != nil {
			apierrors.WriteError(w, r, errInvalidArgument())
			return
		}
	}

	if err := h.svc.Logout(r.Context(), identity, refreshTokenFrom(r), in.Everywhere); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type invalidateRequest struct {
	UserID string `json:"user_id"`
}

// ForceInvalidate — POST /auth/invalidate (требует роль admin).
func (h *Handlers) ForceInvalidate(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrInvalidToken)
		return
	}

	if !slices.Contains(identity.Roles, "admin") {
		apierrors.WriteError(w, r, apierrors.ErrForbidden)
		return
	}

	var in invalidateRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, errInvalidArgument())
		return
	}

	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		apierrors.WriteError(w, r, errInvalidArgument())
		return
	}

	if err := h.svc.ForceInvalidateUser(r.Context(), userID); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
