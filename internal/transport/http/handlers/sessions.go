package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/helpdesk-auth/internal/models"
	"github.com/pribylovaa/helpdesk-auth/internal/service"
	"github.com/pribylovaa/helpdesk-auth/internal/transport/http/apierrors"
	"github.com/pribylovaa/helpdesk-auth/internal/transport/http/middleware"
)

type sessionResponse struct {
	ID          string            `json:"id"`
	DeviceLabel string            `json:"device_label"`
	IPAddress   string            `json:"ip_address"`
	Location    *locationResponse `json:"location,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	LastUsedAt  time.Time         `json:"last_used_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
	IsCurrent   bool              `json:"is_current"`
}

type locationResponse struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
}

type sessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

func sessionToResponse(s models.Session) sessionResponse {
	out := sessionResponse{
		ID:          s.ID.String(),
		DeviceLabel: s.DeviceLabel,
		IPAddress:   s.IPAddress,
		CreatedAt:   s.CreatedAt,
		LastUsedAt:  s.LastUsedAt,
		ExpiresAt:   s.ExpiresAt,
		IsCurrent:   s.IsCurrent,
	}
	if s.Location != nil {
		out.Location = &locationResponse{
			Country: s.Location.Country,
			City:    s.Location.City,
		}
	}
	return out
}

// Sessions — GET /auth/sessions: активные сессии текущего пользователя.
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrInvalidToken)
		return
	}

	sessions, err := h.svc.Sessions(r.Context(), identity.UserID, refreshTokenFrom(r))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out := sessionsResponse{Sessions: make([]sessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, sessionToResponse(s))
	}

	writeJSON(w, http.StatusOK, out)
}

// RevokeSession — DELETE /auth/sessions/{id}.
func (h *Handlers) RevokeSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrInvalidToken)
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, errInvalidArgument())
		return
	}

	if err := h.svc.RevokeSession(r.Context(), identity.UserID, sessionID, refreshTokenFrom(r)); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
