package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/pribylovaa/helpdesk-auth/internal/models"
	"github.com/pribylovaa/helpdesk-auth/internal/service"
	"github.com/pribylovaa/helpdesk-auth/internal/transport/http/apierrors"
)

const (
	refreshTokenHeader = "X-Refresh-Token"
	refreshTokenCookie = "refresh_token"
)

// Handlers агрегирует зависимости HTTP-слоя.
type Handlers struct {
	svc *service.Service
}

func New(svc *service.Service) *Handlers {
	return &Handlers{svc: svc}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

// refreshTokenFrom достаёт refresh-токен из запроса: сначала заголовок
// X-Refresh-Token, затем cookie refresh_token. Пустая строка — токен
// не предъявлен.
func refreshTokenFrom(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(refreshTokenHeader)); token != "" {
		return token
	}

	if c, err := r.Cookie(refreshTokenCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}

	return ""
}

// deviceMetaFrom снимает сведения об устройстве из запроса.
func deviceMetaFrom(r *http.Request, label string) models.DeviceMeta {
	return models.DeviceMeta{
		Label:     strings.TrimSpace(label),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// clientIP — адрес клиента: первый элемент X-Forwarded-For, затем
// X-Real-Ip, затем RemoteAddr без порта.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}

	if rip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); rip != "" {
		return rip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// errInvalidArgument — локальная ошибка парсинга входа -> 400.
func errInvalidArgument() error {
	return apierrors.ErrInvalidArgument
}
