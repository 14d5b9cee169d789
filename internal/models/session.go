package models

import (
	"time"

	"github.com/google/uuid"
)

// Session — read-модель активной сессии для списка устройств пользователя.
// Строится из RefreshToken; IsCurrent = true ровно для записи, чей хэш
// совпадает с refresh-токеном, предъявленным в текущем запросе.
type Session struct {
	ID          uuid.UUID
	DeviceLabel string
	IPAddress   string
	UserAgent   string
	Location    *Location
	CreatedAt   time.Time
	LastUsedAt  time.Time
	ExpiresAt   time.Time
	IsCurrent   bool
}

// SessionFromToken проецирует запись refresh-токена в Session.
// LastUsedAt подменяется CreatedAt, если токен ещё ни разу не использовался.
func SessionFromToken(t *RefreshToken, currentHash string) Session {
	lastUsed := t.CreatedAt
	if t.LastUsedAt != nil {
		lastUsed = *t.LastUsedAt
	}

	return Session{
		ID:          t.ID,
		DeviceLabel: t.DeviceLabel,
		IPAddress:   t.IPAddress,
		UserAgent:   t.UserAgent,
		Location:    t.Location,
		CreatedAt:   t.CreatedAt,
		LastUsedAt:  lastUsed,
		ExpiresAt:   t.ExpiresAt,
		IsCurrent:   currentHash != "" && t.RefreshTokenHash == currentHash,
	}
}
