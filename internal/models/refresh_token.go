package models

import (
	"time"

	"github.com/google/uuid"
)

// RevokeReason — причина отзыва refresh-токена.
// Хранится в БД как текст; набор значений закрытый.
type RevokeReason string

const (
	// RevokeReasonManualLogout — пользователь вышел сам (logout).
	RevokeReasonManualLogout RevokeReason = "manual-logout"
	// RevokeReasonRotated — токен заменён новым при успешном refresh.
	RevokeReasonRotated RevokeReason = "rotated"
	// RevokeReasonReuseDetected — повторное предъявление уже отозванного токена;
	// признак возможной кражи, отзываются все сессии пользователя.
	RevokeReasonReuseDetected RevokeReason = "reuse-detected"
	// RevokeReasonSecurityBreach — административная инвалидация всех сессий.
	RevokeReasonSecurityBreach RevokeReason = "security-breach"
	// RevokeReasonExpiredCleanup — пометка при retention-очистке.
	RevokeReasonExpiredCleanup RevokeReason = "expired-cleanup"
)

// RefreshToken — запись refresh-токена (одна запись = одна сессия устройства).
//
// В БД хранится только SHA-256 хэш значения токена; сырое значение
// возвращается клиенту ровно один раз при выпуске и нигде не логируется.
// Отзыв — мягкое состояние (Revoked/RevokedAt/RevokeReason): записи живут
// до retention-очистки, иначе не работает детекция повторного использования.
type RefreshToken struct {
	ID               uuid.UUID
	RefreshTokenHash string
	UserID           uuid.UUID

	// Метаданные устройства, снятые в момент выпуска.
	DeviceLabel string
	IPAddress   string
	UserAgent   string
	Location    *Location

	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt *time.Time

	Revoked      bool
	RevokedAt    *time.Time
	RevokeReason RevokeReason
}

// Active сообщает, действует ли запись на момент now.
// Граница: ExpiresAt == now считается просроченным.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}
