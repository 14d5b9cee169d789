package models

import (
	"time"

	"github.com/google/uuid"
)

// UserStatus — состояние учётной записи в справочнике пользователей.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusDeleted   UserStatus = "deleted"
)

// User — проекция пользователя из внешнего справочника.
// Сервису нужны только идентичность, статус, хэш пароля и роли;
// профиль и прочие атрибуты остаются за пределами подсистемы.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Status       UserStatus
	Roles        []string
	ActiveRole   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
