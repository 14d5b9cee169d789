package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/helpdesk-auth/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (хэш refresh-токена).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage — операции чтения справочника пользователей.
// Подсистема аутентификации пользователей не создаёт и не изменяет;
// интерфейс нужен только для входа по паролю и проверки статуса.
type UserStorage interface {
	// UserByEmail находит пользователя по email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RefreshTokenStorage — операции над записями refresh-токенов.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новую запись refresh-токена.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error

	// RefreshTokenByHash находит запись по хэшу токена.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)

	// RevokeRefreshTokenIfActive атомарно отзывает запись, если она ещё не отозвана
	// (test-and-set на флаге revoked). Возвращает:
	//
	//	(true, nil)  — запись была активна и отозвана сейчас;
	//	(false, nil) — запись существует, но уже была отозвана ранее;
	//	(false, ErrNotFound) — записи нет.
	//
	// Ровно один из конкурентных вызовов для одного хэша получает true.
	RevokeRefreshTokenIfActive(ctx context.Context, hash string, reason models.RevokeReason) (bool, error)

	// RevokeSessionByID отзывает запись по id в пределах одного пользователя.
	// Уже отозванные и чужие записи неотличимы от отсутствующих: ErrNotFound.
	RevokeSessionByID(ctx context.Context, userID, sessionID uuid.UUID, reason models.RevokeReason) error

	// RevokeAllForUser отзывает все активные записи пользователя.
	// Возвращает число отозванных записей; повторный вызов — (0, nil).
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, reason models.RevokeReason) (int64, error)

	// ActiveRefreshTokensByUser возвращает активные записи пользователя,
	// упорядоченные по последнему использованию (или созданию).
	ActiveRefreshTokensByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error)

	// TouchRefreshToken обновляет last_used_at записи.
	TouchRefreshToken(ctx context.Context, id uuid.UUID, usedAt time.Time) error

	// PurgeExpiredTokens удаляет записи, у которых expires_at < before.
	// Горизонт before задаётся retention-политикой и длиннее активного окна:
	// просроченные записи хранятся какое-то время ради аудита.
	PurgeExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}
