package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Blacklist — быстрый стор отзыва access-токенов.
//
// Точечная блокировка ключуется jti (или id сессии); TTL записи равен
// остатку жизни токена, поэтому записи никогда не переживают сами токены
// и стор не растёт. Массовая инвалидация решается иначе: per-user маркер
// "invalidate-before" — любой access-токен с iat раньше маркера отклоняется
// без перечисления jti.
type Blacklist interface {
	// Block блокирует ключ (jti или id сессии) на время ttl.
	Block(ctx context.Context, key string, ttl time.Duration) error
	// IsBlocked сообщает, заблокирован ли хотя бы один из ключей.
	IsBlocked(ctx context.Context, keys ...string) (bool, error)
	// SetInvalidateBefore выставляет пользователю маркер: токены,
	// выпущенные до t, недействительны. ttl — срок жизни маркера
	// (достаточно access TTL с запасом).
	SetInvalidateBefore(ctx context.Context, userID uuid.UUID, t time.Time, ttl time.Duration) error
	// InvalidateBefore возвращает маркер пользователя и признак его наличия.
	InvalidateBefore(ctx context.Context, userID uuid.UUID) (time.Time, bool, error)
}

type redisBlacklist struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisBlacklist создаёт Blacklist поверх Redis.
// Если prefix пустой — используется "auth:bl:".
func NewRedisBlacklist(rdb *redis.Client, prefix string) Blacklist {
	if prefix == "" {
		prefix = "auth:bl:"
	}

	return &redisBlacklist{rdb: rdb, prefix: prefix}
}

func (b *redisBlacklist) tokenKey(key string) string { return b.prefix + "t:" + key }

func (b *redisBlacklist) userKey(userID uuid.UUID) string {
	return b.prefix + "u:" + userID.String()
}

func (b *redisBlacklist) Block(ctx context.Context, key string, ttl time.Duration) error {
	// Токен с неположительным остатком жизни уже мёртв сам по себе.
	if ttl <= 0 {
		return nil
	}

	return b.rdb.Set(ctx, b.tokenKey(key), "1", ttl).Err()
}

func (b *redisBlacklist) IsBlocked(ctx context.Context, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}

	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, b.tokenKey(k))
	}

	n, err := b.rdb.Exists(ctx, full...).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (b *redisBlacklist) SetInvalidateBefore(ctx context.Context, userID uuid.UUID, t time.Time, ttl time.Duration) error {
	return b.rdb.Set(ctx, b.userKey(userID), strconv.FormatInt(t.Unix(), 10), ttl).Err()
}

func (b *redisBlacklist) InvalidateBefore(ctx context.Context, userID uuid.UUID) (time.Time, bool, error) {
	val, err := b.rdb.Get(ctx, b.userKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, false, nil
		}

		return time.Time{}, false, err
	}

	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}

	return time.Unix(unix, 0).UTC(), true, nil
}
