// cache содержит компоненты поверх Redis: чёрный список access-токенов
// с per-user маркером инвалидации и лимитер попыток для чувствительных
// эндпоинтов. Состояние разделяется всеми экземплярами сервиса; никакого
// локального кэширования отзыва нет — иначе вернулась бы гонка, которую
// конструкция как раз исключает.
package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// NewClient создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
func NewClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}
