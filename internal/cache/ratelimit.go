package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit — параметры одного бакета лимитера: не более MaxAttempts
// за окно Window. Окна независимы по эндпоинтам и ключам.
type Limit struct {
	MaxAttempts int
	Window      time.Duration
}

// Decision — результат одной попытки.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter — счётчик попыток с фиксированным окном.
// Ключ бакета формирует вызывающая сторона (эндпоинт + IP или user id).
type RateLimiter interface {
	// Allow учитывает одну попытку и сообщает, разрешена ли она.
	// При отказе RetryAfter > 0 — остаток текущего окна.
	Allow(ctx context.Context, bucket, key string, limit Limit) (Decision, error)
}

// Инкремент и выставление TTL должны быть одной атомарной операцией,
// иначе упавший между ними клиент оставит счётчик без срока жизни.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

type redisRateLimiter struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisRateLimiter создаёт RateLimiter поверх Redis.
// Если prefix пустой — используется "auth:rl:".
func NewRedisRateLimiter(rdb *redis.Client, prefix string) RateLimiter {
	if prefix == "" {
		prefix = "auth:rl:"
	}

	return &redisRateLimiter{rdb: rdb, prefix: prefix}
}

func (l *redisRateLimiter) Allow(ctx context.Context, bucket, key string, limit Limit) (Decision, error) {
	if limit.MaxAttempts <= 0 || limit.Window <= 0 {
		// Бакет не сконфигурирован — не ограничиваем.
		return Decision{Allowed: true}, nil
	}

	storeKey := l.prefix + bucket + ":" + key

	raw, err := fixedWindowScript.Run(ctx, l.rdb,
		[]string{storeKey},
		limit.Window.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return Decision{}, fmt.Errorf("unexpected redis script response %T", raw)
	}

	count, ok := values[0].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected count type %T", values[0])
	}
	ttlMS, ok := values[1].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected ttl type %T", values[1])
	}

	if count > int64(limit.MaxAttempts) {
		retry := time.Duration(ttlMS) * time.Millisecond
		if retry <= 0 {
			retry = time.Second
		}

		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	return Decision{Allowed: true, Remaining: limit.MaxAttempts - int(count)}, nil
}
