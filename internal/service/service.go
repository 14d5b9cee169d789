// service содержит бизнес-логику подсистемы сессий и токенов:
// вход по паролю, ротацию refresh-токенов с детекцией повторного
// использования, выход, реестр сессий устройств и административную
// инвалидацию — поверх интерфейсов из пакетов storage и cache.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что хранилище (storage.Storage) и компоненты cache потокобезопасны.
//     Вся координация конкурентных refresh идёт через атомарность БД
//     (test-and-set на флаге revoked), без внутрипроцессных блокировок.
//   - Ошибки возвращаются сентинелами и далее маппятся транспортом
//     на HTTP-статусы (см. комментарии к переменным ошибок ниже).
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pribylovaa/helpdesk-auth/internal/cache"
	"github.com/pribylovaa/helpdesk-auth/internal/config"
	"github.com/pribylovaa/helpdesk-auth/internal/device"
	"github.com/pribylovaa/helpdesk-auth/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь не найден.
	// Сообщение едино для "нет такого пользователя" и "неверный пароль",
	// чтобы по ответу нельзя было перебирать email'ы. Транспорт: HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountSuspended — учётная запись приостановлена. Транспорт: HTTP 401.
	ErrAccountSuspended = errors.New("account suspended")

	// ErrAccountDeleted — учётная запись удалена. Транспорт: HTTP 401.
	ErrAccountDeleted = errors.New("account deleted")

	// ErrInvalidToken — токен (access/refresh) некорректен, не найден или отозван.
	// Причины намеренно не различаются: отдельный ответ на "отозван" подсказал бы
	// атакующему, что детекция кражи сработала. Транспорт: HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк. Транспорт: HTTP 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrRateLimited — превышен лимит попыток; см. RateLimitedError.
	// Транспорт: HTTP 429 c Retry-After.
	ErrRateLimited = errors.New("rate limited")

	// ErrCannotRevokeCurrentSession — попытка отозвать собственную текущую сессию
	// через реестр; для неё есть logout. Транспорт: HTTP 409.
	ErrCannotRevokeCurrentSession = errors.New("cannot revoke current session")

	// ErrSessionNotFound — сессия не найдена или принадлежит другому пользователю.
	// Транспорт: HTTP 404.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRefreshTokenCollision — исчерпаны попытки сгенерировать уникальный
	// refresh-токен (редчайшие коллизии хэша при сохранении). Транспорт: HTTP 500.
	ErrRefreshTokenCollision = errors.New("refresh token collision")
)

// RateLimitedError несёт время до конца окна лимитера.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Error(), e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// Service описывает бизнес-логику подсистемы сессий.
type Service struct {
	storage   storage.Storage
	cfg       config.AuthConfig
	limits    config.RateLimitsConfig
	blacklist cache.Blacklist
	limiter   cache.RateLimiter
	geo       device.GeoResolver
	events    EventSink

	// now подменяется в тестах для детерминированных границ истечения.
	now func() time.Time
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, cfg config.AuthConfig) *Service {
	return &Service{
		storage: storage,
		cfg:     cfg,
		geo:     device.NoopGeoResolver{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetBlacklist устанавливает чёрный список access-токенов.
// Без него logout/forceInvalidate не могут досрочно гасить access-токены.
func (s *Service) SetBlacklist(b cache.Blacklist) {
	s.blacklist = b
}

// SetRateLimiter устанавливает лимитер попыток и его лимиты по эндпоинтам.
func (s *Service) SetRateLimiter(l cache.RateLimiter, limits config.RateLimitsConfig) {
	s.limiter = l
	s.limits = limits
}

// SetGeoResolver устанавливает резолвер геолокации (опционально).
func (s *Service) SetGeoResolver(g device.GeoResolver) {
	if g != nil {
		s.geo = g
	}
}

// SetEventSink устанавливает приёмник доменных событий (опционально).
func (s *Service) SetEventSink(sink EventSink) {
	s.events = sink
}

// SetClock подменяет источник времени (для тестов).
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// checkRateLimit учитывает попытку в бакете и конвертирует отказ в
// RateLimitedError. Вызывается до любых обращений к паролям и токенам,
// чтобы под нагрузкой не появлялся тайминг-оракул. Ошибка стора — отказ
// (fail closed).
func (s *Service) checkRateLimit(ctx context.Context, bucket, key string, limit config.RateLimitConfig) error {
	if s.limiter == nil {
		return nil
	}

	decision, err := s.limiter.Allow(ctx, bucket, key, cache.Limit{
		MaxAttempts: limit.MaxAttempts,
		Window:      limit.Decay,
	})
	if err != nil {
		return err
	}

	if !decision.Allowed {
		rateLimitedTotal.WithLabelValues(bucket).Inc()
		return &RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	return nil
}
