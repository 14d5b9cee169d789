package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/helpdesk-auth/internal/device"
	"github.com/pribylovaa/helpdesk-auth/internal/models"
	"github.com/pribylovaa/helpdesk-auth/internal/pkg/log"
	"github.com/pribylovaa/helpdesk-auth/internal/storage"
)

// accessClaims — полезная нагрузка access-токена.
// jti (RegisteredClaims.ID) адресует конкретный токен в blacklist;
// sid связывает токен с записью refresh-токена, чтобы отзыв сессии
// гасил и её access-токены.
type accessClaims struct {
	UserID     string   `json:"uid"`
	Email      string   `json:"email"`
	SessionID  string   `json:"sid"`
	Roles      []string `json:"roles,omitempty"`
	ActiveRole string   `json:"active_role,omitempty"`
	jwt.RegisteredClaims
}

// AccessIdentity — результат успешной проверки access-токена.
type AccessIdentity struct {
	UserID     uuid.UUID
	Email      string
	SessionID  uuid.UUID
	JTI        string
	Roles      []string
	ActiveRole string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// generateAccessToken генерирует access-токен, привязанный к сессии sessionID.
func (s *Service) generateAccessToken(ctx context.Context, user *models.User, sessionID uuid.UUID, now time.Time) (string, error) {
	const op = "service.token.generateAccessToken"

	lg := log.From(ctx)

	claims := accessClaims{
		UserID:     user.ID.String(),
		Email:      user.Email,
		SessionID:  sessionID.String(),
		Roles:      user.Roles,
		ActiveRole: user.ActiveRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings(s.cfg.Audience),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		lg.Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// ValidateAccessToken проверяет access-токен: подпись/срок, точечный
// blacklist (jti и id сессии) и per-user маркер инвалидации.
// Ошибка стора отзыва — отказ в авторизации (fail closed).
func (s *Service) ValidateAccessToken(ctx context.Context, tokenStr string) (*AccessIdentity, error) {
	const op = "service.token.ValidateAccessToken"

	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.cfg.Leeway),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience...),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	sid, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if claims.IssuedAt == nil || claims.ExpiresAt == nil || claims.ID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if s.blacklist != nil {
		blocked, err := s.blacklist.IsBlocked(ctx, claims.ID, claims.SessionID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if blocked {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		// Массовая инвалидация: токены, выпущенные не позже маркера, отклоняются.
		marker, found, err := s.blacklist.InvalidateBefore(ctx, uid)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if found && !claims.IssuedAt.Time.After(marker) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
	}

	return &AccessIdentity{
		UserID:     uid,
		Email:      claims.Email,
		SessionID:  sid,
		JTI:        claims.ID,
		Roles:      claims.Roles,
		ActiveRole: claims.ActiveRole,
		IssuedAt:   claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// generateRefreshToken создает новую запись refresh-токена с метаданными
// устройства и возвращает сырое значение (единственный раз, когда оно
// существует вне клиента) вместе с записью.
func (s *Service) generateRefreshToken(ctx context.Context, userID uuid.UUID, meta models.DeviceMeta, now time.Time) (string, *models.RefreshToken, error) {
	const (
		op          = "service.token.generateRefreshToken"
		maxAttempts = 5
	)

	lg := log.From(ctx)

	label := meta.Label
	if label == "" {
		label = device.LabelFromUserAgent(meta.UserAgent)
	}

	// Геоснимок — best-effort: отказ резолвера не блокирует выпуск.
	var location *models.Location
	if meta.IP != "" {
		loc, err := s.geo.Resolve(ctx, meta.IP)
		if err != nil {
			lg.Warn("geo_resolve_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		} else {
			location = loc
		}
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			lg.Error("refresh_rand_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", nil, fmt.Errorf("%s: %w", op, err)
		}
		plain := base64.RawURLEncoding.EncodeToString(b)

		token := &models.RefreshToken{
			ID:               uuid.New(),
			RefreshTokenHash: hashRefreshToken(plain),
			UserID:           userID,
			DeviceLabel:      label,
			IPAddress:        meta.IP,
			UserAgent:        meta.UserAgent,
			Location:         location,
			CreatedAt:        now,
			ExpiresAt:        now.Add(s.cfg.RefreshTokenTTL),
			Revoked:          false,
		}

		if err := s.storage.SaveRefreshToken(ctx, token); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия — пробуем сгенерировать заново.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", nil, fmt.Errorf("%s: %w", op, err)
		}

		return plain, token, nil
	}

	lg.Error("refresh_collision_exceeded",
		slog.String("op", op),
	)

	return "", nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// hashRefreshToken — единственное представление refresh-токена, которое
// попадает в БД: sha256 от сырого значения в base64url.
func hashRefreshToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
