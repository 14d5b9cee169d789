package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/helpdesk-auth/internal/models"
	"github.com/pribylovaa/helpdesk-auth/internal/pkg/log"
	"github.com/pribylovaa/helpdesk-auth/internal/pkg/redact"
	"github.com/pribylovaa/helpdesk-auth/internal/storage"
)

// Login выполняет вход по email+пароль и открывает новую сессию устройства.
// Существующие сессии не трогает. Лимитер опрашивается до любого обращения
// к БД и до сравнения пароля.
func (s *Service) Login(ctx context.Context, email, password string, meta models.DeviceMeta) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.Login"

	if err := s.checkRateLimit(ctx, "login", meta.IP, s.limits.Login); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	normEmail, err := normalizeEmail(email)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	switch user.Status {
	case models.UserStatusActive:
	case models.UserStatusSuspended:
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrAccountSuspended)
	case models.UserStatusDeleted:
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrAccountDeleted)
	default:
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.issueTokenPair(ctx, user, meta)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("login_ok",
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(user.Email)),
		slog.String("device", meta.Label),
	)

	s.emit(Event{
		Type:      EventUserLoggedIn,
		UserID:    user.ID,
		SessionID: pair.SessionID,
		At:        s.now(),
		Meta:      map[string]string{"ip": meta.IP},
	})

	return pair, user.ID, nil
}

// Logout завершает текущую сессию (или все сессии пользователя при
// everywhere=true) и гасит предъявленный access-токен через blacklist
// на остаток его жизни.
//
// Отзыв refresh-токена идемпотентен: уже отозванная или отсутствующая
// запись не считается ошибкой — logout должен проходить всегда.
func (s *Service) Logout(ctx context.Context, identity *AccessIdentity, rawRefreshToken string, everywhere bool) error {
	const op = "service.auth.Logout"

	lg := log.From(ctx)

	if err := s.checkRateLimit(ctx, "logout", identity.UserID.String(), s.limits.Logout); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()

	if s.blacklist != nil {
		if err := s.blacklist.Block(ctx, identity.JTI, identity.ExpiresAt.Sub(now)); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if everywhere {
		revoked, err := s.storage.RevokeAllForUser(ctx, identity.UserID, models.RevokeReasonManualLogout)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		lg.Info("logout_everywhere",
			slog.String("user_id", identity.UserID.String()),
			slog.Int64("sessions_revoked", revoked),
		)
	} else if rawRefreshToken != "" {
		_, err := s.storage.RevokeRefreshTokenIfActive(ctx, hashRefreshToken(rawRefreshToken), models.RevokeReasonManualLogout)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, err)
		}
	} else {
		lg.Warn("logout_without_refresh_token",
			slog.String("user_id", identity.UserID.String()),
		)
	}

	s.emit(Event{
		Type:      EventUserLoggedOut,
		UserID:    identity.UserID,
		SessionID: identity.SessionID,
		At:        now,
		Meta:      map[string]string{"everywhere": fmt.Sprintf("%t", everywhere)},
	})

	return nil
}

// ForceInvalidateUser — административная инвалидация: выставляет per-user
// маркер "invalidate-before" (мгновенно гасит все выпущенные access-токены)
// и отзывает все refresh-токены пользователя.
func (s *Service) ForceInvalidateUser(ctx context.Context, userID uuid.UUID) error {
	const op = "service.auth.ForceInvalidateUser"

	now := s.now()

	if s.blacklist != nil {
		// Маркер живёт дольше access TTL с запасом на рассинхрон часов.
		ttl := s.cfg.AccessTokenTTL + 5*time.Minute
		if err := s.blacklist.SetInvalidateBefore(ctx, userID, now, ttl); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	revoked, err := s.storage.RevokeAllForUser(ctx, userID, models.RevokeReasonSecurityBreach)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	forcedInvalidationsTotal.Inc()

	log.From(ctx).Warn("user_force_invalidated",
		slog.String("user_id", userID.String()),
		slog.Int64("sessions_revoked", revoked),
	)

	s.emit(Event{
		Type:   EventUserInvalidated,
		UserID: userID,
		At:     now,
	})

	return nil
}

// issueTokenPair создаёт запись refresh-токена и access-токен к ней.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User, meta models.DeviceMeta) (*models.TokenPair, error) {
	const op = "service.auth.issueTokenPair"

	now := s.now()

	plain, record, err := s.generateRefreshToken(ctx, user.ID, meta, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := s.generateAccessToken(ctx, user, record.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    plain,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
		SessionID:       record.ID,
	}, nil
}

// checkPassword сравнивает пароль с bcrypt-хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// normalizeEmail проверяет базовый формат email и приводит к нижнему регистру.
func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", errors.New("empty email")
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", err
	}

	return strings.ToLower(email), nil
}
