package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pribylovaa/helpdesk-auth/internal/models"
	"github.com/pribylovaa/helpdesk-auth/internal/pkg/log"
	"github.com/pribylovaa/helpdesk-auth/internal/storage"
)

// Refresh ротирует refresh-токен: предъявленный токен атомарно отзывается,
// взамен выпускается новая пара. Из конкурентных запросов с одним и тем же
// токеном выигрывает ровно один — остальные попадают на ветку повторного
// использования.
//
// Повторное предъявление уже отозванного токена трактуется как компрометация:
// все сессии пользователя отзываются, наружу уходит тот же ErrInvalidToken,
// что и для незнакомого токена.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string, meta models.DeviceMeta) (*models.TokenPair, error) {
	const op = "service.refresh.Refresh"

	if err := s.checkRateLimit(ctx, "refresh", meta.IP, s.limits.Refresh); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if rawRefreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	tokenHash := hashRefreshToken(rawRefreshToken)

	record, err := s.storage.RefreshTokenByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()

	if record.Revoked {
		if err := s.handleReuse(ctx, record.UserID, record.ID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if !record.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	// Атомарный test-and-set: кто первым перевёл revoked=FALSE -> TRUE,
	// тот и продолжает ротацию. Проигравшие видят won=false.
	won, err := s.storage.RevokeRefreshTokenIfActive(ctx, tokenHash, models.RevokeReasonRotated)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !won {
		if err := s.handleReuse(ctx, record.UserID, record.ID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if err := s.storage.TouchRefreshToken(ctx, record.ID, now); err != nil {
		// Отметка last_used_at — не повод ронять ротацию.
		log.From(ctx).Warn("touch_refresh_token_failed", slog.String("error", err.Error()))
	}

	user, err := s.storage.UserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if user.Status != models.UserStatusActive {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	pair, err := s.issueTokenPair(ctx, user, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("refresh_ok",
		slog.String("user_id", user.ID.String()),
		slog.String("old_session_id", record.ID.String()),
		slog.String("new_session_id", pair.SessionID.String()),
	)

	s.emit(Event{
		Type:      EventTokenRefreshed,
		UserID:    user.ID,
		SessionID: pair.SessionID,
		At:        now,
		Meta:      map[string]string{"rotated_from": record.ID.String()},
	})

	return pair, nil
}

// handleReuse — реакция на предъявление отозванного refresh-токена:
// отзыв всех сессий пользователя и событие для downstream-потребителей.
func (s *Service) handleReuse(ctx context.Context, userID, sessionID uuid.UUID) error {
	const op = "service.refresh.handleReuse"

	revoked, err := s.storage.RevokeAllForUser(ctx, userID, models.RevokeReasonReuseDetected)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	reuseDetectedTotal.Inc()

	log.From(ctx).Warn("refresh_reuse_detected",
		slog.String("user_id", userID.String()),
		slog.String("session_id", sessionID.String()),
		slog.Int64("sessions_revoked", revoked),
	)

	s.emit(Event{
		Type:      EventReuseDetected,
		UserID:    userID,
		SessionID: sessionID,
		At:        s.now(),
	})

	return nil
}
