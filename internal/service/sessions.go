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

// Sessions возвращает активные сессии пользователя, свежие сверху.
// Если rawCurrentRefreshToken непустой, соответствующая сессия
// помечается как текущая.
func (s *Service) Sessions(ctx context.Context, userID uuid.UUID, rawCurrentRefreshToken string) ([]models.Session, error) {
	const op = "service.sessions.Sessions"

	if err := s.checkRateLimit(ctx, "sessions", userID.String(), s.limits.Sessions); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tokens, err := s.storage.ActiveRefreshTokensByUser(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var currentHash string
	if rawCurrentRefreshToken != "" {
		currentHash = hashRefreshToken(rawCurrentRefreshToken)
	}

	sessions := make([]models.Session, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, models.SessionFromToken(&t, currentHash))
	}

	return sessions, nil
}

// RevokeSession отзывает одну сессию пользователя по её идентификатору.
// Текущую сессию отозвать нельзя — для этого есть Logout. Чужие и уже
// отозванные сессии неотличимы от несуществующих.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID, rawCurrentRefreshToken string) error {
	const op = "service.sessions.RevokeSession"

	if rawCurrentRefreshToken != "" {
		current, err := s.storage.RefreshTokenByHash(ctx, hashRefreshToken(rawCurrentRefreshToken))
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, err)
		}

		if current != nil && current.ID == sessionID {
			return fmt.Errorf("%s: %w", op, ErrCannotRevokeCurrentSession)
		}
	}

	if err := s.storage.RevokeSessionByID(ctx, userID, sessionID, models.RevokeReasonManualLogout); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	// Access-токены отозванной сессии гасим по sid — их jti нам неизвестны.
	if s.blacklist != nil {
		if err := s.blacklist.Block(ctx, sessionID.String(), s.cfg.AccessTokenTTL); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	log.From(ctx).Info("session_revoked",
		slog.String("user_id", userID.String()),
		slog.String("session_id", sessionID.String()),
	)

	return nil
}
