package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/helpdesk-auth/internal/models"
	"github.com/pribylovaa/helpdesk-auth/internal/storage"
)

// refreshColumns — общий список колонок для SELECT-запросов по refresh_tokens.
const refreshColumns = `
        id, token_hash, user_id,
        device_label, ip_address, user_agent,
        geo_city, geo_country, geo_lat, geo_lon, geo_tz,
        created_at, expires_at, last_used_at,
        revoked, revoked_at, revoke_reason
`

// SaveRefreshToken сохраняет новую запись refresh-токена в БД.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	query := `
        INSERT INTO refresh_tokens(
            id, token_hash, user_id,
            device_label, ip_address, user_agent,
            geo_city, geo_country, geo_lat, geo_lon, geo_tz,
            created_at, expires_at, revoked
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    `

	var city, country, tz *string
	var lat, lon *float64
	if loc := token.Location; loc != nil {
		city, country, tz = &loc.City, &loc.Country, &loc.Timezone
		lat, lon = &loc.Lat, &loc.Lon
	}

	_, err := s.db.Exec(ctx, query,
		token.ID,
		token.RefreshTokenHash,
		token.UserID,
		token.DeviceLabel,
		token.IPAddress,
		token.UserAgent,
		city, country, lat, lon, tz,
		token.CreatedAt,
		token.ExpiresAt,
		token.Revoked,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RefreshTokenByHash находит запись refresh-токена по её хэшу.
func (s *Storage) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByHash"

	query := `
        SELECT ` + refreshColumns + `
        FROM refresh_tokens
        WHERE token_hash = $1
    `

	token, err := scanRefreshToken(s.db.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// RevokeRefreshTokenIfActive пытается отозвать запись, если она ещё не отозвана.
// Возвращает:
//
//	(true, nil)  — запись была активна и успешно отозвана сейчас;
//	(false, nil) — запись существует, но уже была отозвана;
//	(false, ErrNotFound) — запись не найдена.
func (s *Storage) RevokeRefreshTokenIfActive(ctx context.Context, hash string, reason models.RevokeReason) (bool, error) {
	const op = "storage.postgres.RevokeRefreshTokenIfActive"

	const upd = `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = now(), revoke_reason = $2
		WHERE token_hash = $1 AND revoked = FALSE
		RETURNING user_id
	`

	var userID uuid.UUID
	err := s.db.QueryRow(ctx, upd, hash, string(reason)).Scan(&userID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	const sel = `
		SELECT revoked
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	var revoked bool
	err = s.db.QueryRow(ctx, sel, hash).Scan(&revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, nil
}

// RevokeSessionByID отзывает запись по id в пределах пользователя userID.
// Чужие, отсутствующие и уже отозванные записи дают одинаковый ErrNotFound,
// чтобы нельзя было перебором id узнать о чужих сессиях.
func (s *Storage) RevokeSessionByID(ctx context.Context, userID, sessionID uuid.UUID, reason models.RevokeReason) error {
	const op = "storage.postgres.RevokeSessionByID"

	query := `
        UPDATE refresh_tokens
        SET revoked = TRUE, revoked_at = now(), revoke_reason = $3
        WHERE id = $1 AND user_id = $2 AND revoked = FALSE
    `

	cmdTag, err := s.db.Exec(ctx, query, sessionID, userID, string(reason))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// RevokeAllForUser отзывает все активные записи пользователя.
func (s *Storage) RevokeAllForUser(ctx context.Context, userID uuid.UUID, reason models.RevokeReason) (int64, error) {
	const op = "storage.postgres.RevokeAllForUser"

	query := `
        UPDATE refresh_tokens
        SET revoked = TRUE, revoked_at = now(), revoke_reason = $2
        WHERE user_id = $1 AND revoked = FALSE
    `

	cmdTag, err := s.db.Exec(ctx, query, userID, string(reason))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}

// ActiveRefreshTokensByUser возвращает активные записи пользователя,
// упорядоченные по COALESCE(last_used_at, created_at) DESC.
func (s *Storage) ActiveRefreshTokensByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
	const op = "storage.postgres.ActiveRefreshTokensByUser"

	query := `
        SELECT ` + refreshColumns + `
        FROM refresh_tokens
        WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
        ORDER BY COALESCE(last_used_at, created_at) DESC
    `

	rows, err := s.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var tokens []models.RefreshToken
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tokens = append(tokens, *token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tokens, nil
}

// TouchRefreshToken обновляет время последнего использования записи.
func (s *Storage) TouchRefreshToken(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	const op = "storage.postgres.TouchRefreshToken"

	query := `
        UPDATE refresh_tokens
        SET last_used_at = $2
        WHERE id = $1
    `

	if _, err := s.db.Exec(ctx, query, id, usedAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// PurgeExpiredTokens удаляет записи, просроченные раньше before.
func (s *Storage) PurgeExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.postgres.PurgeExpiredTokens"

	query := `
        DELETE FROM refresh_tokens
        WHERE expires_at < $1
    `

	cmdTag, err := s.db.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}

// scanRefreshToken читает одну строку refresh_tokens в модель.
func scanRefreshToken(row pgx.Row) (*models.RefreshToken, error) {
	var (
		token        models.RefreshToken
		city         *string
		country      *string
		tz           *string
		lat, lon     *float64
		revokeReason *string
	)

	err := row.Scan(
		&token.ID,
		&token.RefreshTokenHash,
		&token.UserID,
		&token.DeviceLabel,
		&token.IPAddress,
		&token.UserAgent,
		&city, &country, &lat, &lon, &tz,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.LastUsedAt,
		&token.Revoked,
		&token.RevokedAt,
		&revokeReason,
	)
	if err != nil {
		return nil, err
	}

	if city != nil || country != nil {
		loc := &models.Location{}
		if city != nil {
			loc.City = *city
		}
		if country != nil {
			loc.Country = *country
		}
		if lat != nil {
			loc.Lat = *lat
		}
		if lon != nil {
			loc.Lon = *lon
		}
		if tz != nil {
			loc.Timezone = *tz
		}
		token.Location = loc
	}

	if revokeReason != nil {
		token.RevokeReason = models.RevokeReason(*revokeReason)
	}

	return &token, nil
}
