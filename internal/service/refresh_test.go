package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/helpdesk-auth/internal/models"
	"github.com/pribylovaa/helpdesk-auth/internal/storage"
	"github.com/pribylovaa/helpdesk-auth/mocks"
)

func activeRefreshToken(user *models.User, raw string, now time.Time) *models.RefreshToken {
	return &models.RefreshToken{
		ID:               uuid.New(),
		RefreshTokenHash: hashRefreshToken(raw),
		UserID:           user.ID,
		DeviceLabel:      "Chrome on Windows",
		CreatedAt:        now.Add(-time.Hour),
		ExpiresAt:        now.Add(23 * time.Hour),
	}
}

func TestRefresh_OK_RotatesToken(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!")
	now := time.Now().UTC()
	raw := "raw-refresh-token"
	old := activeRefreshToken(user, raw, now)

	st.EXPECT().RefreshTokenByHash(gomock.Any(), old.RefreshTokenHash).Return(old, nil)
	st.EXPECT().
		RevokeRefreshTokenIfActive(gomock.Any(), old.RefreshTokenHash, models.RevokeReasonRotated).
		Return(true, nil)
	st.EXPECT().TouchRefreshToken(gomock.Any(), old.ID, gomock.Any()).Return(nil)
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)

	pair, err := svc.Refresh(context.Background(), raw, testMeta())
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	// Новый токен — новая сессия и новый секрет.
	require.NotEqual(t, old.ID, pair.SessionID)
	require.NotEqual(t, raw, pair.RefreshToken)
}

func TestRefresh_UnknownToken(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().RefreshTokenByHash(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)

	_, err := svc.Refresh(context.Background(), "unknown", testMeta())
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_EmptyToken(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, err := svc.Refresh(context.Background(), "", testMeta())
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_RevokedToken_TriggersReuseCascade(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!")
	now := time.Now().UTC()
	raw := "stolen-token"
	old := activeRefreshToken(user, raw, now)
	old.Revoked = true
	old.RevokeReason = models.RevokeReasonRotated

	st.EXPECT().RefreshTokenByHash(gomock.Any(), old.RefreshTokenHash).Return(old, nil)
	// Каскад: отзываются все сессии пользователя.
	st.EXPECT().
		RevokeAllForUser(gomock.Any(), user.ID, models.RevokeReasonReuseDetected).
		Return(int64(2), nil)

	_, err := svc.Refresh(context.Background(), raw, testMeta())
	// Наружу — тот же ответ, что и для незнакомого токена.
	require.ErrorIs(t, err, ErrInvalidToken)
	require.NotErrorIs(t, err, ErrTokenExpired)
}

func TestRefresh_ExpiredToken_NoCascade(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!")
	now := time.Now().UTC()
	svc.SetClock(func() time.Time { return now })

	raw := "expired-token"
	old := activeRefreshToken(user, raw, now)
	// Граница: expires_at == now считается истёкшим.
	old.ExpiresAt = now

	st.EXPECT().RefreshTokenByHash(gomock.Any(), old.RefreshTokenHash).Return(old, nil)

	_, err := svc.Refresh(context.Background(), raw, testMeta())
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefresh_LostRace_TreatedAsReuse(t *testing.T) {
	t.Parallel()

	// Между чтением и test-and-set запись отозвал конкурентный запрос.
	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!")
	now := time.Now().UTC()
	raw := "contested-token"
	old := activeRefreshToken(user, raw, now)

	st.EXPECT().RefreshTokenByHash(gomock.Any(), old.RefreshTokenHash).Return(old, nil)
	st.EXPECT().
		RevokeRefreshTokenIfActive(gomock.Any(), old.RefreshTokenHash, models.RevokeReasonRotated).
		Return(false, nil)
	st.EXPECT().
		RevokeAllForUser(gomock.Any(), user.ID, models.RevokeReasonReuseDetected).
		Return(int64(1), nil)

	_, err := svc.Refresh(context.Background(), raw, testMeta())
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_ConcurrentRequests_ExactlyOneWins(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!")
	now := time.Now().UTC()
	raw := "race-token"
	old := activeRefreshToken(user, raw, now)

	const workers = 8

	st.EXPECT().RefreshTokenByHash(gomock.Any(), old.RefreshTokenHash).
		Return(old, nil).
		Times(workers)

	// Эмулируем атомарность БД: ровно один вызов получает true.
	var casMu sync.Mutex
	revoked := false
	st.EXPECT().
		RevokeRefreshTokenIfActive(gomock.Any(), old.RefreshTokenHash, models.RevokeReasonRotated).
		DoAndReturn(func(_ context.Context, _ string, _ models.RevokeReason) (bool, error) {
			casMu.Lock()
			defer casMu.Unlock()
			if revoked {
				return false, nil
			}
			revoked = true
			return true, nil
		}).
		Times(workers)

	st.EXPECT().TouchRefreshToken(gomock.Any(), old.ID, gomock.Any()).Return(nil)
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().
		RevokeAllForUser(gomock.Any(), user.ID, models.RevokeReasonReuseDetected).
		Return(int64(0), nil).
		Times(workers - 1)

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background(), raw, testMeta())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var okCount, invalidCount int
	for err := range results {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, ErrInvalidToken):
			invalidCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	require.Equal(t, 1, okCount)
	require.Equal(t, workers-1, invalidCount)
}

func TestRefresh_SuspendedUser(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!")
	user.Status = models.UserStatusSuspended
	now := time.Now().UTC()
	raw := "token-of-suspended"
	old := activeRefreshToken(user, raw, now)

	st.EXPECT().RefreshTokenByHash(gomock.Any(), old.RefreshTokenHash).Return(old, nil)
	st.EXPECT().
		RevokeRefreshTokenIfActive(gomock.Any(), old.RefreshTokenHash, models.RevokeReasonRotated).
		Return(true, nil)
	st.EXPECT().TouchRefreshToken(gomock.Any(), old.ID, gomock.Any()).Return(nil)
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)

	_, err := svc.Refresh(context.Background(), raw, testMeta())
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_TouchFailure_DoesNotBlockRotation(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!")
	now := time.Now().UTC()
	raw := "raw-refresh-token"
	old := activeRefreshToken(user, raw, now)

	st.EXPECT().RefreshTokenByHash(gomock.Any(), old.RefreshTokenHash).Return(old, nil)
	st.EXPECT().
		RevokeRefreshTokenIfActive(gomock.Any(), old.RefreshTokenHash, models.RevokeReasonRotated).
		Return(true, nil)
	st.EXPECT().TouchRefreshToken(gomock.Any(), old.ID, gomock.Any()).Return(errors.New("db hiccup"))
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)

	_, err := svc.Refresh(context.Background(), raw, testMeta())
	require.NoError(t, err)
}

func newSvcWithStorage(t *testing.T) (*Service, *mocks.MockStorage) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	st := mocks.NewMockStorage(ctrl)
	return New(st, testCfg()), st
}

func TestRefresh_StorageError_Propagated(t *testing.T) {
	t.Parallel()

	svc, st := newSvcWithStorage(t)

	st.EXPECT().RefreshTokenByHash(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	_, err := svc.Refresh(context.Background(), "any", testMeta())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidToken)
}
