package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/helpdesk-auth/internal/cache"
	"github.com/pribylovaa/helpdesk-auth/internal/config"
	"github.com/pribylovaa/helpdesk-auth/internal/models"
	"github.com/pribylovaa/helpdesk-auth/internal/storage"
	"github.com/pribylovaa/helpdesk-auth/mocks"
)

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "unit-secret",
		AccessTokenTTL:  30 * time.Second,
		RefreshTokenTTL: 24 * time.Hour,
		Issuer:          "helpdesk-auth",
		Audience:        []string{"helpdesk-api"},
	}
}

func newSvc(t *testing.T) (*Service, *mocks.MockStorage, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	svc := New(st, testCfg())
	return svc, st, ctrl
}

// newRedisBlacklist поднимает miniredis и возвращает blacklist поверх него.
func newRedisBlacklist(t *testing.T) (cache.Blacklist, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return cache.NewRedisBlacklist(rdb, ""), mr
}

func mustHashPW(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func activeUser(t *testing.T, pw string) *models.User {
	t.Helper()
	return &models.User{
		ID:           uuid.New(),
		Email:        "agent@example.com",
		PasswordHash: mustHashPW(t, pw),
		Status:       models.UserStatusActive,
		Roles:        []string{"agent"},
		ActiveRole:   "agent",
	}
}

func testMeta() models.DeviceMeta {
	return models.DeviceMeta{
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/126.0",
	}
}

func TestLogin_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!")

	st.EXPECT().UserByEmail(gomock.Any(), "agent@example.com").Return(user, nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)

	tp, uid, err := svc.Login(context.Background(), "Agent@Example.com", "Abcdef1!", testMeta())
	require.NoError(t, err)
	require.Equal(t, user.ID, uid)
	require.NotEmpty(t, tp.AccessToken)
	require.NotEmpty(t, tp.RefreshToken)
	require.NotEqual(t, uuid.Nil, tp.SessionID)
	require.WithinDuration(t, time.Now().Add(svc.cfg.AccessTokenTTL), tp.AccessExpiresAt, 2*time.Second)
}

func TestLogin_DeviceLabelStored(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "Abcdef1!")

	var saved *models.RefreshToken
	st.EXPECT().UserByEmail(gomock.Any(), user.Email).Return(user, nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tok *models.RefreshToken) error {
			saved = tok
			return nil
		})

	_, _, err := svc.Login(context.Background(), user.Email, "Abcdef1!", testMeta())
	require.NoError(t, err)
	require.NotNil(t, saved)
	// Метка не передана — выводится из User-Agent.
	require.Equal(t, "Chrome on Windows", saved.DeviceLabel)
	require.Equal(t, "203.0.113.7", saved.IPAddress)
}

func TestLogin_UnknownEmail_MapsToInvalidCredentials(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().UserByEmail(gomock.Any(), "ghost@example.com").Return(nil, storage.ErrNotFound)

	_, _, err := svc.Login(context.Background(), "ghost@example.com", "whatever1", testMeta())
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_WrongPassword(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "correct-password")
	st.EXPECT().UserByEmail(gomock.Any(), user.Email).Return(user, nil)

	_, _, err := svc.Login(context.Background(), user.Email, "wrong-password", testMeta())
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_InvalidEmailFormat(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, _, err := svc.Login(context.Background(), "not-an-email", "Abcdef1!", testMeta())
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_SuspendedAndDeleted(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	suspended := activeUser(t, "Abcdef1!")
	suspended.Status = models.UserStatusSuspended
	st.EXPECT().UserByEmail(gomock.Any(), suspended.Email).Return(suspended, nil)

	_, _, err := svc.Login(context.Background(), suspended.Email, "Abcdef1!", testMeta())
	require.ErrorIs(t, err, ErrAccountSuspended)

	deleted := activeUser(t, "Abcdef1!")
	deleted.Status = models.UserStatusDeleted
	st.EXPECT().UserByEmail(gomock.Any(), deleted.Email).Return(deleted, nil)

	_, _, err = svc.Login(context.Background(), deleted.Email, "Abcdef1!", testMeta())
	require.ErrorIs(t, err, ErrAccountDeleted)
}

func TestLogin_StatusCheckedAfterPassword(t *testing.T) {
	t.Parallel()

	// Неверный пароль по заблокированному аккаунту не должен раскрывать
	// статус аккаунта.
	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	suspended := activeUser(t, "correct-password")
	suspended.Status = models.UserStatusSuspended
	st.EXPECT().UserByEmail(gomock.Any(), suspended.Email).Return(suspended, nil)

	_, _, err := svc.Login(context.Background(), suspended.Email, "wrong-password", testMeta())
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_StorageError_Propagated(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().UserByEmail(gomock.Any(), "agent@example.com").Return(nil, errors.New("db down"))

	_, _, err := svc.Login(context.Background(), "agent@example.com", "Abcdef1!", testMeta())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogout_RevokesPresentedToken(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	bl, mr := newRedisBlacklist(t)
	svc.SetBlacklist(bl)

	identity := &AccessIdentity{
		UserID:    uuid.New(),
		SessionID: uuid.New(),
		JTI:       uuid.NewString(),
		ExpiresAt: time.Now().Add(20 * time.Second),
	}

	raw := "some-refresh-token"
	st.EXPECT().
		RevokeRefreshTokenIfActive(gomock.Any(), hashRefreshToken(raw), models.RevokeReasonManualLogout).
		Return(true, nil)

	require.NoError(t, svc.Logout(context.Background(), identity, raw, false))

	// jti попал в blacklist на остаток жизни токена.
	require.True(t, mr.Exists("auth:bl:t:"+identity.JTI))
}

func TestLogout_Everywhere(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	identity := &AccessIdentity{
		UserID:    uuid.New(),
		SessionID: uuid.New(),
		JTI:       uuid.NewString(),
		ExpiresAt: time.Now().Add(20 * time.Second),
	}

	st.EXPECT().
		RevokeAllForUser(gomock.Any(), identity.UserID, models.RevokeReasonManualLogout).
		Return(int64(3), nil)

	require.NoError(t, svc.Logout(context.Background(), identity, "ignored", true))
}

func TestLogout_IdempotentOnRevokedToken(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	identity := &AccessIdentity{
		UserID:    uuid.New(),
		SessionID: uuid.New(),
		JTI:       uuid.NewString(),
		ExpiresAt: time.Now().Add(20 * time.Second),
	}

	// Уже отозван — (false, nil); отсутствует — ErrNotFound. Оба случая — успех.
	st.EXPECT().
		RevokeRefreshTokenIfActive(gomock.Any(), gomock.Any(), models.RevokeReasonManualLogout).
		Return(false, nil)
	require.NoError(t, svc.Logout(context.Background(), identity, "revoked-token", false))

	st.EXPECT().
		RevokeRefreshTokenIfActive(gomock.Any(), gomock.Any(), models.RevokeReasonManualLogout).
		Return(false, storage.ErrNotFound)
	require.NoError(t, svc.Logout(context.Background(), identity, "unknown-token", false))
}

func TestForceInvalidateUser_SetsMarkerAndRevokesAll(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	bl, mr := newRedisBlacklist(t)
	svc.SetBlacklist(bl)

	userID := uuid.New()
	st.EXPECT().
		RevokeAllForUser(gomock.Any(), userID, models.RevokeReasonSecurityBreach).
		Return(int64(2), nil)

	require.NoError(t, svc.ForceInvalidateUser(context.Background(), userID))
	require.True(t, mr.Exists("auth:bl:u:"+userID.String()))

	// Все ранее выпущенные access-токены отклоняются маркером.
	user := activeUser(t, "Abcdef1!")
	user.ID = userID
	issuedBefore := time.Now().Add(-2 * time.Second)
	token, err := svc.generateAccessToken(context.Background(), user, uuid.New(), issuedBefore)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestForceInvalidateUser_StorageError(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	userID := uuid.New()
	st.EXPECT().
		RevokeAllForUser(gomock.Any(), userID, models.RevokeReasonSecurityBreach).
		Return(int64(0), errors.New("db down"))

	require.Error(t, svc.ForceInvalidateUser(context.Background(), userID))
}
