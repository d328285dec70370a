package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusflow/nodues-api/internal/models"
	"github.com/campusflow/nodues-api/pkg/config"
	appErrors "github.com/campusflow/nodues-api/pkg/errors"
)

type authStoreStub struct {
	byEmail       map[string]*models.User
	byID          map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	revoked       []string
	revokedAll    []string
	passwords     map[string]string
	logs          []*models.AuditLog
}

func newAuthStoreStub() *authStoreStub {
	return &authStoreStub{
		byEmail:       map[string]*models.User{},
		byID:          map[string]*models.User{},
		refreshTokens: map[string]*models.RefreshToken{},
		passwords:     map[string]string{},
	}
}

func (s *authStoreStub) addUser(user *models.User) {
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
}

func (s *authStoreStub) FindByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (s *authStoreStub) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (s *authStoreStub) UpdateLastLogin(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (s *authStoreStub) UpdatePassword(_ context.Context, id, hash string, _ time.Time) error {
	s.passwords[id] = hash
	return nil
}

func (s *authStoreStub) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	s.refreshTokens[token.Token] = token
	return nil
}

func (s *authStoreStub) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := s.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (s *authStoreStub) RevokeRefreshToken(_ context.Context, id string, _ time.Time) error {
	s.revoked = append(s.revoked, id)
	for _, stored := range s.refreshTokens {
		if stored.ID == id {
			stored.Revoked = true
		}
	}
	return nil
}

func (s *authStoreStub) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	s.revokedAll = append(s.revokedAll, userID)
	return nil
}

func (s *authStoreStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Expiration:        time.Hour,
		RefreshExpiration: 24 * time.Hour,
		Issuer:            "nodues-api-test",
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestLoginSuccessIssuesValidToken(t *testing.T) {
	store := newAuthStoreStub()
	store.addUser(&models.User{
		ID:           "user-1",
		Email:        "student@example.edu",
		PasswordHash: mustHash(t, "secret123"),
		FullName:     "Asha Verma",
		Role:         models.RoleStudent,
		Active:       true,
	})
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "student@example.edu",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, models.RoleStudent, resp.User.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Len(t, store.logs, 1)
	assert.Equal(t, models.AuditActionLogin, store.logs[0].Action)
}

func TestLoginWrongPassword(t *testing.T) {
	store := newAuthStoreStub()
	store.addUser(&models.User{
		ID:           "user-1",
		Email:        "student@example.edu",
		PasswordHash: mustHash(t, "secret123"),
		Active:       true,
	})
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "student@example.edu",
		Password: "wrong",
	})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	store := newAuthStoreStub()
	store.addUser(&models.User{
		ID:           "user-1",
		Email:        "student@example.edu",
		PasswordHash: mustHash(t, "secret123"),
		Active:       false,
	})
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "student@example.edu",
		Password: "secret123",
	})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestRefreshTokenRotates(t *testing.T) {
	store := newAuthStoreStub()
	store.addUser(&models.User{ID: "user-1", Email: "student@example.edu", Active: true, Role: models.RoleStudent})
	store.refreshTokens["old-token"] = &models.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		Token:     "old-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	resp, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})

	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, "old-token", resp.RefreshToken)
	assert.Contains(t, store.revoked, "rt-1")
}

func TestRefreshTokenExpired(t *testing.T) {
	store := newAuthStoreStub()
	store.refreshTokens["old-token"] = &models.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		Token:     "old-token",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	store := newAuthStoreStub()
	store.addUser(&models.User{
		ID:           "user-1",
		Email:        "student@example.edu",
		PasswordHash: mustHash(t, "secret123"),
		Active:       true,
	})
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	err := svc.ChangePassword(context.Background(), &models.JWTClaims{UserID: "user-1"}, models.ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "newsecret",
	})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	store := newAuthStoreStub()
	store.addUser(&models.User{
		ID:           "user-1",
		Email:        "student@example.edu",
		PasswordHash: mustHash(t, "secret123"),
		Active:       true,
	})
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	err := svc.ChangePassword(context.Background(), &models.JWTClaims{UserID: "user-1"}, models.ChangePasswordRequest{
		OldPassword: "secret123",
		NewPassword: "newsecret",
	})

	require.NoError(t, err)
	assert.Contains(t, store.revokedAll, "user-1")
	assert.NotEmpty(t, store.passwords["user-1"])

	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.passwords["user-1"]), []byte("newsecret")))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService(newAuthStoreStub(), testJWTConfig(), zap.NewNop())

	_, err := svc.ValidateToken("not.a.jwt")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
