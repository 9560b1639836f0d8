package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type stubUserRepo struct {
	users map[string]*models.User
}

func (s *stubUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func newTestAuthService(users ...*models.User) *AuthService {
	repo := &stubUserRepo{users: map[string]*models.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return NewAuthService(repo, nil, AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "lms-api"})
}

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := newTestAuthService(&models.User{ID: "u-1", Email: "tina@example.com", Role: models.RoleTutor, Active: true})

	token, err := svc.IssueAccessToken(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, int64(3600), token.ExpiresIn)

	claims, err := svc.ValidateToken(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, models.RoleTutor, claims.Role)
}

func TestAuthServiceIssueRejectsUnknownOrInactiveUser(t *testing.T) {
	svc := newTestAuthService(&models.User{ID: "u-2", Role: models.RoleStudent, Active: false})

	_, err := svc.IssueAccessToken(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.IssueAccessToken(context.Background(), "u-2")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestAuthServiceValidateRejectsBadTokens(t *testing.T) {
	svc := newTestAuthService(&models.User{ID: "u-1", Role: models.RoleAdmin, Active: true})
	token, err := svc.IssueAccessToken(context.Background(), "u-1")
	require.NoError(t, err)

	other := NewAuthService(&stubUserRepo{}, nil, AuthConfig{AccessTokenSecret: "different", Issuer: "lms-api"})
	_, err = other.ValidateToken(token.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(token.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, err = svc.ValidateToken("not-a-token")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceValidateRequiresKnownRole(t *testing.T) {
	svc := newTestAuthService()
	claims := &models.JWTClaims{
		UserID: "u-9",
		Role:   "GUEST",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "lms-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
