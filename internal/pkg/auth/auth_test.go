package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
	"golang.org/x/crypto/bcrypt"
)

func newService() *JWTService {
	return NewJWTService(JWTConfig{SecretKey: "test-secret", AccessTokenExp: time.Hour, TokenIssuer: "chatsphere.test"})
}

func TestAuthenticateRoundTrip(t *testing.T) {
	svc := newService()
	token, expiresIn, err := svc.GenerateToken(&models.User{ID: 7, UserName: "alice"})
	require.NoError(t, err)
	assert.EqualValues(t, 3600, expiresIn)

	id, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	id, err = svc.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestAuthenticateRejects(t *testing.T) {
	svc := newService()
	other := NewJWTService(JWTConfig{SecretKey: "other", AccessTokenExp: time.Hour, TokenIssuer: "chatsphere.test"})
	forged, _, err := other.GenerateToken(&models.User{ID: 7})
	require.NoError(t, err)

	for name, credential := range map[string]string{
		"empty":       "",
		"bearer only": "Bearer ",
		"garbage":     "not-a-jwt",
		"wrong key":   forged,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), credential)
			assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
		})
	}
}

func TestExpiredToken(t *testing.T) {
	svc := newService()
	issued := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issued }
	token, _, err := svc.GenerateToken(&models.User{ID: 7})
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestPasswordHash(t *testing.T) {
	BcryptCost = bcrypt.MinCost
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong"))
}
