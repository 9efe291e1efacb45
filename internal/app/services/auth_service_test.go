package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/app/repositories/memory"
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
	"github.com/yigit/chatsphere/internal/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

func newAuthService(t *testing.T) (*AuthService, UserService) {
	t.Helper()
	auth.BcryptCost = bcrypt.MinCost
	repos := memory.NewRepositories()
	jwt := auth.NewJWTService(auth.JWTConfig{SecretKey: "secret", AccessTokenExp: time.Hour, TokenIssuer: "test"})
	return NewAuthService(repos.Users, jwt, zerolog.Nop()), NewUserService(repos.Users, zerolog.Nop())
}

func TestRegisterLoginAuthenticate(t *testing.T) {
	svc, users := newAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, &dto.RegisterRequest{Name: "Alice Liddell", UserName: "Alice", Password: "wonderland"})
	require.NoError(t, err)
	assert.Equal(t, "alice", reg.User.UserName)
	assert.Equal(t, "Bearer", reg.Token.TokenType)

	_, err = svc.Register(ctx, &dto.RegisterRequest{Name: "Other Alice", UserName: "alice", Password: "wonderland"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = svc.Login(ctx, &dto.LoginRequest{UserName: "alice", Password: "nope"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = svc.Login(ctx, &dto.LoginRequest{UserName: "nobody", Password: "wonderland"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	login, err := svc.Login(ctx, &dto.LoginRequest{UserName: "ALICE", Password: "wonderland"})
	require.NoError(t, err)

	id, err := svc.Authenticate(ctx, login.Token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, id)

	me, err := users.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", me.Name)

	_, err = svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestListUsersPaginates(t *testing.T) {
	svc, users := newAuthService(t)
	ctx := context.Background()
	for _, handle := range []string{"anna", "annie", "bert"} {
		_, err := svc.Register(ctx, &dto.RegisterRequest{Name: "Name " + handle, UserName: handle, Password: "password1"})
		require.NoError(t, err)
	}

	list, err := users.GetUsersByFilter(ctx, &dto.UserFilterRequest{Search: "ann", Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, list.TotalItems)
	assert.Equal(t, 2, list.TotalPages)
	require.Len(t, list.Users, 1)
}
