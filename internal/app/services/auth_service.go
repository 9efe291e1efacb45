package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/app/repositories"
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
	"github.com/yigit/chatsphere/internal/pkg/auth"
	"github.com/yigit/chatsphere/internal/pkg/validation"
)

// AuthService handles authentication operations
type AuthService struct {
	userRepo   repositories.IUserRepository
	jwtService *auth.JWTService
	logger     zerolog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo repositories.IUserRepository, jwtService *auth.JWTService, logger zerolog.Logger) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		jwtService: jwtService,
		logger:     logger,
	}
}

// Register creates a user with a unique lowercase handle and returns a token for it
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	if !validation.ValidHandle(req.UserName) {
		return nil, apperrors.NewValidationError("userName must be 3 to 20 letters or digits")
	}
	if !validation.ValidDisplayName(req.Name) {
		return nil, apperrors.NewValidationError("name must be 5 to 30 characters")
	}
	userName := validation.NormalizeHandle(req.UserName)
	name := strings.TrimSpace(req.Name)

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		UserName:  userName,
		Name:      name,
		Password:  hashed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.NewConflictError("userName is already taken")
		}
		return nil, err
	}

	s.logger.Info().Int64("userID", user.ID).Str("userName", user.UserName).Msg("User registered")
	return s.issue(user)
}

// Login checks the credentials and returns a fresh token
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	userName := validation.NormalizeHandle(req.UserName)
	user, err := s.userRepo.GetByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, apperrors.ErrResourceNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if !auth.CheckPassword(user.Password, req.Password) {
		s.logger.Debug().Str("userName", userName).Msg("Login with wrong password")
		return nil, apperrors.ErrInvalidCredentials
	}
	return s.issue(user)
}

// Authenticate resolves a credential to the user id it was issued for
func (s *AuthService) Authenticate(ctx context.Context, credential string) (int64, error) {
	return s.jwtService.Authenticate(ctx, credential)
}

func (s *AuthService) issue(user *models.User) (*dto.AuthResponse, error) {
	token, expiresIn, err := s.jwtService.GenerateToken(user)
	if err != nil {
		return nil, err
	}
	return &dto.AuthResponse{
		Token: dto.TokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   expiresIn,
		},
		User: dto.ToUserResponse(user),
	}, nil
}
