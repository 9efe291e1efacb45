package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/app/repositories"
	"github.com/yigit/chatsphere/internal/pkg/helpers"
)

// UserService defines the interface for user operations
type UserService interface {
	GetUserByID(ctx context.Context, id int64) (*dto.UserResponse, error)
	GetUsersByFilter(ctx context.Context, filter *dto.UserFilterRequest) (*dto.UserListResponse, error)
}

// userServiceImpl implements UserService
type userServiceImpl struct {
	userRepo repositories.IUserRepository
	logger   zerolog.Logger
}

// NewUserService creates a new UserService
func NewUserService(userRepo repositories.IUserRepository, logger zerolog.Logger) UserService {
	return &userServiceImpl{
		userRepo: userRepo,
		logger:   logger,
	}
}

// GetUserByID retrieves a user by ID
func (s *userServiceImpl) GetUserByID(ctx context.Context, id int64) (*dto.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := dto.ToUserResponse(user)
	return &resp, nil
}

// GetUsersByFilter lists users matching the search term, one page at a time
func (s *userServiceImpl) GetUsersByFilter(ctx context.Context, filter *dto.UserFilterRequest) (*dto.UserListResponse, error) {
	offset, limit := helpers.CalculateOffsetLimit(filter.Page, filter.PageSize)

	users, total, err := s.userRepo.List(ctx, strings.TrimSpace(filter.Search), offset, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list users")
		return nil, err
	}

	resp := &dto.UserListResponse{
		Users:          make([]dto.UserResponse, 0, len(users)),
		PaginationInfo: helpers.NewPaginationInfo(total, offset/limit+1, limit),
	}
	for _, u := range users {
		resp.Users = append(resp.Users, dto.ToUserResponse(u))
	}
	return resp, nil
}
