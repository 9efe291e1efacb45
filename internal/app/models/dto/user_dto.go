package dto

import "github.com/yigit/chatsphere/internal/app/models"

// UserResponse represents public user information. Password hashes are never included.
type UserResponse struct {
	ID        int64   `json:"id"`
	UserName  string  `json:"userName"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
	Bio       *string `json:"bio,omitempty"`
}

// UserBasicResponse is the minimal author info attached to pushed messages
type UserBasicResponse struct {
	ID        int64   `json:"id"`
	UserName  string  `json:"userName"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// UserFilterRequest represents user listing parameters
type UserFilterRequest struct {
	Search   string `form:"search"`
	Page     int    `form:"page,default=1" binding:"min=1"`
	PageSize int    `form:"pageSize,default=20" binding:"min=1,max=100"`
}

// UserListResponse represents a list of users with pagination
type UserListResponse struct {
	Users []UserResponse `json:"users"`
	PaginationInfo
}

// PaginationInfo contains offset pagination metadata
type PaginationInfo struct {
	CurrentPage int   `json:"currentPage"`
	PageSize    int   `json:"pageSize"`
	TotalItems  int64 `json:"totalItems"`
	TotalPages  int   `json:"totalPages"`
}

// ToUserResponse converts a user model to its public view
func ToUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		UserName:  u.UserName,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Bio:       u.Bio,
	}
}

// ToUserBasicResponse converts a user model to author info
func ToUserBasicResponse(u *models.User) *UserBasicResponse {
	if u == nil {
		return nil
	}
	return &UserBasicResponse{
		ID:        u.ID,
		UserName:  u.UserName,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}
}
