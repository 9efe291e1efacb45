package models

import (
	"time"
)

// User defines the user model based on the 'users' table
type User struct {
	ID        int64     `json:"id" db:"id" example:"1"`
	UserName  string    `json:"userName" db:"user_name" example:"jdoe"` // Unique lowercase handle
	Name      string    `json:"name" db:"name" example:"John Doe"`
	Password  string    `json:"-" db:"password"` // bcrypt hash, never serialized
	AvatarURL *string   `json:"avatarUrl,omitempty" db:"avatar_url"`
	Bio       *string   `json:"bio,omitempty" db:"bio"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
