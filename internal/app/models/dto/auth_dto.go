package dto

// LoginRequest represents login credentials
type LoginRequest struct {
	UserName string `json:"userName" binding:"required,notblank"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=5,max=30"`
	UserName string `json:"userName" binding:"required,handle"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// TokenResponse represents JWT token information
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType" example:"Bearer"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// AuthResponse represents successful authentication response
type AuthResponse struct {
	Token TokenResponse `json:"token"`
	User  UserResponse  `json:"user"`
}
