package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yigit/chatsphere/internal/app/models/dto"
)

const validatedBodyKey = "validatedBody"

// ValidateRequest binds and validates the JSON body into a fresh T for every request and stores
// it for the handler
func ValidateRequest[T any]() gin.HandlerFunc {
	return func(c *gin.Context) {
		body := new(T)
		if err := c.ShouldBindJSON(body); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(dto.HandleValidationError(err)))
			return
		}

		c.Set(validatedBodyKey, body)
		c.Next()
	}
}

// ValidatedBody returns the body stored by ValidateRequest
func ValidatedBody[T any](c *gin.Context) (*T, bool) {
	v, ok := c.Get(validatedBodyKey)
	if !ok {
		return nil, false
	}
	body, ok := v.(*T)
	return body, ok
}
