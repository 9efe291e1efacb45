package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yigit/chatsphere/internal/app/models/dto"
)

// IdempotencyHeader carries the client chosen request key
const IdempotencyHeader = "Idempotency-Key"

// KeyStore claims idempotency keys
type KeyStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Idempotency rejects a repeated Idempotency-Key from the same user with 409. Requests without
// the header pass untouched. A key whose request failed is released so the client can retry.
func Idempotency(store KeyStore, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		userID, ok := GetUserID(c)
		if key == "" || !ok {
			c.Next()
			return
		}
		if len(key) > 128 {
			errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Idempotency key too long").WithField(IdempotencyHeader)
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
			return
		}

		scoped := strconv.FormatInt(userID, 10) + ":" + c.FullPath() + ":" + key
		claimed, err := store.Claim(c.Request.Context(), scoped)
		if err != nil {
			logger.Warn().Err(err).Int64("userID", userID).Msg("Idempotency store unavailable")
			c.Next()
			return
		}
		if !claimed {
			errorDetail := dto.NewErrorDetail(dto.ErrorCodeConflict, "Duplicate request").
				WithSeverity(dto.ErrorSeverityWarning).
				WithField(IdempotencyHeader)
			c.AbortWithStatusJSON(http.StatusConflict, dto.NewErrorResponse(errorDetail))
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if err := store.Release(context.WithoutCancel(c.Request.Context()), scoped); err != nil {
				logger.Warn().Err(err).Int64("userID", userID).Msg("Failed to release idempotency key")
			}
		}
	}
}
