package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/pkg/metrics"
)

// Limiter counts hits per key within a window
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, int64, error)
	Limit() int64
	Window() time.Duration
}

// RateLimit limits each authenticated user on the wrapped routes. A limiter failure lets the
// request through.
func RateLimit(scope string, limiter Limiter, m *metrics.Metrics, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			c.Next()
			return
		}

		allowed, count, err := limiter.Allow(c.Request.Context(), scope+":"+strconv.FormatInt(userID, 10))
		if err != nil {
			logger.Warn().Err(err).Int64("userID", userID).Msg("Rate limiter unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(limiter.Limit(), 10))
		remaining := limiter.Limit() - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			m.RateLimited()
			c.Header("Retry-After", strconv.Itoa(int(limiter.Window().Seconds())))
			errorDetail := dto.NewErrorDetail(dto.ErrorCodeRateLimited, "Too many requests").
				WithSeverity(dto.ErrorSeverityWarning).
				WithDetails(map[string]int64{"count": count, "limit": limiter.Limit()})
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponse(errorDetail))
			return
		}
		c.Next()
	}
}
