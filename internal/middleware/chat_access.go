package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/app/services"
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
)

const chatIDKey = "chatID"

// ChatAccess resolves the caller's membership in the :chat_id chat once per request. Missing
// chats answer 404 and non-members 403. The membership travels in the request context so the
// services do not load it again.
func ChatAccess(membership *services.MembershipService) gin.HandlerFunc {
	return chatAccess(membership, models.MemberRole.CanRead)
}

// ChatPostAccess is ChatAccess for routes that write messages; subscribers are rejected
func ChatPostAccess(membership *services.MembershipService) gin.HandlerFunc {
	return chatAccess(membership, models.MemberRole.CanPost)
}

func chatAccess(membership *services.MembershipService, allowed func(models.MemberRole) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
		if err != nil || chatID <= 0 {
			errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid chat ID").WithField("chat_id")
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
			return
		}

		userID, ok := GetUserID(c)
		if !ok {
			HandleAPIError(c, apperrors.ErrUnauthorized)
			return
		}

		member, err := membership.Require(c.Request.Context(), chatID, userID)
		if err != nil {
			HandleAPIError(c, err)
			return
		}
		if !allowed(member.Role) {
			HandleAPIError(c, apperrors.NewForbiddenError("your role does not allow this action"))
			return
		}

		c.Set(chatIDKey, chatID)
		c.Request = c.Request.WithContext(services.WithMembership(c.Request.Context(), member))
		c.Next()
	}
}

// GetChatID returns the chat id resolved by ChatAccess
func GetChatID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(chatIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
