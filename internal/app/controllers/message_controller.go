package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/app/services"
	"github.com/yigit/chatsphere/internal/middleware"
	"github.com/yigit/chatsphere/internal/pkg/helpers"
)

var errNoValidatedBody = errors.New("message body was not validated before the handler")

// MessageController handles the message log of a chat
type MessageController struct {
	chatService services.ChatService
}

// NewMessageController creates a new MessageController
func NewMessageController(chatService services.ChatService) *MessageController {
	return &MessageController{chatService: chatService}
}

// PostMessage godoc
// @Summary Post a message
// @Description Appends a message to the chat and pushes it to the other members
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param chat_id path int true "Chat ID"
// @Param Idempotency-Key header string false "Rejects repeated posts with the same key"
// @Param request body dto.CreateMessageRequest true "Message"
// @Success 201 {object} dto.APIResponse{data=dto.MessageResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse "Caller may not post"
// @Failure 409 {object} dto.ErrorResponse "Duplicate Idempotency-Key"
// @Failure 429 {object} dto.ErrorResponse "Rate limited"
// @Router /chats/{chat_id}/messages [post]
func (c *MessageController) PostMessage(ctx *gin.Context) {
	userID, chatID, ok := callerAndChat(ctx)
	if !ok {
		return
	}
	// The route mounts ValidateRequest; a missing body is a wiring bug, not a client error
	req, ok := middleware.ValidatedBody[dto.CreateMessageRequest](ctx)
	if !ok {
		middleware.HandleAPIError(ctx, errNoValidatedBody)
		return
	}

	msg, err := c.chatService.PostMessage(ctx.Request.Context(), userID, chatID, req)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, dto.APIResponse{Data: msg})
}

// GetMessages godoc
// @Summary Page through messages
// @Description Newest first. Pass nextCursor back as before to continue. Marks the chat as seen.
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param chat_id path int true "Chat ID"
// @Param before query int false "Message ID cursor"
// @Param limit query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.MessagePageResponse}
// @Router /chats/{chat_id}/messages [get]
func (c *MessageController) GetMessages(ctx *gin.Context) {
	userID, chatID, ok := callerAndChat(ctx)
	if !ok {
		return
	}

	var req dto.GetMessagesRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.HandleValidationError(err)))
		return
	}

	page, err := c.chatService.GetMessages(ctx.Request.Context(), userID, chatID, &req)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.APIResponse{Data: page})
}

// GetMessageSeen godoc
// @Summary Whether every other member has seen a message
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param chat_id path int true "Chat ID"
// @Param message_id path int true "Message ID"
// @Success 200 {object} dto.APIResponse{data=dto.MessageSeenResponse}
// @Router /chats/{chat_id}/messages/{message_id}/seen [get]
func (c *MessageController) GetMessageSeen(ctx *gin.Context) {
	userID, chatID, ok := callerAndChat(ctx)
	if !ok {
		return
	}
	messageID, ok := helpers.ParseIDParam(ctx, "message_id")
	if !ok {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(
			dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid message ID").WithField("message_id")))
		return
	}

	seen, err := c.chatService.GetMessageSeen(ctx.Request.Context(), userID, chatID, messageID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.APIResponse{Data: seen})
}
