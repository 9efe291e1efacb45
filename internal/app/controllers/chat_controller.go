package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/app/services"
	"github.com/yigit/chatsphere/internal/middleware"
	"github.com/yigit/chatsphere/internal/pkg/apperrors"
	"github.com/yigit/chatsphere/internal/pkg/helpers"
)

// ChatController handles chat and membership operations
type ChatController struct {
	chatService services.ChatService
	logger      zerolog.Logger
}

// NewChatController creates a new ChatController
func NewChatController(chatService services.ChatService, logger zerolog.Logger) *ChatController {
	return &ChatController{
		chatService: chatService,
		logger:      logger,
	}
}

// callerAndChat reads the ids stored by the auth and chat access middleware
func callerAndChat(ctx *gin.Context) (userID, chatID int64, ok bool) {
	userID, ok = middleware.GetUserID(ctx)
	if !ok {
		middleware.HandleAPIError(ctx, apperrors.ErrUnauthorized)
		return 0, 0, false
	}
	chatID, ok = middleware.GetChatID(ctx)
	if !ok {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(
			dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid chat ID").WithField("chat_id")))
		return 0, 0, false
	}
	return userID, chatID, true
}

// CreateChat godoc
// @Summary Create a chat
// @Description Creates a direct chat with one other user, or a named group chat with two or more others
// @Tags chats
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateChatRequest true "Chat to create"
// @Success 201 {object} dto.APIResponse{data=dto.ChatResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse "A member does not exist"
// @Failure 409 {object} dto.ErrorResponse "Direct chat already exists"
// @Router /chats [post]
func (c *ChatController) CreateChat(ctx *gin.Context) {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		middleware.HandleAPIError(ctx, apperrors.ErrUnauthorized)
		return
	}

	var req dto.CreateChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.HandleValidationError(err)))
		return
	}

	chat, err := c.chatService.CreateChat(ctx.Request.Context(), userID, &req)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, dto.APIResponse{Data: chat})
}

// ListChats godoc
// @Summary List my chats
// @Description Summary rows for every chat the caller belongs to, most recently active first
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=[]dto.ChatSummaryResponse}
// @Router /chats [get]
func (c *ChatController) ListChats(ctx *gin.Context) {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		middleware.HandleAPIError(ctx, apperrors.ErrUnauthorized)
		return
	}

	rows, err := c.chatService.ListChats(ctx.Request.Context(), userID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.APIResponse{Data: rows})
}

// GetChat godoc
// @Summary Get one chat summary
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param chat_id path int true "Chat ID"
// @Success 200 {object} dto.APIResponse{data=dto.ChatSummaryResponse}
// @Failure 403 {object} dto.ErrorResponse "Not a member"
// @Failure 404 {object} dto.ErrorResponse
// @Router /chats/{chat_id} [get]
func (c *ChatController) GetChat(ctx *gin.Context) {
	userID, chatID, ok := callerAndChat(ctx)
	if !ok {
		return
	}

	row, err := c.chatService.GetChat(ctx.Request.Context(), userID, chatID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.APIResponse{Data: row})
}

// GetSeenSnapshot godoc
// @Summary Chat seen snapshot
// @Description Earliest watermark among the other members and the member total
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param chat_id path int true "Chat ID"
// @Success 200 {object} dto.APIResponse{data=dto.ChatSeenSnapshotResponse}
// @Router /chats/{chat_id}/seen [get]
func (c *ChatController) GetSeenSnapshot(ctx *gin.Context) {
	userID, chatID, ok := callerAndChat(ctx)
	if !ok {
		return
	}

	snapshot, err := c.chatService.GetSeenSnapshot(ctx.Request.Context(), userID, chatID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.APIResponse{Data: snapshot})
}

// MarkSeen godoc
// @Summary Mark chat as seen
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param chat_id path int true "Chat ID"
// @Success 200 {object} dto.APIResponse{data=dto.MarkSeenResponse}
// @Router /chats/{chat_id}/seen [post]
func (c *ChatController) MarkSeen(ctx *gin.Context) {
	userID, chatID, ok := callerAndChat(ctx)
	if !ok {
		return
	}

	resp, err := c.chatService.MarkSeen(ctx.Request.Context(), userID, chatID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.APIResponse{Data: resp})
}

// ListMembers godoc
// @Summary List chat members
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param chat_id path int true "Chat ID"
// @Success 200 {object} dto.APIResponse{data=[]dto.ChatMemberResponse}
// @Router /chats/{chat_id}/members [get]
func (c *ChatController) ListMembers(ctx *gin.Context) {
	userID, chatID, ok := callerAndChat(ctx)
	if !ok {
		return
	}

	members, err := c.chatService.ListMembers(ctx.Request.Context(), userID, chatID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.APIResponse{Data: members})
}

// AddMember godoc
// @Summary Add a member to a group chat
// @Tags chats
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param chat_id path int true "Chat ID"
// @Param request body dto.AddMemberRequest true "Member to add"
// @Success 201 {object} dto.APIResponse{data=dto.ChatMemberResponse}
// @Failure 403 {object} dto.ErrorResponse "Caller is not an admin"
// @Failure 409 {object} dto.ErrorResponse "Already a member"
// @Router /chats/{chat_id}/members [post]
func (c *ChatController) AddMember(ctx *gin.Context) {
	userID, chatID, ok := callerAndChat(ctx)
	if !ok {
		return
	}

	var req dto.AddMemberRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.HandleValidationError(err)))
		return
	}

	member, err := c.chatService.AddMember(ctx.Request.Context(), userID, chatID, &req)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, dto.APIResponse{Data: member})
}

// RemoveMember godoc
// @Summary Remove a member, or leave the chat
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param chat_id path int true "Chat ID"
// @Param user_id path int true "User ID"
// @Success 200 {object} dto.APIResponse{data=dto.SuccessResponse}
// @Router /chats/{chat_id}/members/{user_id} [delete]
func (c *ChatController) RemoveMember(ctx *gin.Context) {
	userID, chatID, ok := callerAndChat(ctx)
	if !ok {
		return
	}
	target, ok := helpers.ParseIDParam(ctx, "user_id")
	if !ok {
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(
			dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid user ID").WithField("user_id")))
		return
	}

	if err := c.chatService.RemoveMember(ctx.Request.Context(), userID, chatID, target); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	c.logger.Info().Int64("chatID", chatID).Int64("userID", target).Int64("actorID", userID).Msg("Chat member removed")
	ctx.JSON(http.StatusOK, dto.APIResponse{Data: dto.SuccessResponse{Message: "member removed"}})
}

// GetPresence godoc
// @Summary Users currently viewing the chat
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param chat_id path int true "Chat ID"
// @Success 200 {object} dto.APIResponse{data=dto.PresenceResponse}
// @Router /chats/{chat_id}/presence [get]
func (c *ChatController) GetPresence(ctx *gin.Context) {
	userID, chatID, ok := callerAndChat(ctx)
	if !ok {
		return
	}

	presence, err := c.chatService.GetPresence(ctx.Request.Context(), userID, chatID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.APIResponse{Data: presence})
}
