package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yigit/chatsphere/internal/app/controllers"
	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/app/services"
	"github.com/yigit/chatsphere/internal/middleware"
	"github.com/yigit/chatsphere/internal/pkg/metrics"
	"github.com/yigit/chatsphere/internal/pkg/websocket"
)

// Controllers groups the HTTP controllers mounted by SetupRouter
type Controllers struct {
	Auth    *controllers.AuthController
	User    *controllers.UserController
	Chat    *controllers.ChatController
	Message *controllers.MessageController
}

// Options carries the middleware dependencies of the route table. PostLimiter and
// IdempotencyKeys are optional.
type Options struct {
	AuthMiddleware  *middleware.AuthMiddleware
	Membership      *services.MembershipService
	WebSocket       *websocket.Handler
	Metrics         *metrics.Metrics
	MetricsPath     string
	PostLimiter     middleware.Limiter
	IdempotencyKeys middleware.KeyStore
	Logger          zerolog.Logger
}

// SetupRouter configures all application routes
func SetupRouter(router *gin.Engine, c Controllers, opts Options) {
	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, dto.APIResponse{Data: gin.H{"status": "ok"}})
	})
	if opts.Metrics != nil && opts.MetricsPath != "" {
		router.GET(opts.MetricsPath, gin.WrapH(opts.Metrics.Handler()))
	}

	// Sessions authenticate with the credential in the query or header on upgrade
	if opts.WebSocket != nil {
		router.GET("/ws", opts.WebSocket.HandleConnection)
	}

	v1 := router.Group("/api/v1")

	// --- Public Auth routes ---
	auth := v1.Group("/auth")
	{
		auth.POST("/register", c.Auth.Register)
		auth.POST("/login", c.Auth.Login)
	}

	// --- Authenticated Routes Group ---
	authenticated := v1.Group("")
	authenticated.Use(opts.AuthMiddleware.JWTAuth())

	users := authenticated.Group("/users")
	{
		users.GET("/me", c.User.GetMe)
		users.GET("", c.User.ListUsers)
		users.GET("/:id", c.User.GetUser)
	}

	authenticated.POST("/chats", c.Chat.CreateChat)
	authenticated.GET("/chats", c.Chat.ListChats)

	chat := authenticated.Group("/chats/:chat_id")
	chat.Use(middleware.ChatAccess(opts.Membership))
	{
		chat.GET("", c.Chat.GetChat)
		chat.GET("/seen", c.Chat.GetSeenSnapshot)
		chat.POST("/seen", c.Chat.MarkSeen)
		chat.GET("/members", c.Chat.ListMembers)
		chat.POST("/members", c.Chat.AddMember)
		chat.DELETE("/members/:user_id", c.Chat.RemoveMember)
		chat.GET("/presence", c.Chat.GetPresence)

		chat.GET("/messages", c.Message.GetMessages)
		chat.GET("/messages/:message_id/seen", c.Message.GetMessageSeen)
		chat.POST("/messages", postMessageChain(c.Message, opts)...)
	}
}

func postMessageChain(mc *controllers.MessageController, opts Options) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{middleware.ChatPostAccess(opts.Membership)}
	if opts.PostLimiter != nil {
		chain = append(chain, middleware.RateLimit("post_message", opts.PostLimiter, opts.Metrics, opts.Logger))
	}
	if opts.IdempotencyKeys != nil {
		chain = append(chain, middleware.Idempotency(opts.IdempotencyKeys, opts.Logger))
	}
	chain = append(chain, middleware.ValidateRequest[dto.CreateMessageRequest](), mc.PostMessage)
	return chain
}
