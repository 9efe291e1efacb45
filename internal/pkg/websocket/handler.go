package websocket

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Authenticator resolves a bearer credential to a user id
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (int64, error)
}

// Handler upgrades authenticated HTTP requests to push sessions
type Handler struct {
	router     *Router
	auth       Authenticator
	sendBuffer int
	logger     zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(router *Router, auth Authenticator, sendBuffer int, logger zerolog.Logger) *Handler {
	return &Handler{
		router:     router,
		auth:       auth,
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

// HandleConnection validates the credential before upgrading. The credential comes from the
// token query parameter or an Authorization: Bearer header; a failure answers 401 and no session
// is created.
func (h *Handler) HandleConnection(c *gin.Context) {
	credential := credentialFrom(c.Request)
	if credential == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
		return
	}

	userID, err := h.auth.Authenticate(c.Request.Context(), credential)
	if err != nil {
		h.logger.Debug().Err(err).Msg("Rejected websocket credential")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Int64("userID", userID).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	client := NewClient(h.router, conn, userID, h.sendBuffer, h.logger)
	h.router.Register(client)

	go client.writePump()
	go client.readPump()

	h.logger.Info().
		Int64("userID", userID).
		Str("sessionID", client.id).
		Str("remoteAddr", conn.RemoteAddr().String()).
		Msg("WebSocket connection established")
}

func credentialFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}
