package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum control message size allowed from peer
	maxMessageSize = 4 * 1024

	// Time allowed for the membership check behind switch-chat
	switchTimeout = 5 * time.Second
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientState is the lifecycle position of a session
type ClientState int

const (
	StateConnecting ClientState = iota
	StateAuthenticated
	StateRoomJoined
	StateDisconnected
)

func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateRoomJoined:
		return "room_joined"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Client is a middleman between one websocket connection and the router
type Client struct {
	id     string
	router *Router

	// The WebSocket connection; nil for detached clients
	conn *websocket.Conn

	// Buffered channel of outbound encoded events
	send      chan []byte
	closeOnce sync.Once

	userID int64

	// Guarded by router.mu
	activeChat int64
	state      ClientState

	logger zerolog.Logger
}

// NewClient creates a session for an authenticated user. conn may be nil when the caller
// consumes Messages directly.
func NewClient(router *Router, conn *websocket.Conn, userID int64, buffer int, logger zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		router: router,
		conn:   conn,
		send:   make(chan []byte, buffer),
		userID: userID,
		state:  StateConnecting,
		logger: logger.With().Str("sessionID", id).Int64("userID", userID).Logger(),
	}
}

// ID returns the session id
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user
func (c *Client) UserID() int64 { return c.userID }

// Messages exposes the outbound queue. It is closed when the session is unregistered.
func (c *Client) Messages() <-chan []byte { return c.send }

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// handleControl applies one inbound control message
func (c *Client) handleControl(raw []byte) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.logger.Debug().Err(err).Msg("Ignoring malformed client message")
		return
	}

	switch ev.Name {
	case ControlSwitchChat:
		var req SwitchChat
		if len(ev.Data) > 0 {
			if err := json.Unmarshal(ev.Data, &req); err != nil {
				c.logger.Debug().Err(err).Msg("Ignoring malformed switch-chat")
				return
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), switchTimeout)
		defer cancel()
		c.router.SwitchChat(ctx, c, req.ChatID)
	default:
		c.logger.Debug().Str("event", ev.Name).Msg("Ignoring unknown client event")
	}
}

// readPump pumps control messages from the websocket connection to the router
func (c *Client) readPump() {
	defer func() {
		c.router.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info().Msg("WebSocket closed normally")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("Unexpected WebSocket close")
			} else {
				c.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			break
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.handleControl(message)
	}
}

// writePump pumps events from the router to the websocket connection. Each event is written
// as its own text frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The router closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
