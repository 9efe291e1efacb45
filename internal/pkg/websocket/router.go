package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/yigit/chatsphere/internal/pkg/metrics"
)

// MembershipChecker re-validates room joins against the membership store
type MembershipChecker interface {
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
}

// PresenceTracker mirrors room occupancy outside the process, one entry per session. Join is
// also the heartbeat: the router repeats it for every session in a room while it runs.
type PresenceTracker interface {
	Join(ctx context.Context, chatID, userID int64, sessionID string) error
	Leave(ctx context.Context, chatID, userID int64, sessionID string) error
}

// PresenceRefreshInterval is how often Run re-announces the sessions in rooms
const PresenceRefreshInterval = 30 * time.Second

// Router tracks live sessions per user and the single active chat room of each session, and
// delivers events to them.
type Router struct {
	mu sync.RWMutex

	// Sessions keyed by user ID (the user-scoped channel)
	users map[int64]map[*Client]struct{}

	// Sessions keyed by active chat ID
	rooms map[int64]map[*Client]struct{}

	members  MembershipChecker
	presence PresenceTracker
	refresh  time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewRouter creates a new Router. presence and m may be nil.
func NewRouter(members MembershipChecker, presence PresenceTracker, m *metrics.Metrics, logger zerolog.Logger) *Router {
	return &Router{
		users:    make(map[int64]map[*Client]struct{}),
		rooms:    make(map[int64]map[*Client]struct{}),
		members:  members,
		presence: presence,
		refresh:  PresenceRefreshInterval,
		metrics:  m,
		logger:   logger,
	}
}

// Run refreshes presence heartbeats until ctx is done, then disconnects every session
func (r *Router) Run(ctx context.Context) {
	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.refreshPresence(ctx)
		case <-ctx.Done():
			r.shutdown()
			return
		}
	}
}

func (r *Router) refreshPresence(ctx context.Context) {
	if r.presence == nil {
		return
	}

	type entry struct {
		chatID, userID int64
		sessionID      string
	}
	r.mu.RLock()
	var entries []entry
	for chatID, room := range r.rooms {
		for c := range room {
			entries = append(entries, entry{chatID: chatID, userID: c.userID, sessionID: c.id})
		}
	}
	r.mu.RUnlock()

	// A refresh racing a leave can re-add that session; the entry then ages out after the ttl.
	for _, e := range entries {
		if err := r.presence.Join(ctx, e.chatID, e.userID, e.sessionID); err != nil {
			r.logger.Warn().Err(err).Int64("chatID", e.chatID).Msg("Failed to refresh presence")
			return
		}
	}
}

func (r *Router) shutdown() {
	r.mu.RLock()
	var all []*Client
	for _, set := range r.users {
		for c := range set {
			all = append(all, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range all {
		r.Unregister(c)
	}
	r.logger.Info().Int("sessions", len(all)).Msg("Router stopped")
}

// Register subscribes an authenticated session to its user channel
func (r *Router) Register(c *Client) {
	r.mu.Lock()
	set, ok := r.users[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.users[c.userID] = set
	}
	set[c] = struct{}{}
	c.state = StateAuthenticated
	r.mu.Unlock()

	r.metrics.SessionOpened()
	r.logger.Info().
		Str("sessionID", c.id).
		Int64("userID", c.userID).
		Msg("Client registered")
}

// Unregister removes the session from its user channel and room and closes its send queue.
// Calling it more than once is harmless.
func (r *Router) Unregister(c *Client) {
	r.mu.Lock()
	set, ok := r.users[c.userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, ok := set[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.users, c.userID)
	}
	left := r.leaveRoomLocked(c)
	c.state = StateDisconnected
	c.close()
	r.mu.Unlock()

	r.presenceLeave(left, c)
	r.metrics.SessionClosed()
	r.logger.Info().
		Str("sessionID", c.id).
		Int64("userID", c.userID).
		Msg("Client unregistered")
}

// SwitchChat moves the session into chatID's room, leaving the previous one. Membership is
// checked on every call; a non-member join is ignored. chatID 0 only leaves the current room.
func (r *Router) SwitchChat(ctx context.Context, c *Client, chatID int64) {
	if chatID != 0 {
		ok, err := r.members.IsMember(ctx, chatID, c.userID)
		if err != nil {
			r.logger.Warn().Err(err).
				Int64("chatID", chatID).
				Int64("userID", c.userID).
				Msg("Membership check failed, ignoring switch-chat")
			return
		}
		if !ok {
			r.logger.Debug().
				Int64("chatID", chatID).
				Int64("userID", c.userID).
				Msg("Ignoring switch-chat into a chat the user is not a member of")
			return
		}
	}

	r.mu.Lock()
	if (c.state != StateAuthenticated && c.state != StateRoomJoined) || c.activeChat == chatID {
		r.mu.Unlock()
		return
	}
	left := r.leaveRoomLocked(c)
	if chatID != 0 {
		room, ok := r.rooms[chatID]
		if !ok {
			room = make(map[*Client]struct{})
			r.rooms[chatID] = room
		}
		room[c] = struct{}{}
		c.activeChat = chatID
		c.state = StateRoomJoined
	} else {
		c.state = StateAuthenticated
	}
	r.mu.Unlock()

	r.presenceLeave(left, c)
	if chatID != 0 && r.presence != nil {
		if err := r.presence.Join(ctx, chatID, c.userID, c.id); err != nil {
			r.logger.Warn().Err(err).Int64("chatID", chatID).Msg("Failed to record presence")
		}
	}
}

// leaveRoomLocked drops c from its active room and returns the room left, 0 when none
func (r *Router) leaveRoomLocked(c *Client) int64 {
	chatID := c.activeChat
	if chatID == 0 {
		return 0
	}
	c.activeChat = 0
	if room, ok := r.rooms[chatID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(r.rooms, chatID)
		}
	}
	return chatID
}

func (r *Router) presenceLeave(chatID int64, c *Client) {
	if chatID == 0 || r.presence == nil {
		return
	}
	if err := r.presence.Leave(context.Background(), chatID, c.userID, c.id); err != nil {
		r.logger.Warn().Err(err).Int64("chatID", chatID).Msg("Failed to clear presence")
	}
}

// Publish queues ev on every live session of the recipients. Delivery is best effort: a
// session whose buffer is full is disconnected and the event is dropped for it.
func (r *Router) Publish(_ context.Context, recipients []int64, ev Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return err
	}

	var slow []*Client
	r.mu.RLock()
	for _, userID := range recipients {
		for c := range r.users[userID] {
			select {
			case c.send <- payload:
				r.metrics.EventDelivered(ev.Name)
			default:
				r.metrics.EventDropped(ev.Name)
				slow = append(slow, c)
			}
		}
	}
	r.mu.RUnlock()

	for _, c := range slow {
		r.logger.Warn().
			Str("sessionID", c.id).
			Int64("userID", c.userID).
			Str("event", ev.Name).
			Msg("Send buffer full, disconnecting client")
		go r.Unregister(c)
	}
	return nil
}

// RoomViewers returns the distinct users whose sessions have chatID as active room
func (r *Router) RoomViewers(chatID int64) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]struct{})
	for c := range r.rooms[chatID] {
		seen[c.userID] = struct{}{}
	}
	viewers := make([]int64, 0, len(seen))
	for id := range seen {
		viewers = append(viewers, id)
	}
	sort.Slice(viewers, func(i, j int) bool { return viewers[i] < viewers[j] })
	return viewers
}

// Viewers is RoomViewers for callers that read presence through an interface
func (r *Router) Viewers(_ context.Context, chatID int64) ([]int64, error) {
	return r.RoomViewers(chatID), nil
}

// SessionCount returns the number of live sessions of a user
func (r *Router) SessionCount(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// ActiveChat returns the session's current room, 0 when none
func (r *Router) ActiveChat(c *Client) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return c.activeChat
}

// State returns the session's connection state
func (r *Router) State(c *Client) ClientState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return c.state
}
