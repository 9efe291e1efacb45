package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/yigit/chatsphere/internal/app/models"
	"github.com/yigit/chatsphere/internal/app/models/dto"
	"github.com/yigit/chatsphere/internal/app/repositories"
	"github.com/yigit/chatsphere/internal/pkg/metrics"
	"github.com/yigit/chatsphere/internal/pkg/websocket"
)

// EventPublisher delivers an event to every live session of the recipients.
// Implemented by the websocket router and by the Kafka event bus.
type EventPublisher interface {
	Publish(ctx context.Context, recipients []int64, ev websocket.Event) error
}

// PublishTimeout bounds a single publish so a stalled transport cannot hold up the mutation
// that produced the event
const PublishTimeout = 2 * time.Second

// Dispatcher turns chat mutations into push events for the affected members. Delivery is best
// effort: failures are logged and never returned to the caller.
type Dispatcher struct {
	members   repositories.IChatMemberRepository
	publisher EventPublisher
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(members repositories.IChatMemberRepository, publisher EventPublisher, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		members:   members,
		publisher: publisher,
		timeout:   PublishTimeout,
		metrics:   m,
		logger:    logger,
	}
}

// NotifyNewMessage pushes new_msg to every current member of the chat except the actor
func (d *Dispatcher) NotifyNewMessage(ctx context.Context, msg *models.Message, actorID int64) {
	recipients, err := d.chatRecipients(ctx, msg.ChatID, actorID)
	if err != nil {
		d.logger.Error().Err(err).Int64("chatID", msg.ChatID).Msg("Failed to resolve new_msg recipients")
		return
	}
	d.publish(ctx, recipients, websocket.EventNewMessage, dto.ToMessageResponse(msg))
}

// NotifyNewChat pushes new_chat with the chat's public view to every listed member except the actor
func (d *Dispatcher) NotifyNewChat(ctx context.Context, chat *models.Chat, members []int64, actorID int64) {
	d.publish(ctx, uniqueIDs(members, actorID), websocket.EventNewChat, dto.ToChatResponse(chat))
}

// NotifySeen pushes chat_seen to the other members of the chat
func (d *Dispatcher) NotifySeen(ctx context.Context, chatID, actorID int64, lastSeen time.Time) {
	recipients, err := d.chatRecipients(ctx, chatID, actorID)
	if err != nil {
		d.logger.Error().Err(err).Int64("chatID", chatID).Msg("Failed to resolve chat_seen recipients")
		return
	}
	d.publish(ctx, recipients, websocket.EventChatSeen, dto.ChatSeenEvent{
		UserID:   actorID,
		ChatID:   chatID,
		LastSeen: lastSeen,
	})
}

func (d *Dispatcher) chatRecipients(ctx context.Context, chatID, actorID int64) ([]int64, error) {
	members, err := d.members.ListByChat(context.WithoutCancel(ctx), chatID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return uniqueIDs(ids, actorID), nil
}

func (d *Dispatcher) publish(ctx context.Context, recipients []int64, name string, payload interface{}) {
	if len(recipients) == 0 {
		return
	}

	ev, err := websocket.NewEvent(name, payload)
	if err != nil {
		d.logger.Error().Err(err).Str("event", name).Msg("Failed to encode event")
		return
	}

	// The request may already be gone; the event still goes out.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	if err := d.publisher.Publish(pubCtx, recipients, ev); err != nil {
		d.logger.Warn().Err(err).Str("event", name).Int("recipients", len(recipients)).Msg("Failed to publish event")
		return
	}
	d.metrics.EventPublished(name)
}
