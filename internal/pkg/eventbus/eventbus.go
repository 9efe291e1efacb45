// Package eventbus carries push events between API instances over Kafka. Every instance
// publishes to one topic and consumes it with its own consumer group, so each event reaches
// the router of every instance and the router delivers it to whichever sessions it holds.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/yigit/chatsphere/internal/pkg/websocket"
)

// Config holds the Kafka settings
type Config struct {
	Brokers     []string
	Topic       string
	GroupPrefix string
}

// Deliverer hands an event to the local sessions of the recipients
type Deliverer interface {
	Publish(ctx context.Context, recipients []int64, ev websocket.Event) error
}

// Envelope is the Kafka record value
type Envelope struct {
	Recipients []int64         `json:"recipients"`
	Event      websocket.Event `json:"event"`
	Origin     string          `json:"origin"`
	SentAt     time.Time       `json:"sentAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Bus publishes events to Kafka and feeds consumed events to the local router
type Bus struct {
	writer     messageWriter
	reader     messageReader
	local      Deliverer
	instanceID string
	logger     zerolog.Logger
}

// New creates a Bus with a Kafka writer and a reader in a consumer group unique to this instance
func New(cfg Config, local Deliverer, logger zerolog.Logger) *Bus {
	instanceID := uuid.NewString()
	writer := newWriter(cfg, logger)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupPrefix + "-" + instanceID,
		StartOffset:    kafka.LastOffset,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: time.Second,
	})
	return newBus(writer, reader, local, instanceID, logger)
}

// newWriter returns an async writer: WriteMessages only enqueues, so a slow or unreachable
// broker never holds up the request that produced the event. Failures surface in Completion.
func newWriter(cfg Config, logger zerolog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireNone,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn().Err(err).Int("events", len(messages)).Msg("Kafka write failed, events dropped")
			}
		},
	}
}

func newBus(w messageWriter, r messageReader, local Deliverer, instanceID string, logger zerolog.Logger) *Bus {
	return &Bus{
		writer:     w,
		reader:     r,
		local:      local,
		instanceID: instanceID,
		logger:     logger.With().Str("instance", instanceID).Logger(),
	}
}

// Publish writes the event to the topic. Delivery to sessions happens when the record is consumed.
func (b *Bus) Publish(ctx context.Context, recipients []int64, ev websocket.Event) error {
	value, err := json.Marshal(Envelope{
		Recipients: recipients,
		Event:      ev,
		Origin:     b.instanceID,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	var key []byte
	if len(recipients) > 0 {
		key = []byte(strconv.FormatInt(recipients[0], 10))
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value, Time: time.Now()}); err != nil {
		return fmt.Errorf("failed to write event to kafka: %w", err)
	}
	return nil
}

// Run consumes the topic until ctx is cancelled
func (b *Bus) Run(ctx context.Context) error {
	for {
		m, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			b.logger.Warn().Err(err).Msg("Kafka fetch failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var env Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			b.logger.Error().Err(err).Str("key", string(m.Key)).Msg("Dropping undecodable event")
		} else if err := b.local.Publish(ctx, env.Recipients, env.Event); err != nil {
			b.logger.Warn().Err(err).Str("event", env.Event.Name).Msg("Local delivery failed")
		}

		if err := b.reader.CommitMessages(ctx, m); err != nil {
			b.logger.Warn().Err(err).Msg("Kafka commit failed")
		}
	}
}

// Close flushes the writer and leaves the consumer group
func (b *Bus) Close() error {
	return errors.Join(b.writer.Close(), b.reader.Close())
}
