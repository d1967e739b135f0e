// Package events publishes domain events of the file-store bot.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Noha9900/advance-filestorebot/internal/config"
	"github.com/google/uuid"
)

// Event topic constants
const (
	TopicContentCreated   = "filestore.content.created"
	TopicContentDelivered = "filestore.content.delivered"
	TopicRelayOpened      = "filestore.relay.opened"
	TopicRelayClosed      = "filestore.relay.closed"
)

// Event types

type ContentCreated struct {
	Token     string `json:"token"`
	Kind      string `json:"kind"`
	Source    int64  `json:"source_chat"`
	StartMsg  int    `json:"start_msg"`
	EndMsg    int    `json:"end_msg,omitempty"`
	CreatedBy int64  `json:"created_by,omitempty"`
}

type ContentDelivered struct {
	Token     string `json:"token"`
	UserID    int64  `json:"user_id"`
	Attempted int    `json:"attempted"`
	Delivered int    `json:"delivered"`
}

type RelayOpened struct {
	UserID    int64  `json:"user_id"`
	SessionID string `json:"session_id"`
}

type RelayClosed struct {
	UserID     int64  `json:"user_id"`
	SessionID  string `json:"session_id"`
	ByOperator bool   `json:"by_operator"`
}

// Meta describes an envelope.
type Meta struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Envelope is the wire form of every published event.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Wrap builds an envelope with a fresh id.
func Wrap(topic string, event any) Envelope {
	return Envelope{
		Meta: Meta{ID: uuid.NewString(), Topic: topic, OccurredAt: time.Now().UTC()},
		Data: event,
	}
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Emit publishes event and logs, rather than returns, any failure.
func Emit(ctx context.Context, p Publisher, topic string, event any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, topic, event); err != nil {
		slog.Warn("Failed to publish event", "topic", topic, "error", err)
	}
}

// New returns the publisher selected by cfg.Driver.
func New(cfg config.EventsConfig, logger *slog.Logger) (Publisher, error) {
	switch cfg.Driver {
	case config.EventsNone, "":
		return &NoopPublisher{}, nil
	case config.EventsNATS:
		return NewNATSPublisher(cfg.NATSURL)
	case config.EventsAMQP:
		return NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	}
	return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
}
