// Package amqp publishes session state changes to RabbitMQ.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"live-quiz-service/internal/domain"
)

const (
	updatedEvent = "quiz.session.updated"
	removedEvent = "quiz.session.removed"
)

// Event is the message body published for every accepted mutation.
type Event struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionId"`
	Version   uint64           `json:"version,omitempty"`
	Phase     domain.Phase     `json:"phase,omitempty"`
	Snapshot  *domain.Snapshot `json:"snapshot,omitempty"`
	SentAt    time.Time        `json:"sentAt"`
}

// Publisher is the subset of a channel the sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// EventSink turns session snapshots into events on a durable queue.
type EventSink struct {
	publisher Publisher
	queue     string
	now       func() time.Time
}

func NewEventSink(publisher Publisher, queue string) *EventSink {
	return &EventSink{publisher: publisher, queue: queue, now: time.Now}
}

func (s *EventSink) SaveSession(ctx context.Context, snap domain.Snapshot) error {
	return s.publish(ctx, Event{
		Type:      updatedEvent,
		SessionID: snap.ID,
		Version:   snap.Version,
		Phase:     snap.Phase,
		Snapshot:  &snap,
	})
}

func (s *EventSink) RemoveSession(ctx context.Context, sessionID string) error {
	return s.publish(ctx, Event{Type: removedEvent, SessionID: sessionID})
}

func (s *EventSink) publish(ctx context.Context, event Event) error {
	event.SentAt = s.now()
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = s.publisher.PublishWithContext(
		ctx,
		"",      // exchange
		s.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         event.Type,
			MessageId:    fmt.Sprintf("%s:%d", event.SessionID, event.Version),
			Timestamp:    event.SentAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
