package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/trogers1052/portfolio-service/internal/account"
	"github.com/trogers1052/portfolio-service/internal/models"
)

// messageWriter is the part of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes account and position events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
	log    zerolog.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string, log zerolog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
		log:    log.With().Str("component", "kafka-producer").Str("topic", topic).Logger(),
	}
}

// PublishAccountEvent publishes an account lifecycle event keyed by account id
func (p *Producer) PublishAccountEvent(ctx context.Context, event models.AccountEvent) error {
	return p.publish(ctx, event.AccountID, event.EventType, event)
}

// PublishPositionEvent publishes a position lifecycle event keyed by account id
// so all events of an account land on one partition
func (p *Producer) PublishPositionEvent(ctx context.Context, event models.PositionEvent) error {
	return p.publish(ctx, event.AccountID, event.EventType, event)
}

// AccountHook returns a post-commit hook that publishes account events.
// Publishing is best effort and never fails the account write.
func (p *Producer) AccountHook() account.Hook {
	return account.Hook{
		Name:     "kafka-account-events",
		Required: false,
		Run:      p.PublishAccountEvent,
	}
}

func (p *Producer) publish(ctx context.Context, key, eventType string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	p.log.Debug().Str("event", eventType).Str("key", key).Msg("Event published")
	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
