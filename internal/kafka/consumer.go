package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/portfolio-service/internal/models"
)

// PriceWriter stores the latest quote of a ticker
type PriceWriter interface {
	SavePrice(ctx context.Context, p models.AssetPrice) error
}

// messageReader is the part of *kafka.Reader the consumer uses
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// PriceConsumer consumes quote updates and writes them to the price store
// the aggregators read from
type PriceConsumer struct {
	reader messageReader
	writer PriceWriter
	log    zerolog.Logger
}

// NewPriceConsumer creates a new Kafka consumer for price events
func NewPriceConsumer(brokers []string, topic, groupID string, writer PriceWriter, log zerolog.Logger) *PriceConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &PriceConsumer{
		reader: reader,
		writer: writer,
		log:    log.With().Str("component", "price-consumer").Logger(),
	}
}

// Start begins consuming messages until ctx is cancelled
func (c *PriceConsumer) Start(ctx context.Context) error {
	c.log.Info().Str("topic", c.reader.Config().Topic).Msg("Starting price consumer")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Price consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.log.Error().Err(err).Msg("Error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.log.Warn().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).
					Msg("Skipping price message")
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *PriceConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.PriceEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal price event: %w", err)
	}

	if event.EventType != models.EventPriceUpdated {
		c.log.Debug().Str("event", event.EventType).Msg("Ignoring event type")
		return nil
	}

	price, err := toAssetPrice(event)
	if err != nil {
		return err
	}

	if err := c.writer.SavePrice(ctx, price); err != nil {
		return fmt.Errorf("failed to save price for %s: %w", price.Ticker, err)
	}

	c.log.Debug().Str("ticker", price.Ticker).Str("price", price.Price.String()).Str("source", event.Source).
		Msg("Price updated")
	return nil
}

// toAssetPrice maps a PriceEvent to the stored quote
func toAssetPrice(event models.PriceEvent) (models.AssetPrice, error) {
	ticker := models.NormalizeTicker(event.Data.Ticker)
	if ticker == "" {
		return models.AssetPrice{}, fmt.Errorf("price event without ticker")
	}

	price, err := decimal.NewFromString(event.Data.Price)
	if err != nil {
		return models.AssetPrice{}, fmt.Errorf("invalid price %s for %s: %w", event.Data.Price, ticker, err)
	}
	if price.IsNegative() {
		return models.AssetPrice{}, fmt.Errorf("negative price %s for %s", event.Data.Price, ticker)
	}

	updatedAt, err := time.Parse(time.RFC3339, event.Timestamp)
	if err != nil {
		updatedAt = time.Now().UTC()
	}

	return models.AssetPrice{
		Ticker:    ticker,
		Price:     price,
		Currency:  strings.ToUpper(strings.TrimSpace(event.Data.Currency)),
		UpdatedAt: updatedAt,
	}, nil
}

// Close closes the Kafka consumer
func (c *PriceConsumer) Close() error {
	return c.reader.Close()
}
