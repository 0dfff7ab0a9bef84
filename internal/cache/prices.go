package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-service/internal/config"
	"github.com/trogers1052/portfolio-service/internal/models"
)

const keyPrefix = "price:"

// PriceStore keeps the latest quote per ticker in Redis hashes
// (price:<TICKER> -> price, currency, updated_at).
type PriceStore struct {
	client *redis.Client
}

// NewClient connects to Redis and verifies the connection with a ping
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewPriceStore creates a price store on an existing client
func NewPriceStore(client *redis.Client) *PriceStore {
	return &PriceStore{client: client}
}

func priceKey(ticker string) string {
	return keyPrefix + ticker
}

// GetPrices reads the quotes of all tickers in one pipeline. Tickers without a
// stored quote are absent from the result.
func (s *PriceStore) GetPrices(ctx context.Context, tickers []string) (map[string]models.AssetPrice, error) {
	tickers = lo.Uniq(tickers)
	if len(tickers) == 0 {
		return map[string]models.AssetPrice{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(tickers))
	for _, t := range tickers {
		cmds[t] = pipe.HGetAll(ctx, priceKey(t))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read prices from redis: %w", err)
	}

	prices := make(map[string]models.AssetPrice, len(tickers))
	for ticker, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		p, err := parsePrice(ticker, fields)
		if err != nil {
			return nil, err
		}
		prices[ticker] = p
	}
	return prices, nil
}

// SavePrice stores the latest quote of a ticker
func (s *PriceStore) SavePrice(ctx context.Context, p models.AssetPrice) error {
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	err := s.client.HSet(ctx, priceKey(p.Ticker), map[string]any{
		"price":      p.Price.String(),
		"currency":   p.Currency,
		"updated_at": updatedAt.Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to save price for %s: %w", p.Ticker, err)
	}
	return nil
}

func parsePrice(ticker string, fields map[string]string) (models.AssetPrice, error) {
	price, err := decimal.NewFromString(fields["price"])
	if err != nil {
		return models.AssetPrice{}, fmt.Errorf("invalid price %q for %s: %w", fields["price"], ticker, err)
	}

	p := models.AssetPrice{
		Ticker:   ticker,
		Price:    price,
		Currency: fields["currency"],
	}
	if raw := fields["updated_at"]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			p.UpdatedAt = ts
		}
	}
	return p, nil
}
