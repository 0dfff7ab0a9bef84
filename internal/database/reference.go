package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-service/internal/models"
)

// GetAssetDetails returns static asset data keyed by ticker. Unknown tickers
// are absent from the result.
func (db *DB) GetAssetDetails(ctx context.Context, tickers []string) (map[string]models.AssetDetail, error) {
	query := `
		SELECT ticker, name, currency, allocation_cash, allocation_bond, allocation_stock
		FROM assets
		WHERE ticker = ANY($1)
	`
	rows, err := db.conn.QueryContext(ctx, query, pq.Array(tickers))
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	assets := make(map[string]models.AssetDetail, len(tickers))
	for rows.Next() {
		var a models.AssetDetail
		if err := rows.Scan(&a.Ticker, &a.Name, &a.Currency, &a.AllocationCash, &a.AllocationBond, &a.AllocationStock); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets[a.Ticker] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assets: %w", err)
	}
	return assets, nil
}

// GetPrices returns the latest price per ticker
func (db *DB) GetPrices(ctx context.Context, tickers []string) (map[string]models.AssetPrice, error) {
	query := `
		SELECT ticker, price, currency, updated_at
		FROM asset_prices
		WHERE ticker = ANY($1)
	`
	rows, err := db.conn.QueryContext(ctx, query, pq.Array(tickers))
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[string]models.AssetPrice, len(tickers))
	for rows.Next() {
		var p models.AssetPrice
		var currency sql.NullString
		if err := rows.Scan(&p.Ticker, &p.Price, &currency, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if currency.Valid {
			p.Currency = currency.String
		}
		prices[p.Ticker] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prices: %w", err)
	}
	return prices, nil
}

// SavePrice inserts or replaces the latest price of a ticker
func (db *DB) SavePrice(ctx context.Context, p models.AssetPrice) error {
	query := `
		INSERT INTO asset_prices (ticker, price, currency, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ticker) DO UPDATE SET
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			updated_at = EXCLUDED.updated_at
	`
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	var currency sql.NullString
	if p.Currency != "" {
		currency = sql.NullString{String: p.Currency, Valid: true}
	}

	if _, err := db.conn.ExecContext(ctx, query, p.Ticker, p.Price, currency, updatedAt); err != nil {
		return fmt.Errorf("failed to save price: %w", err)
	}
	return nil
}

// GetSectorWeights returns sector weights per ticker
func (db *DB) GetSectorWeights(ctx context.Context, tickers []string) (map[string]models.Weights, error) {
	return db.weights(ctx, "asset_sectors", "sector", tickers)
}

// GetCountryWeights returns country weights per ticker
func (db *DB) GetCountryWeights(ctx context.Context, tickers []string) (map[string]models.Weights, error) {
	return db.weights(ctx, "asset_countries", "country", tickers)
}

// weights reads a (ticker, category, weight) table. Every requested ticker is
// present in the result. table and column are constants, never user input.
func (db *DB) weights(ctx context.Context, table, column string, tickers []string) (map[string]models.Weights, error) {
	query := `SELECT ticker, ` + column + `, weight FROM ` + table + ` WHERE ticker = ANY($1)`

	rows, err := db.conn.QueryContext(ctx, query, pq.Array(tickers))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]models.Weights, len(tickers))
	for _, t := range tickers {
		out[t] = models.Weights{}
	}
	for rows.Next() {
		var ticker, category string
		var weight decimal.Decimal
		if err := rows.Scan(&ticker, &category, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		if out[ticker] == nil {
			out[ticker] = models.Weights{}
		}
		out[ticker][category] = weight
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", table, err)
	}
	return out, nil
}

// GetDividends returns the dividend schedule per ticker, oldest ex-date first.
// Every requested ticker is present; tickers without dividends map to an empty slice.
func (db *DB) GetDividends(ctx context.Context, tickers []string) (map[string][]models.Dividend, error) {
	query := `
		SELECT ticker, ex_date, pay_date, amount, currency
		FROM asset_dividends
		WHERE ticker = ANY($1)
		ORDER BY ticker ASC, ex_date ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, pq.Array(tickers))
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.Dividend, len(tickers))
	for _, t := range tickers {
		out[t] = []models.Dividend{}
	}
	for rows.Next() {
		var d models.Dividend
		var payDate sql.NullTime
		if err := rows.Scan(&d.Ticker, &d.ExDate, &payDate, &d.Amount, &d.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
		}
		if payDate.Valid {
			d.PayDate = &payDate.Time
		}
		out[d.Ticker] = append(out[d.Ticker], d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dividends: %w", err)
	}
	return out, nil
}
