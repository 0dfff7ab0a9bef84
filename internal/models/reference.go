package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetDetail is static reference data for a ticker
type AssetDetail struct {
	Ticker          string          `json:"ticker"`
	Name            string          `json:"name"`
	Currency        string          `json:"currency"`
	AllocationCash  decimal.Decimal `json:"allocation_cash"`
	AllocationBond  decimal.Decimal `json:"allocation_bond"`
	AllocationStock decimal.Decimal `json:"allocation_stock"`
}

// AssetPrice is the latest known price of a ticker. Currency is empty when
// the price source does not report one.
type AssetPrice struct {
	Ticker    string          `json:"ticker"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency,omitempty"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
}

// Weights maps a category (sector or country) to its weight in a ticker
type Weights map[string]decimal.Decimal

// Dividend is a single dividend distribution of a ticker
type Dividend struct {
	Ticker   string          `json:"ticker"`
	ExDate   time.Time       `json:"ex_date"`
	PayDate  *time.Time      `json:"pay_date,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// ResolveCurrency returns the price currency when present, else the asset currency
func ResolveCurrency(price AssetPrice, asset AssetDetail) string {
	if price.Currency != "" {
		return price.Currency
	}
	return asset.Currency
}
