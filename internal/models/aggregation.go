package models

import "github.com/shopspring/decimal"

// PortfolioRow is one valued position in a portfolio view
type PortfolioRow struct {
	Ticker   string          `json:"ticker"`
	Shares   decimal.Decimal `json:"shares"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// BreakdownRow extends PortfolioRow with allocation, sector and country weights
type BreakdownRow struct {
	PortfolioRow
	AllocationCash  decimal.Decimal `json:"allocation_cash"`
	AllocationBond  decimal.Decimal `json:"allocation_bond"`
	AllocationStock decimal.Decimal `json:"allocation_stock"`
	Sectors         Weights         `json:"sectors"`
	Countries       Weights         `json:"countries"`
}

// DividendRow extends PortfolioRow with the ticker's dividend schedule
type DividendRow struct {
	PortfolioRow
	Dividends []Dividend `json:"dividends"`
}

// AggregationStatus summarises how many accounts of a request succeeded
type AggregationStatus string

const (
	AggregationComplete AggregationStatus = "complete"
	AggregationPartial  AggregationStatus = "partial"
	AggregationFailed   AggregationStatus = "failed"
)

// AccountError is the per-account failure marker of an aggregation
type AccountError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AccountView is the aggregation output for a single account. Exactly one of
// Positions and Error is meaningful.
type AccountView[R any] struct {
	AccountID   string        `json:"account_id"`
	AccountName string        `json:"account_name"`
	Positions   []R           `json:"positions"`
	Error       *AccountError `json:"error,omitempty"`
}

// AggregationResult is the response of an aggregator for one owner
type AggregationResult[R any] struct {
	Status   AggregationStatus `json:"status"`
	Accounts []AccountView[R]  `json:"accounts"`
}
