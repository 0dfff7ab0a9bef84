package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Amounts are emitted as JSON numbers in API responses and events.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Position represents a ticker holding inside an account.
// Its identity is the (AccountID, CreatedBy, Ticker) tuple.
type Position struct {
	AccountID string          `json:"account_id"`
	CreatedBy string          `json:"created_by"`
	Ticker    string          `json:"ticker"`
	Shares    decimal.Decimal `json:"shares"`
	Enabled   bool            `json:"enabled"`
	Deleted   bool            `json:"deleted"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Key returns the composite identity of the position
func (p *Position) Key() PositionKey {
	return PositionKey{AccountID: p.AccountID, CreatedBy: p.CreatedBy, Ticker: p.Ticker}
}

// Summary strips the administrative fields from the position
func (p *Position) Summary() PositionSummary {
	return PositionSummary{
		AccountID: p.AccountID,
		CreatedBy: p.CreatedBy,
		Ticker:    p.Ticker,
		Shares:    p.Shares,
		CreatedAt: p.CreatedAt,
	}
}

// PositionSummary is the read projection of a position
type PositionSummary struct {
	AccountID string          `json:"account_id"`
	CreatedBy string          `json:"created_by"`
	Ticker    string          `json:"ticker"`
	Shares    decimal.Decimal `json:"shares"`
	CreatedAt time.Time       `json:"created_at"`
}

// PositionKey is the composite identity of a position
type PositionKey struct {
	AccountID string
	CreatedBy string
	Ticker    string
}

// NormalizeTicker upper-cases and trims a ticker symbol
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// PositionUpdate carries a partial position update. Nil fields are left unchanged.
type PositionUpdate struct {
	Shares  *decimal.Decimal `json:"shares,omitempty"`
	Enabled *bool            `json:"enabled,omitempty"`
	Deleted *bool            `json:"deleted,omitempty"`
}

// Empty reports whether the update changes nothing
func (u PositionUpdate) Empty() bool {
	return u.Shares == nil && u.Enabled == nil && u.Deleted == nil
}

// PositionSort is the ordering applied to position searches
type PositionSort string

const (
	SortByTicker    PositionSort = "ticker"
	SortByCreatedAt PositionSort = "created_at"
)

// PositionFilter selects positions. Zero-valued fields are not filtered on.
type PositionFilter struct {
	AccountID  string
	CreatedBy  string
	Ticker     string
	ActiveOnly bool
	OrderBy    PositionSort
}
