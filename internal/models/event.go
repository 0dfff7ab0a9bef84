package models

import "time"

// Event type constants
const (
	EventAccountCreated  = "ACCOUNT_CREATED"
	EventAccountUpdated  = "ACCOUNT_UPDATED"
	EventAccountDeleted  = "ACCOUNT_DELETED"
	EventPositionAdded   = "POSITION_ADDED"
	EventPositionUpdated = "POSITION_UPDATED"
	EventPositionDeleted = "POSITION_DELETED"
	EventPriceUpdated    = "PRICE_UPDATED"
)

// AccountEvent is published after an account write commits
type AccountEvent struct {
	EventType string    `json:"event_type"`
	Account   *Account  `json:"account,omitempty"`
	AccountID string    `json:"account_id"`
	Timestamp time.Time `json:"timestamp"`
}

// PositionEvent is published after a position write commits
type PositionEvent struct {
	EventType string    `json:"event_type"`
	Position  *Position `json:"position,omitempty"`
	AccountID string    `json:"account_id"`
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceEvent is a quote update consumed from the price feed
type PriceEvent struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Data      PriceEventData `json:"data"`
}

// PriceEventData is the quote payload of a PriceEvent
type PriceEventData struct {
	Ticker   string `json:"ticker"`
	Price    string `json:"price"`
	Currency string `json:"currency,omitempty"`
}
