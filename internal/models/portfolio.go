package models

import "time"

// Portfolio is the companion record kept alongside every account. There is
// exactly one per account, keyed by the account id.
type Portfolio struct {
	AccountID string    `json:"account_id"`
	CreatedBy string    `json:"created_by"`
	Enabled   bool      `json:"enabled"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the portfolio is visible to read paths
func (p *Portfolio) Active() bool {
	return p.Enabled && !p.Deleted
}

// PortfolioUpdate carries a partial portfolio update. Nil fields are left unchanged.
type PortfolioUpdate struct {
	Enabled *bool `json:"enabled,omitempty"`
	Deleted *bool `json:"deleted,omitempty"`
}

// Empty reports whether the update changes nothing
func (u PortfolioUpdate) Empty() bool {
	return u.Enabled == nil && u.Deleted == nil
}

// PortfolioFilter selects portfolios. Zero-valued fields are not filtered on.
type PortfolioFilter struct {
	AccountID  string
	CreatedBy  string
	ActiveOnly bool
}
