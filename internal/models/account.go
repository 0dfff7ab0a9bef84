package models

import "time"

// Account is a user-owned container of positions
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Desc      string    `json:"desc"`
	CreatedBy string    `json:"created_by"`
	Enabled   bool      `json:"enabled"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the account is visible to read paths
func (a *Account) Active() bool {
	return a.Enabled && !a.Deleted
}

// AccountUpdate carries a partial account update. Nil fields are left unchanged.
type AccountUpdate struct {
	Name    *string `json:"name,omitempty"`
	Desc    *string `json:"desc,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
	Deleted *bool   `json:"deleted,omitempty"`
}

// Empty reports whether the update changes nothing
func (u AccountUpdate) Empty() bool {
	return u.Name == nil && u.Desc == nil && u.Enabled == nil && u.Deleted == nil
}

// AccountFilter selects accounts. Zero-valued fields are not filtered on.
type AccountFilter struct {
	ID         string
	CreatedBy  string
	ActiveOnly bool
}
