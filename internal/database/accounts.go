package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trogers1052/portfolio-service/internal/models"
)

const accountColumns = `id, name, description, created_by, enabled, deleted, created_at, updated_at`

// AccountExists reports whether any account matches the filter
func (db *DB) AccountExists(ctx context.Context, filter models.AccountFilter) (bool, error) {
	where, args := accountWhere(filter)
	query := `SELECT EXISTS(SELECT 1 FROM accounts` + where + `)`

	var exists bool
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}
	return exists, nil
}

// SearchAccounts retrieves accounts matching the filter, oldest first
func (db *DB) SearchAccounts(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	where, args := accountWhere(filter)
	query := `SELECT ` + accountColumns + ` FROM accounts` + where + ` ORDER BY created_at ASC, id ASC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Desc, &a.CreatedBy, &a.Enabled, &a.Deleted, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return accounts, nil
}

// CreateAccount inserts a new account. The caller assigns the ID.
func (db *DB) CreateAccount(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO accounts (id, name, description, created_by, enabled, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx, query, a.ID, a.Name, a.Desc, a.CreatedBy, a.Enabled, a.Deleted, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s: %w", a.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// UpdateAccount applies a partial update to the account owned by ownerID.
// The write only touches an existing row; ErrNotFound is returned otherwise.
func (db *DB) UpdateAccount(ctx context.Context, id, ownerID string, u models.AccountUpdate) (*models.Account, error) {
	query := `
		UPDATE accounts SET
			name = COALESCE($3, name),
			description = COALESCE($4, description),
			enabled = COALESCE($5, enabled),
			deleted = COALESCE($6, deleted),
			updated_at = $7
		WHERE id = $1 AND created_by = $2
		RETURNING ` + accountColumns

	var a models.Account
	err := db.conn.QueryRowContext(ctx, query, id, ownerID, u.Name, u.Desc, u.Enabled, u.Deleted, time.Now().UTC()).
		Scan(&a.ID, &a.Name, &a.Desc, &a.CreatedBy, &a.Enabled, &a.Deleted, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	return &a, nil
}

func accountWhere(filter models.AccountFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.ID != "" {
		args = append(args, filter.ID)
		conds = append(conds, "id = $"+strconv.Itoa(len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conds = append(conds, "created_by = $"+strconv.Itoa(len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "enabled = true AND deleted = false")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
