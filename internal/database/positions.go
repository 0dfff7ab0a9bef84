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

const positionColumns = `account_id, created_by, ticker, shares, enabled, deleted, created_at, updated_at`

// PositionExists reports whether an active position exists for the key
func (db *DB) PositionExists(ctx context.Context, key models.PositionKey) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM positions
			WHERE account_id = $1 AND created_by = $2 AND ticker = $3
			  AND enabled = true AND deleted = false
		)
	`
	var exists bool
	err := db.conn.QueryRowContext(ctx, query, key.AccountID, key.CreatedBy, key.Ticker).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check position existence: %w", err)
	}
	return exists, nil
}

// SearchPositions retrieves positions matching the filter
func (db *DB) SearchPositions(ctx context.Context, filter models.PositionFilter) ([]*models.Position, error) {
	var conds []string
	var args []any
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, column+" = $"+strconv.Itoa(len(args)))
	}
	add("account_id", filter.AccountID)
	add("created_by", filter.CreatedBy)
	add("ticker", filter.Ticker)
	if filter.ActiveOnly {
		conds = append(conds, "enabled = true AND deleted = false")
	}

	query := `SELECT ` + positionColumns + ` FROM positions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	switch filter.OrderBy {
	case models.SortByCreatedAt:
		query += " ORDER BY created_at ASC, ticker ASC"
	default:
		query += " ORDER BY ticker ASC, created_at ASC"
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := []*models.Position{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}

	return positions, nil
}

// CreatePosition inserts a new active position. ErrAlreadyExists is returned
// when an active position with the same key is already stored.
func (db *DB) CreatePosition(ctx context.Context, p *models.Position) error {
	query := `
		INSERT INTO positions (account_id, created_by, ticker, shares, enabled, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, false, $5, $6)
	`
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx, query, p.AccountID, p.CreatedBy, p.Ticker, p.Shares, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("position %s/%s: %w", p.AccountID, p.Ticker, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create position: %w", err)
	}

	p.Enabled = true
	p.Deleted = false
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// UpsertPosition inserts a position or overwrites the shares of the active
// position with the same key
func (db *DB) UpsertPosition(ctx context.Context, p *models.Position) error {
	query := `
		INSERT INTO positions (account_id, created_by, ticker, shares, enabled, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, false, $5, $5)
		ON CONFLICT (account_id, created_by, ticker) WHERE enabled AND NOT deleted DO UPDATE SET
			shares = EXCLUDED.shares,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + positionColumns

	row := db.conn.QueryRowContext(ctx, query, p.AccountID, p.CreatedBy, p.Ticker, p.Shares, time.Now().UTC())
	stored, err := scanPosition(row)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}

	*p = *stored
	return nil
}

// UpdatePosition applies a partial update to the active position with the
// given key. ErrNotFound is returned when no active row matched.
func (db *DB) UpdatePosition(ctx context.Context, key models.PositionKey, u models.PositionUpdate) (*models.Position, error) {
	query := `
		UPDATE positions SET
			shares = COALESCE($4, shares),
			enabled = COALESCE($5, enabled),
			deleted = COALESCE($6, deleted),
			updated_at = $7
		WHERE account_id = $1 AND created_by = $2 AND ticker = $3
		  AND enabled = true AND deleted = false
		RETURNING ` + positionColumns

	row := db.conn.QueryRowContext(ctx, query,
		key.AccountID, key.CreatedBy, key.Ticker,
		u.Shares, u.Enabled, u.Deleted, time.Now().UTC(),
	)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("position %s/%s: %w", key.AccountID, key.Ticker, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update position: %w", err)
	}

	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	err := row.Scan(&p.AccountID, &p.CreatedBy, &p.Ticker, &p.Shares, &p.Enabled, &p.Deleted, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
