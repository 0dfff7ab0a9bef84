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

const portfolioColumns = `account_id, created_by, enabled, deleted, created_at, updated_at`

// PortfolioExists reports whether the account has a portfolio, whatever its flags
func (db *DB) PortfolioExists(ctx context.Context, accountID string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM portfolios WHERE account_id = $1)`, accountID).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check portfolio existence: %w", err)
	}
	return exists, nil
}

// SearchPortfolios retrieves portfolios matching the filter, oldest first
func (db *DB) SearchPortfolios(ctx context.Context, filter models.PortfolioFilter) ([]*models.Portfolio, error) {
	var conds []string
	var args []any
	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		conds = append(conds, "account_id = $"+strconv.Itoa(len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conds = append(conds, "created_by = $"+strconv.Itoa(len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "enabled = true AND deleted = false")
	}

	query := `SELECT ` + portfolioColumns + ` FROM portfolios`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, account_id ASC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := []*models.Portfolio{}
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate portfolios: %w", err)
	}

	return portfolios, nil
}

// CreatePortfolio inserts the active portfolio of an account. ErrAlreadyExists
// is returned when the account already has one.
func (db *DB) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	query := `
		INSERT INTO portfolios (account_id, created_by, enabled, deleted, created_at, updated_at)
		VALUES ($1, $2, true, false, $3, $4)
	`
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx, query, p.AccountID, p.CreatedBy, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("portfolio %s: %w", p.AccountID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create portfolio: %w", err)
	}

	p.Enabled = true
	p.Deleted = false
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// UpdatePortfolio applies a partial update to the owner's portfolio of an
// account. ErrNotFound is returned when no row matched.
func (db *DB) UpdatePortfolio(ctx context.Context, accountID, ownerID string, u models.PortfolioUpdate) (*models.Portfolio, error) {
	query := `
		UPDATE portfolios SET
			enabled = COALESCE($3, enabled),
			deleted = COALESCE($4, deleted),
			updated_at = $5
		WHERE account_id = $1 AND created_by = $2
		RETURNING ` + portfolioColumns

	row := db.conn.QueryRowContext(ctx, query, accountID, ownerID, u.Enabled, u.Deleted, time.Now().UTC())
	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("portfolio %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update portfolio: %w", err)
	}

	return p, nil
}

func scanPortfolio(row rowScanner) (*models.Portfolio, error) {
	var p models.Portfolio
	if err := row.Scan(&p.AccountID, &p.CreatedBy, &p.Enabled, &p.Deleted, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
