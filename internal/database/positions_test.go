package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-service/internal/models"
)

var positionRowColumns = []string{"account_id", "created_by", "ticker", "shares", "enabled", "deleted", "created_at", "updated_at"}

func TestSearchPositions_OrdersByTicker(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM positions WHERE account_id = \$1 AND enabled = true AND deleted = false ORDER BY ticker ASC`).
		WithArgs("acc1").
		WillReturnRows(sqlmock.NewRows(positionRowColumns).
			AddRow("acc1", "user1", "AAPL", "10", true, false, created, created).
			AddRow("acc1", "user1", "MSFT", "5.5", true, false, created, created))

	positions, err := db.SearchPositions(context.Background(), models.PositionFilter{AccountID: "acc1", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "AAPL", positions[0].Ticker)
	assert.True(t, decimal.RequireFromString("5.5").Equal(positions[1].Shares))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchPositions_OrderByCreatedAt(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`FROM positions WHERE account_id = \$1 AND created_by = \$2 ORDER BY created_at ASC`).
		WithArgs("acc1", "user1").
		WillReturnRows(sqlmock.NewRows(positionRowColumns))

	positions, err := db.SearchPositions(context.Background(), models.PositionFilter{
		AccountID: "acc1",
		CreatedBy: "user1",
		OrderBy:   models.SortByCreatedAt,
	})
	require.NoError(t, err)
	assert.Empty(t, positions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPositionExists(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("acc1", "user1", "AAPL").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := db.PositionExists(context.Background(), models.PositionKey{AccountID: "acc1", CreatedBy: "user1", Ticker: "AAPL"})
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreatePosition_UniqueViolationIsAlreadyExists(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO positions").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := db.CreatePosition(context.Background(), &models.Position{AccountID: "acc1", CreatedBy: "user1", Ticker: "AAPL"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreatePosition_MarksActive(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO positions").
		WithArgs("acc1", "user1", "AAPL", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	p := &models.Position{AccountID: "acc1", CreatedBy: "user1", Ticker: "AAPL", Shares: decimal.NewFromInt(10)}
	require.NoError(t, db.CreatePosition(context.Background(), p))
	assert.True(t, p.Enabled)
	assert.False(t, p.Deleted)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestUpsertPosition_ReturnsStoredRow(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`ON CONFLICT \(account_id, created_by, ticker\) WHERE enabled AND NOT deleted DO UPDATE`).
		WillReturnRows(sqlmock.NewRows(positionRowColumns).
			AddRow("acc1", "user1", "AAPL", "12", true, false, created, time.Now()))

	p := &models.Position{AccountID: "acc1", CreatedBy: "user1", Ticker: "AAPL", Shares: decimal.NewFromInt(12)}
	require.NoError(t, db.UpsertPosition(context.Background(), p))
	assert.Equal(t, created, p.CreatedAt)
	assert.True(t, decimal.NewFromInt(12).Equal(p.Shares))
}

func TestUpdatePosition_NoActiveRowIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	shares := decimal.NewFromInt(3)

	mock.ExpectQuery("UPDATE positions SET").
		WithArgs("acc1", "user1", "AAPL", sqlmock.AnyArg(), nil, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(positionRowColumns))

	_, err := db.UpdatePosition(context.Background(),
		models.PositionKey{AccountID: "acc1", CreatedBy: "user1", Ticker: "AAPL"},
		models.PositionUpdate{Shares: &shares})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePosition_DatabaseError(t *testing.T) {
	db, mock := newMockDB(t)
	deleted := true

	mock.ExpectQuery("UPDATE positions SET").WillReturnError(errors.New("timeout"))

	_, err := db.UpdatePosition(context.Background(),
		models.PositionKey{AccountID: "acc1", CreatedBy: "user1", Ticker: "AAPL"},
		models.PositionUpdate{Deleted: &deleted})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "failed to update position")
}

func TestPositionsRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)
	ctx := context.Background()

	createAccount := func(t *testing.T, id string) {
		err := testDB.CreateAccount(ctx, &models.Account{ID: id, Name: id, CreatedBy: "user1", Enabled: true})
		require.NoError(t, err)
	}

	t.Run("CreatePosition enforces one active row per key", func(t *testing.T) {
		testDB.TruncateAll(t)
		createAccount(t, "acc1")

		first := &models.Position{AccountID: "acc1", CreatedBy: "user1", Ticker: "AAPL", Shares: decimal.NewFromInt(10)}
		require.NoError(t, testDB.CreatePosition(ctx, first))

		second := &models.Position{AccountID: "acc1", CreatedBy: "user1", Ticker: "AAPL", Shares: decimal.NewFromInt(20)}
		err := testDB.CreatePosition(ctx, second)
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("soft-deleted rows free the key and stay as history", func(t *testing.T) {
		testDB.TruncateAll(t)
		createAccount(t, "acc1")
		key := models.PositionKey{AccountID: "acc1", CreatedBy: "user1", Ticker: "MSFT"}

		require.NoError(t, testDB.CreatePosition(ctx, &models.Position{AccountID: "acc1", CreatedBy: "user1", Ticker: "MSFT", Shares: decimal.NewFromInt(5)}))

		enabled, deleted := false, true
		_, err := testDB.UpdatePosition(ctx, key, models.PositionUpdate{Enabled: &enabled, Deleted: &deleted})
		require.NoError(t, err)

		exists, err := testDB.PositionExists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, testDB.CreatePosition(ctx, &models.Position{AccountID: "acc1", CreatedBy: "user1", Ticker: "MSFT", Shares: decimal.NewFromInt(7)}))

		all, err := testDB.SearchPositions(ctx, models.PositionFilter{AccountID: "acc1"})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		active, err := testDB.SearchPositions(ctx, models.PositionFilter{AccountID: "acc1", ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.True(t, decimal.NewFromInt(7).Equal(active[0].Shares))
	})

	t.Run("UpsertPosition overwrites shares of the active row", func(t *testing.T) {
		testDB.TruncateAll(t)
		createAccount(t, "acc1")

		p := &models.Position{AccountID: "acc1", CreatedBy: "user1", Ticker: "VTI", Shares: decimal.NewFromInt(1)}
		require.NoError(t, testDB.UpsertPosition(ctx, p))

		p2 := &models.Position{AccountID: "acc1", CreatedBy: "user1", Ticker: "VTI", Shares: decimal.NewFromInt(9)}
		require.NoError(t, testDB.UpsertPosition(ctx, p2))

		active, err := testDB.SearchPositions(ctx, models.PositionFilter{AccountID: "acc1", ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.True(t, decimal.NewFromInt(9).Equal(active[0].Shares))
	})

	t.Run("UpdatePosition applies partial update", func(t *testing.T) {
		testDB.TruncateAll(t)
		createAccount(t, "acc1")
		require.NoError(t, testDB.CreatePosition(ctx, &models.Position{AccountID: "acc1", CreatedBy: "user1", Ticker: "BND", Shares: decimal.NewFromInt(4)}))

		shares := decimal.RequireFromString("4.25")
		updated, err := testDB.UpdatePosition(ctx,
			models.PositionKey{AccountID: "acc1", CreatedBy: "user1", Ticker: "BND"},
			models.PositionUpdate{Shares: &shares})
		require.NoError(t, err)
		assert.True(t, shares.Equal(updated.Shares))
		assert.True(t, updated.Enabled)
	})
}
