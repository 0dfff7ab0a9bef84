package aggregator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/portfolio-service/internal/apperr"
	"github.com/trogers1052/portfolio-service/internal/models"
)

type fakeAccounts struct {
	accounts []*models.Account
	err      error
}

func (f *fakeAccounts) SearchAccounts(_ context.Context, _ models.AccountFilter) ([]*models.Account, error) {
	return f.accounts, f.err
}

type fakePositions struct {
	byAccount map[string][]*models.Position
	failFor   string
}

func (f *fakePositions) SearchPositions(_ context.Context, filter models.PositionFilter) ([]*models.Position, error) {
	if filter.AccountID == f.failFor {
		return nil, errors.New("positions unavailable")
	}
	return f.byAccount[filter.AccountID], nil
}

// fakeReference serves every port from fixed maps and counts lookups
type fakeReference struct {
	assets    map[string]models.AssetDetail
	prices    map[string]models.AssetPrice
	sectors   map[string]models.Weights
	countries map[string]models.Weights
	dividends map[string][]models.Dividend
	priceErr  error
	divErr    error
	calls     atomic.Int32
}

func pick[T any](src map[string]T, tickers []string) map[string]T {
	out := make(map[string]T, len(tickers))
	for _, t := range tickers {
		if v, ok := src[t]; ok {
			out[t] = v
		}
	}
	return out
}

func (f *fakeReference) GetAssetDetails(_ context.Context, tickers []string) (map[string]models.AssetDetail, error) {
	f.calls.Add(1)
	return pick(f.assets, tickers), nil
}

func (f *fakeReference) GetPrices(_ context.Context, tickers []string) (map[string]models.AssetPrice, error) {
	f.calls.Add(1)
	if f.priceErr != nil {
		return nil, f.priceErr
	}
	return pick(f.prices, tickers), nil
}

func (f *fakeReference) GetSectorWeights(_ context.Context, tickers []string) (map[string]models.Weights, error) {
	f.calls.Add(1)
	return pick(f.sectors, tickers), nil
}

func (f *fakeReference) GetCountryWeights(_ context.Context, tickers []string) (map[string]models.Weights, error) {
	f.calls.Add(1)
	return pick(f.countries, tickers), nil
}

func (f *fakeReference) GetDividends(_ context.Context, tickers []string) (map[string][]models.Dividend, error) {
	f.calls.Add(1)
	if f.divErr != nil {
		return nil, f.divErr
	}
	return pick(f.dividends, tickers), nil
}

func (f *fakeReference) lookups() Lookups {
	return Lookups{Assets: f, Prices: f, Sectors: f, Countries: f, Dividends: f}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pos(accountID, ticker string, shares int64) *models.Position {
	return &models.Position{AccountID: accountID, CreatedBy: "user1", Ticker: ticker, Shares: decimal.NewFromInt(shares), Enabled: true}
}

func newReference() *fakeReference {
	return &fakeReference{
		assets: map[string]models.AssetDetail{
			"AAPL": {Ticker: "AAPL", Name: "Apple", Currency: "USD", AllocationStock: dec("1")},
			"MSFT": {Ticker: "MSFT", Name: "Microsoft", Currency: "USD", AllocationStock: dec("1")},
			"SAP":  {Ticker: "SAP", Name: "SAP SE", Currency: "USD", AllocationStock: dec("1")},
			"BND":  {Ticker: "BND", Name: "Total Bond", Currency: "USD", AllocationCash: dec("0.02"), AllocationBond: dec("0.98")},
		},
		prices: map[string]models.AssetPrice{
			"AAPL": {Ticker: "AAPL", Price: dec("150")},
			"MSFT": {Ticker: "MSFT", Price: dec("300")},
			"SAP":  {Ticker: "SAP", Price: dec("120.5"), Currency: "EUR"},
			"BND":  {Ticker: "BND", Price: dec("72.1")},
		},
		sectors: map[string]models.Weights{
			"AAPL": {"Technology": dec("1")},
			"MSFT": {"Technology": dec("1")},
			"BND":  {},
		},
		countries: map[string]models.Weights{
			"AAPL": {"US": dec("1")},
			"MSFT": {"US": dec("1")},
			"BND":  {"US": dec("0.9"), "CA": dec("0.1")},
		},
		dividends: map[string][]models.Dividend{
			"AAPL": {{Ticker: "AAPL", ExDate: time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC), Amount: dec("0.25"), Currency: "USD"}},
			"MSFT": {},
		},
	}
}

func newTestService(accounts *fakeAccounts, positions *fakePositions, ref *fakeReference, opts ...Option) *Service {
	return NewService(accounts, positions, ref.lookups(), zerolog.Nop(), opts...)
}

func TestGetPortfoliosByUserID_Scenario(t *testing.T) {
	accounts := &fakeAccounts{accounts: []*models.Account{{ID: "acc1", Name: "Brokerage", CreatedBy: "user1"}}}
	positions := &fakePositions{byAccount: map[string][]*models.Position{
		"acc1": {pos("acc1", "AAPL", 10), pos("acc1", "MSFT", 5)},
	}}
	svc := newTestService(accounts, positions, newReference())

	result, err := svc.GetPortfoliosByUserID(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, models.AggregationComplete, result.Status)
	require.Len(t, result.Accounts, 1)

	view := result.Accounts[0]
	assert.Equal(t, "acc1", view.AccountID)
	assert.Equal(t, "Brokerage", view.AccountName)
	assert.Nil(t, view.Error)
	require.Len(t, view.Positions, 2)

	aapl, msft := view.Positions[0], view.Positions[1]
	assert.Equal(t, "AAPL", aapl.Ticker)
	assert.True(t, decimal.NewFromInt(10).Equal(aapl.Shares))
	assert.Equal(t, "Apple", aapl.Name)
	assert.True(t, dec("150").Equal(aapl.Price))
	assert.Equal(t, "USD", aapl.Currency)

	assert.Equal(t, "MSFT", msft.Ticker)
	assert.True(t, decimal.NewFromInt(5).Equal(msft.Shares))
	assert.Equal(t, "Microsoft", msft.Name)
	assert.True(t, dec("300").Equal(msft.Price))
	assert.Equal(t, "USD", msft.Currency)
}

func TestGetPortfoliosByUserID_CurrencyPrecedence(t *testing.T) {
	accounts := &fakeAccounts{accounts: []*models.Account{{ID: "acc1", Name: "EU"}}}
	positions := &fakePositions{byAccount: map[string][]*models.Position{"acc1": {pos("acc1", "SAP", 3)}}}
	svc := newTestService(accounts, positions, newReference())

	result, err := svc.GetPortfoliosByUserID(context.Background(), "user1")
	require.NoError(t, err)
	require.Len(t, result.Accounts[0].Positions, 1)
	assert.Equal(t, "EUR", result.Accounts[0].Positions[0].Currency)
}

func TestGetPortfoliosByUserID_OneRowPerPosition(t *testing.T) {
	accounts := &fakeAccounts{accounts: []*models.Account{{ID: "acc1"}}}
	positions := &fakePositions{byAccount: map[string][]*models.Position{
		"acc1": {pos("acc1", "AAPL", 1), pos("acc1", "BND", 2)},
	}}
	svc := newTestService(accounts, positions, newReference())

	result, err := svc.GetPortfoliosByUserID(context.Background(), "user1")
	require.NoError(t, err)
	rows := result.Accounts[0].Positions
	require.Len(t, rows, 2)
	assert.Equal(t, "Apple", rows[0].Name)
	assert.True(t, decimal.NewFromInt(1).Equal(rows[0].Shares))
	assert.Equal(t, "Total Bond", rows[1].Name)
	assert.True(t, decimal.NewFromInt(2).Equal(rows[1].Shares))
}

func TestGetPortfoliosByUserID_MissingReferenceFailsAccount(t *testing.T) {
	accounts := &fakeAccounts{accounts: []*models.Account{{ID: "acc1"}, {ID: "acc2"}}}
	positions := &fakePositions{byAccount: map[string][]*models.Position{
		"acc1": {pos("acc1", "AAPL", 1), pos("acc1", "UNKNOWN", 1)},
		"acc2": {pos("acc2", "MSFT", 1)},
	}}
	svc := newTestService(accounts, positions, newReference())

	result, err := svc.GetPortfoliosByUserID(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, models.AggregationPartial, result.Status)

	failed := result.Accounts[0]
	require.NotNil(t, failed.Error)
	assert.Equal(t, string(apperr.CodeMissingReference), failed.Error.Code)
	assert.Contains(t, failed.Error.Message, "UNKNOWN")
	assert.Nil(t, failed.Positions)

	ok := result.Accounts[1]
	assert.Nil(t, ok.Error)
	assert.Len(t, ok.Positions, 1)
}

func TestGetPortfoliosByUserID_LookupFailure(t *testing.T) {
	ref := newReference()
	ref.priceErr = errors.New("quote service down")
	accounts := &fakeAccounts{accounts: []*models.Account{{ID: "acc1"}, {ID: "acc2"}}}
	positions := &fakePositions{byAccount: map[string][]*models.Position{
		"acc1": {pos("acc1", "AAPL", 1)},
		"acc2": {pos("acc2", "MSFT", 1)},
	}}
	svc := newTestService(accounts, positions, ref)

	result, err := svc.GetPortfoliosByUserID(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, models.AggregationFailed, result.Status)
	for _, v := range result.Accounts {
		require.NotNil(t, v.Error)
		assert.Equal(t, string(apperr.CodeLookupFailed), v.Error.Code)
		assert.Contains(t, v.Error.Message, "quote service down")
	}
}

func TestGetPortfoliosByUserID_PositionSearchFailure(t *testing.T) {
	accounts := &fakeAccounts{accounts: []*models.Account{{ID: "acc1"}, {ID: "acc2"}}}
	positions := &fakePositions{
		byAccount: map[string][]*models.Position{"acc2": {pos("acc2", "MSFT", 1)}},
		failFor:   "acc1",
	}
	svc := newTestService(accounts, positions, newReference())

	result, err := svc.GetPortfoliosByUserID(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, models.AggregationPartial, result.Status)
	assert.Equal(t, string(apperr.CodeSearchPositionsFailed), result.Accounts[0].Error.Code)
}

func TestGetPortfoliosByUserID_AccountSearchFailure(t *testing.T) {
	accounts := &fakeAccounts{err: errors.New("db down")}
	svc := newTestService(accounts, &fakePositions{}, newReference())

	_, err := svc.GetPortfoliosByUserID(context.Background(), "user1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeSearchAccountsFailed, apperr.From(err).Code)
}

func TestGetPortfoliosByUserID_EmptyAccountSkipsLookups(t *testing.T) {
	ref := newReference()
	accounts := &fakeAccounts{accounts: []*models.Account{{ID: "acc1", Name: "Empty"}}}
	svc := newTestService(accounts, &fakePositions{byAccount: map[string][]*models.Position{}}, ref)

	result, err := svc.GetPortfoliosByUserID(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, models.AggregationComplete, result.Status)
	assert.NotNil(t, result.Accounts[0].Positions)
	assert.Empty(t, result.Accounts[0].Positions)
	assert.Equal(t, int32(0), ref.calls.Load())
}

func TestGetPortfoliosByUserID_NoAccounts(t *testing.T) {
	svc := newTestService(&fakeAccounts{accounts: []*models.Account{}}, &fakePositions{}, newReference())

	result, err := svc.GetPortfoliosByUserID(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, models.AggregationComplete, result.Status)
	assert.Empty(t, result.Accounts)
}

func TestGetPortfoliosByUserID_KeepsAccountOrder(t *testing.T) {
	var accs []*models.Account
	byAccount := map[string][]*models.Position{}
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		accs = append(accs, &models.Account{ID: id})
		byAccount[id] = []*models.Position{pos(id, "AAPL", 1)}
	}
	svc := newTestService(&fakeAccounts{accounts: accs}, &fakePositions{byAccount: byAccount}, newReference(),
		WithAccountConcurrency(2))

	result, err := svc.GetPortfoliosByUserID(context.Background(), "user1")
	require.NoError(t, err)
	require.Len(t, result.Accounts, len(accs))
	for i, v := range result.Accounts {
		assert.Equal(t, accs[i].ID, v.AccountID)
	}
}

func TestGetPortfoliosByUserID_DuplicateTickersLookedUpOnce(t *testing.T) {
	ref := &countingReference{fakeReference: newReference()}
	accounts := &fakeAccounts{accounts: []*models.Account{{ID: "acc1"}}}
	positions := &fakePositions{byAccount: map[string][]*models.Position{
		"acc1": {pos("acc1", "AAPL", 1), pos("acc1", "AAPL", 2)},
	}}
	svc := NewService(accounts, positions, Lookups{Assets: ref, Prices: ref}, zerolog.Nop())

	result, err := svc.GetPortfoliosByUserID(context.Background(), "user1")
	require.NoError(t, err)
	assert.Len(t, result.Accounts[0].Positions, 2)
	assert.Equal(t, []string{"AAPL"}, ref.lastTickers)
}

type countingReference struct {
	*fakeReference
	lastTickers []string
}

func (c *countingReference) GetAssetDetails(ctx context.Context, tickers []string) (map[string]models.AssetDetail, error) {
	c.lastTickers = tickers
	return c.fakeReference.GetAssetDetails(ctx, tickers)
}

func TestGetBreakdownByUserID(t *testing.T) {
	accounts := &fakeAccounts{accounts: []*models.Account{{ID: "acc1", Name: "Brokerage"}}}
	positions := &fakePositions{byAccount: map[string][]*models.Position{
		"acc1": {pos("acc1", "AAPL", 10), pos("acc1", "BND", 4)},
	}}
	svc := newTestService(accounts, positions, newReference())

	result, err := svc.GetBreakdownByUserID(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, models.AggregationComplete, result.Status)
	rows := result.Accounts[0].Positions
	require.Len(t, rows, 2)

	assert.Equal(t, "Apple", rows[0].Name)
	assert.True(t, dec("1").Equal(rows[0].AllocationStock))
	assert.True(t, dec("1").Equal(rows[0].Sectors["Technology"]))

	bnd := rows[1]
	assert.True(t, dec("0.98").Equal(bnd.AllocationBond))
	assert.True(t, dec("0.02").Equal(bnd.AllocationCash))
	assert.Empty(t, bnd.Sectors)
	assert.Len(t, bnd.Countries, 2)
}

func TestGetBreakdownByUserID_MissingSectorEntry(t *testing.T) {
	accounts := &fakeAccounts{accounts: []*models.Account{{ID: "acc1"}}}
	positions := &fakePositions{byAccount: map[string][]*models.Position{"acc1": {pos("acc1", "SAP", 1)}}}
	svc := newTestService(accounts, positions, newReference())

	result, err := svc.GetBreakdownByUserID(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, models.AggregationFailed, result.Status)
	assert.Equal(t, string(apperr.CodeMissingReference), result.Accounts[0].Error.Code)
}

func TestGetDividendsByUserID(t *testing.T) {
	accounts := &fakeAccounts{accounts: []*models.Account{{ID: "acc1"}}}
	positions := &fakePositions{byAccount: map[string][]*models.Position{
		"acc1": {pos("acc1", "AAPL", 10), pos("acc1", "MSFT", 5)},
	}}
	svc := newTestService(accounts, positions, newReference())

	result, err := svc.GetDividendsByUserID(context.Background(), "user1")
	require.NoError(t, err)
	rows := result.Accounts[0].Positions
	require.Len(t, rows, 2)
	require.Len(t, rows[0].Dividends, 1)
	assert.True(t, dec("0.25").Equal(rows[0].Dividends[0].Amount))
	assert.Equal(t, "USD", rows[0].Currency)
	assert.NotNil(t, rows[1].Dividends)
	assert.Empty(t, rows[1].Dividends)
}

func TestGetDividendsByUserID_MissingEntry(t *testing.T) {
	accounts := &fakeAccounts{accounts: []*models.Account{{ID: "acc1"}, {ID: "acc2"}}}
	positions := &fakePositions{byAccount: map[string][]*models.Position{
		"acc1": {pos("acc1", "AAPL", 1), pos("acc1", "SAP", 1)},
		"acc2": {pos("acc2", "MSFT", 1)},
	}}
	svc := newTestService(accounts, positions, newReference())

	result, err := svc.GetDividendsByUserID(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, models.AggregationPartial, result.Status)

	failed := result.Accounts[0]
	require.NotNil(t, failed.Error)
	assert.Equal(t, string(apperr.CodeMissingReference), failed.Error.Code)
	assert.Contains(t, failed.Error.Message, "SAP")
	assert.Nil(t, failed.Positions)

	assert.Nil(t, result.Accounts[1].Error)
	assert.Len(t, result.Accounts[1].Positions, 1)
}

func TestGetDividendsByUserID_LookupFailure(t *testing.T) {
	ref := newReference()
	ref.divErr = errors.New("dividend feed down")
	accounts := &fakeAccounts{accounts: []*models.Account{{ID: "acc1"}}}
	positions := &fakePositions{byAccount: map[string][]*models.Position{"acc1": {pos("acc1", "AAPL", 1)}}}
	svc := newTestService(accounts, positions, ref)

	result, err := svc.GetDividendsByUserID(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, models.AggregationFailed, result.Status)
	require.NotNil(t, result.Accounts[0].Error)
	assert.Equal(t, string(apperr.CodeLookupFailed), result.Accounts[0].Error.Code)
	assert.Contains(t, result.Accounts[0].Error.Message, "dividend feed down")
}

func TestStatus(t *testing.T) {
	ok := models.AccountView[models.PortfolioRow]{AccountID: "a"}
	bad := models.AccountView[models.PortfolioRow]{AccountID: "b", Error: &models.AccountError{Code: "X"}}

	assert.Equal(t, models.AggregationComplete, status([]models.AccountView[models.PortfolioRow]{ok, ok}))
	assert.Equal(t, models.AggregationPartial, status([]models.AccountView[models.PortfolioRow]{ok, bad}))
	assert.Equal(t, models.AggregationFailed, status([]models.AccountView[models.PortfolioRow]{bad}))
}
