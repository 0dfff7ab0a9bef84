package aggregator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/trogers1052/portfolio-service/internal/apperr"
	"github.com/trogers1052/portfolio-service/internal/models"
)

const defaultConcurrency = 4

// AccountSource resolves the accounts of an owner
type AccountSource interface {
	SearchAccounts(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error)
}

// PositionSource resolves the positions of an account
type PositionSource interface {
	SearchPositions(ctx context.Context, filter models.PositionFilter) ([]*models.Position, error)
}

// AssetLookup returns static asset details keyed by ticker
type AssetLookup interface {
	GetAssetDetails(ctx context.Context, tickers []string) (map[string]models.AssetDetail, error)
}

// PriceLookup returns the latest price keyed by ticker
type PriceLookup interface {
	GetPrices(ctx context.Context, tickers []string) (map[string]models.AssetPrice, error)
}

// SectorLookup returns sector weights keyed by ticker
type SectorLookup interface {
	GetSectorWeights(ctx context.Context, tickers []string) (map[string]models.Weights, error)
}

// CountryLookup returns country weights keyed by ticker
type CountryLookup interface {
	GetCountryWeights(ctx context.Context, tickers []string) (map[string]models.Weights, error)
}

// DividendLookup returns dividend schedules keyed by ticker
type DividendLookup interface {
	GetDividends(ctx context.Context, tickers []string) (map[string][]models.Dividend, error)
}

// Lookups bundles the reference-data ports joined by the aggregators
type Lookups struct {
	Assets    AssetLookup
	Prices    PriceLookup
	Sectors   SectorLookup
	Countries CountryLookup
	Dividends DividendLookup
}

// Option configures a Service
type Option func(*Service)

// WithAccountConcurrency bounds how many accounts are aggregated at once
func WithAccountConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Service computes the portfolio, breakdown and dividend views of an owner
type Service struct {
	accounts    AccountSource
	positions   PositionSource
	lookups     Lookups
	concurrency int
	log         zerolog.Logger
}

// NewService creates an aggregator service
func NewService(accounts AccountSource, positions PositionSource, lookups Lookups, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		accounts:    accounts,
		positions:   positions,
		lookups:     lookups,
		concurrency: defaultConcurrency,
		log:         log.With().Str("component", "aggregator").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// rowFunc builds one output row from a position
type rowFunc[R any] func(p *models.Position) (R, error)

// joinFunc fetches the reference data of a ticker set and returns the row
// builder that folds it into positions
type joinFunc[R any] func(ctx context.Context, tickers []string) (rowFunc[R], error)

// aggregate runs a join for every active account of the owner. Accounts are
// processed concurrently; the output keeps the account order. A failing
// account is reported in its view and does not affect the others.
func aggregate[R any](ctx context.Context, s *Service, view, ownerID string, join joinFunc[R]) (*models.AggregationResult[R], error) {
	accounts, err := s.accounts.SearchAccounts(ctx, models.AccountFilter{CreatedBy: ownerID, ActiveOnly: true})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeSearchAccountsFailed)
	}

	views := make([]models.AccountView[R], len(accounts))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, account := range accounts {
		i, account := i, account
		g.Go(func() error {
			views[i] = accountView(ctx, s, account, join)
			if views[i].Error != nil {
				s.log.Error().Str("view", view).Str("owner_id", ownerID).Str("account_id", account.ID).
					Str("code", views[i].Error.Code).Msg(views[i].Error.Message)
			}
			return nil
		})
	}
	_ = g.Wait()

	return &models.AggregationResult[R]{Status: status(views), Accounts: views}, nil
}

func accountView[R any](ctx context.Context, s *Service, account *models.Account, join joinFunc[R]) models.AccountView[R] {
	view := models.AccountView[R]{AccountID: account.ID, AccountName: account.Name}

	rows, err := accountRows(ctx, s, account.ID, join)
	if err != nil {
		appErr := apperr.From(err)
		view.Error = &models.AccountError{Code: string(appErr.Code), Message: appErr.Message}
		return view
	}
	view.Positions = rows
	return view
}

func accountRows[R any](ctx context.Context, s *Service, accountID string, join joinFunc[R]) ([]R, error) {
	positions, err := s.positions.SearchPositions(ctx, models.PositionFilter{
		AccountID:  accountID,
		ActiveOnly: true,
		OrderBy:    models.SortByTicker,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeSearchPositionsFailed)
	}
	if len(positions) == 0 {
		return []R{}, nil
	}

	tickers := lo.Uniq(lo.Map(positions, func(p *models.Position, _ int) string { return p.Ticker }))
	build, err := join(ctx, tickers)
	if err != nil {
		return nil, err
	}

	rows := make([]R, 0, len(positions))
	for _, p := range positions {
		row, err := build(p)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func status[R any](views []models.AccountView[R]) models.AggregationStatus {
	failed := lo.CountBy(views, func(v models.AccountView[R]) bool { return v.Error != nil })
	switch {
	case failed == 0:
		return models.AggregationComplete
	case failed == len(views):
		return models.AggregationFailed
	default:
		return models.AggregationPartial
	}
}

// lookup wraps a port call for an errgroup. The result is stored in dst.
func lookup[T any](ctx context.Context, port string, fn func(context.Context, []string) (map[string]T, error), tickers []string, dst *map[string]T) func() error {
	return func() error {
		res, err := fn(ctx, tickers)
		if err != nil {
			return apperr.Aggregation(apperr.CodeLookupFailed, fmt.Sprintf("%s lookup failed: %v", port, err), err)
		}
		if res == nil {
			res = map[string]T{}
		}
		*dst = res
		return nil
	}
}

// entry returns the lookup result of a ticker. The ports return one entry per
// requested ticker, so a missing entry is a data-integrity fault.
func entry[T any](m map[string]T, port, ticker string) (T, error) {
	v, ok := m[ticker]
	if !ok {
		var zero T
		return zero, apperr.Aggregation(apperr.CodeMissingReference,
			fmt.Sprintf("%s lookup returned no entry for %s", port, ticker), nil)
	}
	return v, nil
}
