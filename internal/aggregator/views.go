package aggregator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/trogers1052/portfolio-service/internal/models"
)

// Port names used in aggregation errors
const (
	portAssets    = "asset details"
	portPrices    = "price"
	portSectors   = "sector"
	portCountries = "country"
	portDividends = "dividend"
)

// GetPortfoliosByUserID values every active account of the owner
func (s *Service) GetPortfoliosByUserID(ctx context.Context, ownerID string) (*models.AggregationResult[models.PortfolioRow], error) {
	return aggregate[models.PortfolioRow](ctx, s, "portfolio", ownerID, s.portfolioJoin)
}

// GetBreakdownByUserID adds allocation, sector and country weights to the portfolio view
func (s *Service) GetBreakdownByUserID(ctx context.Context, ownerID string) (*models.AggregationResult[models.BreakdownRow], error) {
	return aggregate[models.BreakdownRow](ctx, s, "breakdown", ownerID, s.breakdownJoin)
}

// GetDividendsByUserID adds the dividend schedule to the portfolio view
func (s *Service) GetDividendsByUserID(ctx context.Context, ownerID string) (*models.AggregationResult[models.DividendRow], error) {
	return aggregate[models.DividendRow](ctx, s, "dividend", ownerID, s.dividendJoin)
}

// baseData is the asset and price data every view is built on
type baseData struct {
	assets map[string]models.AssetDetail
	prices map[string]models.AssetPrice
}

func (s *Service) fetchBase(ctx context.Context, g *errgroup.Group, tickers []string) *baseData {
	d := &baseData{}
	g.Go(lookup(ctx, portAssets, s.lookups.Assets.GetAssetDetails, tickers, &d.assets))
	g.Go(lookup(ctx, portPrices, s.lookups.Prices.GetPrices, tickers, &d.prices))
	return d
}

func (d *baseData) row(p *models.Position) (models.PortfolioRow, error) {
	asset, err := entry(d.assets, portAssets, p.Ticker)
	if err != nil {
		return models.PortfolioRow{}, err
	}
	price, err := entry(d.prices, portPrices, p.Ticker)
	if err != nil {
		return models.PortfolioRow{}, err
	}

	return models.PortfolioRow{
		Ticker:   p.Ticker,
		Shares:   p.Shares,
		Name:     asset.Name,
		Price:    price.Price,
		Currency: models.ResolveCurrency(price, asset),
	}, nil
}

func (s *Service) portfolioJoin(ctx context.Context, tickers []string) (rowFunc[models.PortfolioRow], error) {
	g, gctx := errgroup.WithContext(ctx)
	base := s.fetchBase(gctx, g, tickers)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return base.row, nil
}

func (s *Service) breakdownJoin(ctx context.Context, tickers []string) (rowFunc[models.BreakdownRow], error) {
	var sectors, countries map[string]models.Weights

	g, gctx := errgroup.WithContext(ctx)
	base := s.fetchBase(gctx, g, tickers)
	g.Go(lookup(gctx, portSectors, s.lookups.Sectors.GetSectorWeights, tickers, &sectors))
	g.Go(lookup(gctx, portCountries, s.lookups.Countries.GetCountryWeights, tickers, &countries))
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return func(p *models.Position) (models.BreakdownRow, error) {
		row, err := base.row(p)
		if err != nil {
			return models.BreakdownRow{}, err
		}
		sector, err := entry(sectors, portSectors, p.Ticker)
		if err != nil {
			return models.BreakdownRow{}, err
		}
		country, err := entry(countries, portCountries, p.Ticker)
		if err != nil {
			return models.BreakdownRow{}, err
		}

		asset := base.assets[p.Ticker]
		return models.BreakdownRow{
			PortfolioRow:    row,
			AllocationCash:  asset.AllocationCash,
			AllocationBond:  asset.AllocationBond,
			AllocationStock: asset.AllocationStock,
			Sectors:         sector,
			Countries:       country,
		}, nil
	}, nil
}

func (s *Service) dividendJoin(ctx context.Context, tickers []string) (rowFunc[models.DividendRow], error) {
	var dividends map[string][]models.Dividend

	g, gctx := errgroup.WithContext(ctx)
	base := s.fetchBase(gctx, g, tickers)
	g.Go(lookup(gctx, portDividends, s.lookups.Dividends.GetDividends, tickers, &dividends))
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return func(p *models.Position) (models.DividendRow, error) {
		row, err := base.row(p)
		if err != nil {
			return models.DividendRow{}, err
		}
		schedule, err := entry(dividends, portDividends, p.Ticker)
		if err != nil {
			return models.DividendRow{}, err
		}
		return models.DividendRow{PortfolioRow: row, Dividends: schedule}, nil
	}, nil
}
