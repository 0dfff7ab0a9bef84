package portfolio

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/trogers1052/portfolio-service/internal/account"
	"github.com/trogers1052/portfolio-service/internal/apperr"
	"github.com/trogers1052/portfolio-service/internal/database"
	"github.com/trogers1052/portfolio-service/internal/models"
)

// Repository is the portfolio storage the service depends on
type Repository interface {
	PortfolioExists(ctx context.Context, accountID string) (bool, error)
	SearchPortfolios(ctx context.Context, filter models.PortfolioFilter) ([]*models.Portfolio, error)
	CreatePortfolio(ctx context.Context, p *models.Portfolio) error
	UpdatePortfolio(ctx context.Context, accountID, ownerID string, u models.PortfolioUpdate) (*models.Portfolio, error)
}

// Service manages the companion portfolio of each account
type Service struct {
	repo Repository
	log  zerolog.Logger
}

// NewService creates a portfolio service
func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "portfolio").Logger(),
	}
}

// GetPortfoliosByAccountID returns the owner's active portfolio of an account
func (s *Service) GetPortfoliosByAccountID(ctx context.Context, accountID, ownerID string) ([]*models.Portfolio, error) {
	portfolios, err := s.repo.SearchPortfolios(ctx, models.PortfolioFilter{
		AccountID:  accountID,
		CreatedBy:  ownerID,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeSearchPortfoliosFailed)
	}
	return portfolios, nil
}

// AddPortfolio creates the portfolio of an account. An account has at most one.
func (s *Service) AddPortfolio(ctx context.Context, accountID, ownerID string) (*models.Portfolio, error) {
	if accountID == "" || ownerID == "" {
		return nil, apperr.Validation(apperr.CodeInvalidParam, "account id and owner id are required")
	}

	exists, err := s.repo.PortfolioExists(ctx, accountID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCreatePortfolioFailed)
	}
	if exists {
		return nil, portfolioExisted(accountID)
	}

	p := &models.Portfolio{AccountID: accountID, CreatedBy: ownerID}
	if err := s.repo.CreatePortfolio(ctx, p); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return nil, portfolioExisted(accountID)
		}
		return nil, apperr.Wrap(err, apperr.CodeCreatePortfolioFailed)
	}

	s.log.Info().Str("account_id", accountID).Msg("Portfolio created")
	return p, nil
}

// UpdatePortfolio applies a partial update to an existing portfolio
func (s *Service) UpdatePortfolio(ctx context.Context, accountID, ownerID string, u models.PortfolioUpdate) (*models.Portfolio, error) {
	return s.update(ctx, accountID, ownerID, u, apperr.CodeUpdatePortfolioFailed)
}

// DeletePortfolio soft-deletes the portfolio of an account and returns the
// owner's remaining active portfolios
func (s *Service) DeletePortfolio(ctx context.Context, accountID, ownerID string) ([]*models.Portfolio, error) {
	enabled, deleted := false, true
	if _, err := s.update(ctx, accountID, ownerID, models.PortfolioUpdate{Enabled: &enabled, Deleted: &deleted}, apperr.CodeDeletePortfolioFailed); err != nil {
		return nil, err
	}

	portfolios, err := s.repo.SearchPortfolios(ctx, models.PortfolioFilter{CreatedBy: ownerID, ActiveOnly: true})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeSearchPortfoliosFailed)
	}
	return portfolios, nil
}

// AccountHook keeps the portfolio in step with its account: it is created
// with the account and soft-deleted with it. The hook is required, so a
// failure is reported to the account caller.
func (s *Service) AccountHook() account.Hook {
	return account.Hook{
		Name:     "portfolio-companion",
		Required: true,
		Run: func(ctx context.Context, event models.AccountEvent) error {
			if event.Account == nil {
				return nil
			}
			switch event.EventType {
			case models.EventAccountCreated:
				_, err := s.AddPortfolio(ctx, event.Account.ID, event.Account.CreatedBy)
				return err
			case models.EventAccountDeleted:
				_, err := s.DeletePortfolio(ctx, event.Account.ID, event.Account.CreatedBy)
				if err != nil && apperr.From(err).Code == apperr.CodePortfolioNotExisted {
					return nil
				}
				return err
			}
			return nil
		},
	}
}

func (s *Service) update(ctx context.Context, accountID, ownerID string, u models.PortfolioUpdate, code apperr.Code) (*models.Portfolio, error) {
	p, err := s.repo.UpdatePortfolio(ctx, accountID, ownerID, u)
	if errors.Is(err, database.ErrNotFound) {
		return nil, portfolioNotExisted(accountID)
	}
	if err != nil {
		return nil, apperr.Wrap(err, code)
	}
	return p, nil
}

func portfolioExisted(accountID string) error {
	return apperr.Conflict(apperr.CodePortfolioExisted, fmt.Sprintf("portfolio of account %s already exists", accountID))
}

func portfolioNotExisted(accountID string) error {
	return apperr.Conflict(apperr.CodePortfolioNotExisted, fmt.Sprintf("portfolio of account %s does not exist", accountID))
}
