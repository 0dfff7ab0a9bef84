package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/trogers1052/portfolio-service/internal/apperr"
	"github.com/trogers1052/portfolio-service/internal/database"
	"github.com/trogers1052/portfolio-service/internal/models"
)

// ConflictPolicy decides what adding an already active position does
type ConflictPolicy string

const (
	// ConflictReject fails with POSITION_EXISTED
	ConflictReject ConflictPolicy = "reject"
	// ConflictUpsert overwrites the shares of the active position
	ConflictUpsert ConflictPolicy = "upsert"
)

// Repository is the position storage the service depends on
type Repository interface {
	PositionExists(ctx context.Context, key models.PositionKey) (bool, error)
	SearchPositions(ctx context.Context, filter models.PositionFilter) ([]*models.Position, error)
	CreatePosition(ctx context.Context, p *models.Position) error
	UpsertPosition(ctx context.Context, p *models.Position) error
	UpdatePosition(ctx context.Context, key models.PositionKey, u models.PositionUpdate) (*models.Position, error)
}

// AccountRepository resolves the accounts positions belong to
type AccountRepository interface {
	AccountExists(ctx context.Context, filter models.AccountFilter) (bool, error)
	SearchAccounts(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error)
}

// EventPublisher receives position events after a write commits
type EventPublisher interface {
	PublishPositionEvent(ctx context.Context, event models.PositionEvent) error
}

// Option configures a Service
type Option func(*Service)

// WithConflictPolicy sets the add-position conflict policy
func WithConflictPolicy(policy ConflictPolicy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithPublisher publishes position events through p
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// Service owns position creation, update and delete under an account
type Service struct {
	repo      Repository
	accounts  AccountRepository
	policy    ConflictPolicy
	publisher EventPublisher
	log       zerolog.Logger
}

// NewService creates a position service. The default policy is ConflictReject.
func NewService(repo Repository, accounts AccountRepository, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		accounts: accounts,
		policy:   ConflictReject,
		log:      log.With().Str("component", "position").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the configured conflict policy
func (s *Service) Policy() ConflictPolicy {
	return s.policy
}

// GetPositionsByAccountID returns the owner's active positions of an account
// by ticker
func (s *Service) GetPositionsByAccountID(ctx context.Context, accountID, ownerID string) ([]models.PositionSummary, error) {
	positions, err := s.repo.SearchPositions(ctx, models.PositionFilter{
		AccountID:  accountID,
		CreatedBy:  ownerID,
		ActiveOnly: true,
		OrderBy:    models.SortByTicker,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeSearchPositionsFailed)
	}

	return lo.Map(positions, func(p *models.Position, _ int) models.PositionSummary {
		return p.Summary()
	}), nil
}

// GetPositionsByUserID returns the active positions of every active account
// of the owner keyed by account id. Accounts without positions map to an
// empty slice.
func (s *Service) GetPositionsByUserID(ctx context.Context, ownerID string) (map[string][]models.PositionSummary, error) {
	accounts, err := s.accounts.SearchAccounts(ctx, models.AccountFilter{CreatedBy: ownerID, ActiveOnly: true})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeSearchAccountsFailed)
	}

	results := make([][]models.PositionSummary, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range accounts {
		i, a := i, a
		g.Go(func() error {
			positions, err := s.GetPositionsByAccountID(gctx, a.ID, ownerID)
			if err != nil {
				return err
			}
			results[i] = positions
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]models.PositionSummary, len(accounts))
	for i, a := range accounts {
		out[a.ID] = results[i]
	}
	return out, nil
}

// AddPosition creates a position under an active account. What happens when
// the ticker is already held depends on the conflict policy.
func (s *Service) AddPosition(ctx context.Context, accountID, ownerID, ticker string, shares decimal.Decimal) (*models.Position, error) {
	key := models.PositionKey{AccountID: accountID, CreatedBy: ownerID, Ticker: models.NormalizeTicker(ticker)}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := s.ensureAccount(ctx, key, apperr.CodeCreatePositionFailed); err != nil {
		return nil, err
	}

	exists, err := s.repo.PositionExists(ctx, key)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCreatePositionFailed)
	}
	if exists && s.policy == ConflictReject {
		return nil, positionExisted(key)
	}

	p := &models.Position{AccountID: key.AccountID, CreatedBy: key.CreatedBy, Ticker: key.Ticker, Shares: shares}
	eventType := models.EventPositionAdded
	if s.policy == ConflictUpsert {
		if exists {
			eventType = models.EventPositionUpdated
		}
		err = s.repo.UpsertPosition(ctx, p)
	} else {
		err = s.repo.CreatePosition(ctx, p)
	}
	if errors.Is(err, database.ErrAlreadyExists) {
		// lost the race against a concurrent add
		return nil, positionExisted(key)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCreatePositionFailed)
	}

	s.log.Info().Str("account_id", key.AccountID).Str("ticker", key.Ticker).Str("shares", p.Shares.String()).
		Str("policy", string(s.policy)).Msg("Position added")
	s.publish(ctx, eventType, p)
	return p, nil
}

// UpdatePosition applies a partial update to an active position
func (s *Service) UpdatePosition(ctx context.Context, key models.PositionKey, u models.PositionUpdate) (*models.Position, error) {
	key.Ticker = models.NormalizeTicker(key.Ticker)
	p, err := s.update(ctx, key, u, apperr.CodeUpdatePositionFailed)
	if err != nil {
		return nil, err
	}

	eventType := models.EventPositionUpdated
	if p.Deleted {
		eventType = models.EventPositionDeleted
	}
	s.publish(ctx, eventType, p)
	return p, nil
}

// DeletePosition soft-deletes a position and returns the account's
// remaining active positions
func (s *Service) DeletePosition(ctx context.Context, key models.PositionKey) ([]models.PositionSummary, error) {
	key.Ticker = models.NormalizeTicker(key.Ticker)
	enabled, deleted := false, true
	p, err := s.update(ctx, key, models.PositionUpdate{Enabled: &enabled, Deleted: &deleted}, apperr.CodeDeletePositionFailed)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, models.EventPositionDeleted, p)

	return s.GetPositionsByAccountID(ctx, key.AccountID, key.CreatedBy)
}

func (s *Service) update(ctx context.Context, key models.PositionKey, u models.PositionUpdate, code apperr.Code) (*models.Position, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := s.ensureAccount(ctx, key, code); err != nil {
		return nil, err
	}

	exists, err := s.repo.PositionExists(ctx, key)
	if err != nil {
		return nil, apperr.Wrap(err, code)
	}
	if !exists {
		return nil, positionNotExisted(key)
	}

	p, err := s.repo.UpdatePosition(ctx, key, u)
	if errors.Is(err, database.ErrNotFound) {
		return nil, positionNotExisted(key)
	}
	if err != nil {
		return nil, apperr.Wrap(err, code)
	}
	return p, nil
}

// ensureAccount guards every mutation: the owning account must be active
func (s *Service) ensureAccount(ctx context.Context, key models.PositionKey, code apperr.Code) error {
	exists, err := s.accounts.AccountExists(ctx, models.AccountFilter{
		ID:         key.AccountID,
		CreatedBy:  key.CreatedBy,
		ActiveOnly: true,
	})
	if err != nil {
		return apperr.Wrap(err, code)
	}
	if !exists {
		return apperr.Conflict(apperr.CodeAccountNotExisted, fmt.Sprintf("account %s does not exist", key.AccountID))
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, p *models.Position) {
	if s.publisher == nil {
		return
	}
	event := models.PositionEvent{
		EventType: eventType,
		Position:  p,
		AccountID: p.AccountID,
		Ticker:    p.Ticker,
		Timestamp: time.Now().UTC(),
	}
	if err := s.publisher.PublishPositionEvent(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Str("account_id", p.AccountID).Str("ticker", p.Ticker).
			Msg("Failed to publish position event")
	}
}

func validateKey(key models.PositionKey) error {
	switch {
	case key.AccountID == "":
		return apperr.Validation(apperr.CodeInvalidParam, "account id is required")
	case key.CreatedBy == "":
		return apperr.Validation(apperr.CodeInvalidParam, "owner id is required")
	case key.Ticker == "":
		return apperr.Validation(apperr.CodeInvalidParam, "ticker is required")
	}
	return nil
}

func positionExisted(key models.PositionKey) error {
	return apperr.Conflict(apperr.CodePositionExisted,
		fmt.Sprintf("position %s already exists in account %s", key.Ticker, key.AccountID))
}

func positionNotExisted(key models.PositionKey) error {
	return apperr.Conflict(apperr.CodePositionNotExisted,
		fmt.Sprintf("position %s does not exist in account %s", key.Ticker, key.AccountID))
}
