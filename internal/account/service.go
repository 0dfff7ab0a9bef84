package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/trogers1052/portfolio-service/internal/apperr"
	"github.com/trogers1052/portfolio-service/internal/database"
	"github.com/trogers1052/portfolio-service/internal/models"
)

// Repository is the account storage the service depends on
type Repository interface {
	SearchAccounts(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error)
	CreateAccount(ctx context.Context, a *models.Account) error
	UpdateAccount(ctx context.Context, id, ownerID string, u models.AccountUpdate) (*models.Account, error)
}

// PositionStore is the subset of position storage used by the delete cascade
type PositionStore interface {
	SearchPositions(ctx context.Context, filter models.PositionFilter) ([]*models.Position, error)
	UpdatePosition(ctx context.Context, key models.PositionKey, u models.PositionUpdate) (*models.Position, error)
}

// Hook runs after an account write has committed. A failing Required hook is
// reported to the caller; any other failure is only logged.
type Hook struct {
	Name     string
	Required bool
	Run      func(ctx context.Context, event models.AccountEvent) error
}

// Service owns account creation, update and the cascading soft delete
type Service struct {
	repo      Repository
	positions PositionStore
	hooks     []Hook
	log       zerolog.Logger
}

// NewService creates an account service. Hooks run in the given order.
func NewService(repo Repository, positions PositionStore, log zerolog.Logger, hooks ...Hook) *Service {
	return &Service{
		repo:      repo,
		positions: positions,
		hooks:     hooks,
		log:       log.With().Str("component", "account").Logger(),
	}
}

// AddAccount creates an active account owned by ownerID
func (s *Service) AddAccount(ctx context.Context, name, desc, ownerID string) (*models.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation(apperr.CodeInvalidParam, "name is required")
	}
	if ownerID == "" {
		return nil, apperr.Validation(apperr.CodeInvalidParam, "owner id is required")
	}

	account := &models.Account{
		ID:        uuid.NewString(),
		Name:      name,
		Desc:      strings.TrimSpace(desc),
		CreatedBy: ownerID,
		Enabled:   true,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCreateAccountFailed)
	}

	s.log.Info().Str("account_id", account.ID).Str("owner_id", ownerID).Msg("Account created")
	return account, s.runHooks(ctx, models.EventAccountCreated, account)
}

// UpdateAccount applies a partial update. The account only has to exist, it
// may already be disabled or deleted. Setting deleted runs the same position
// cascade as DeleteAccount before the account row is written.
func (s *Service) UpdateAccount(ctx context.Context, id, ownerID string, u models.AccountUpdate) (*models.Account, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, apperr.Validation(apperr.CodeInvalidParam, "name must not be empty")
	}
	current, err := s.find(ctx, id, ownerID, apperr.CodeUpdateAccountFailed)
	if err != nil {
		return nil, err
	}

	eventType := models.EventAccountUpdated
	if u.Deleted != nil && *u.Deleted {
		if err := s.cascadePositions(ctx, id); err != nil {
			return nil, err
		}
		disabled := false
		u.Enabled = &disabled
		if !current.Deleted {
			eventType = models.EventAccountDeleted
		}
	}

	account, err := s.update(ctx, id, ownerID, u, apperr.CodeUpdateAccountFailed)
	if err != nil {
		return nil, err
	}
	return account, s.runHooks(ctx, eventType, account)
}

// DeleteAccount soft-deletes every active position of the account, then the
// account itself, and returns the owner's remaining active accounts.
// Deleting an already deleted account leaves the account row and hooks
// alone but still sweeps positions left active under it.
func (s *Service) DeleteAccount(ctx context.Context, id, ownerID string) ([]*models.Account, error) {
	current, err := s.find(ctx, id, ownerID, apperr.CodeDeleteAccountFailed)
	if err != nil {
		return nil, err
	}

	if err := s.cascadePositions(ctx, id); err != nil {
		return nil, err
	}
	if current.Deleted {
		s.log.Debug().Str("account_id", id).Msg("Account already deleted")
		return s.GetAccountsByUserID(ctx, ownerID)
	}

	account, err := s.update(ctx, id, ownerID, softDelete(), apperr.CodeDeleteAccountFailed)
	if err != nil {
		return nil, err
	}
	if err := s.runHooks(ctx, models.EventAccountDeleted, account); err != nil {
		return nil, err
	}

	return s.GetAccountsByUserID(ctx, ownerID)
}

// GetAccountsByUserID returns the owner's active accounts, oldest first
func (s *Service) GetAccountsByUserID(ctx context.Context, ownerID string) ([]*models.Account, error) {
	accounts, err := s.repo.SearchAccounts(ctx, models.AccountFilter{CreatedBy: ownerID, ActiveOnly: true})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeSearchAccountsFailed)
	}
	return accounts, nil
}

// cascadePositions flips all active positions of the account concurrently.
// The first failure cancels the remaining updates.
func (s *Service) cascadePositions(ctx context.Context, accountID string) error {
	positions, err := s.positions.SearchPositions(ctx, models.PositionFilter{AccountID: accountID, ActiveOnly: true})
	if err != nil {
		return apperr.Wrap(err, apperr.CodeDeleteAccountFailed)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range positions {
		key := p.Key()
		g.Go(func() error {
			_, err := s.positions.UpdatePosition(gctx, key, positionSoftDelete())
			if errors.Is(err, database.ErrNotFound) {
				// deleted concurrently
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return apperr.Wrap(err, apperr.CodeDeleteAccountFailed)
	}

	if len(positions) == 0 {
		return nil
	}
	s.log.Info().Str("account_id", accountID).Int("positions", len(positions)).Msg("Positions soft-deleted")
	return nil
}

// find returns the account regardless of its flags
func (s *Service) find(ctx context.Context, id, ownerID string, code apperr.Code) (*models.Account, error) {
	found, err := s.repo.SearchAccounts(ctx, models.AccountFilter{ID: id, CreatedBy: ownerID})
	if err != nil {
		return nil, apperr.Wrap(err, code)
	}
	if len(found) == 0 {
		return nil, notExisted(id)
	}
	return found[0], nil
}

func (s *Service) update(ctx context.Context, id, ownerID string, u models.AccountUpdate, code apperr.Code) (*models.Account, error) {
	account, err := s.repo.UpdateAccount(ctx, id, ownerID, u)
	if errors.Is(err, database.ErrNotFound) {
		return nil, notExisted(id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, code)
	}
	return account, nil
}

func (s *Service) runHooks(ctx context.Context, eventType string, account *models.Account) error {
	event := models.AccountEvent{
		EventType: eventType,
		Account:   account,
		AccountID: account.ID,
		Timestamp: time.Now().UTC(),
	}

	for _, h := range s.hooks {
		err := h.Run(ctx, event)
		if err == nil {
			continue
		}
		if h.Required {
			return apperr.Internal(apperr.CodeAccountHookFailed,
				fmt.Sprintf("hook %s failed after %s: %v", h.Name, eventType, err), err)
		}
		s.log.Warn().Err(err).Str("hook", h.Name).Str("event", eventType).Str("account_id", account.ID).
			Msg("Post-commit hook failed")
	}
	return nil
}

func notExisted(id string) error {
	return apperr.Conflict(apperr.CodeAccountNotExisted, fmt.Sprintf("account %s does not exist", id))
}

func softDelete() models.AccountUpdate {
	enabled, deleted := false, true
	return models.AccountUpdate{Enabled: &enabled, Deleted: &deleted}
}

func positionSoftDelete() models.PositionUpdate {
	enabled, deleted := false, true
	return models.PositionUpdate{Enabled: &enabled, Deleted: &deleted}
}
