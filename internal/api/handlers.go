package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/portfolio-service/internal/apperr"
	"github.com/trogers1052/portfolio-service/internal/models"
)

// AccountService is the account lifecycle used by the handlers
type AccountService interface {
	AddAccount(ctx context.Context, name, desc, ownerID string) (*models.Account, error)
	UpdateAccount(ctx context.Context, id, ownerID string, u models.AccountUpdate) (*models.Account, error)
	DeleteAccount(ctx context.Context, id, ownerID string) ([]*models.Account, error)
	GetAccountsByUserID(ctx context.Context, ownerID string) ([]*models.Account, error)
}

// PositionService is the position lifecycle used by the handlers
type PositionService interface {
	GetPositionsByAccountID(ctx context.Context, accountID, ownerID string) ([]models.PositionSummary, error)
	GetPositionsByUserID(ctx context.Context, ownerID string) (map[string][]models.PositionSummary, error)
	AddPosition(ctx context.Context, accountID, ownerID, ticker string, shares decimal.Decimal) (*models.Position, error)
	UpdatePosition(ctx context.Context, key models.PositionKey, u models.PositionUpdate) (*models.Position, error)
	DeletePosition(ctx context.Context, key models.PositionKey) ([]models.PositionSummary, error)
}

// PortfolioService reads the companion portfolio of an account
type PortfolioService interface {
	GetPortfoliosByAccountID(ctx context.Context, accountID, ownerID string) ([]*models.Portfolio, error)
}

// AggregationService computes the read-side views
type AggregationService interface {
	GetPortfoliosByUserID(ctx context.Context, ownerID string) (*models.AggregationResult[models.PortfolioRow], error)
	GetBreakdownByUserID(ctx context.Context, ownerID string) (*models.AggregationResult[models.BreakdownRow], error)
	GetDividendsByUserID(ctx context.Context, ownerID string) (*models.AggregationResult[models.DividendRow], error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	accounts   AccountService
	positions  PositionService
	portfolios PortfolioService
	aggregator AggregationService
	health     HealthChecker
	validate   *validator.Validate
	log        zerolog.Logger
}

// NewHandler creates a new Handler. health may be nil.
func NewHandler(accounts AccountService, positions PositionService, portfolios PortfolioService, aggregator AggregationService, health HealthChecker, log zerolog.Logger) *Handler {
	return &Handler{
		accounts:   accounts,
		positions:  positions,
		portfolios: portfolios,
		aggregator: aggregator,
		health:     health,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        log.With().Str("component", "api").Logger(),
	}
}

type createAccountRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Desc string `json:"desc" validate:"max=1000"`
}

type updateAccountRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=200"`
	Desc    *string `json:"desc" validate:"omitempty,max=1000"`
	Enabled *bool   `json:"enabled"`
	Deleted *bool   `json:"deleted"`
}

type addPositionRequest struct {
	Ticker string           `json:"ticker" validate:"required,max=20"`
	Shares *decimal.Decimal `json:"shares" validate:"required"`
}

type updatePositionRequest struct {
	Shares  *decimal.Decimal `json:"shares"`
	Enabled *bool            `json:"enabled"`
	Deleted *bool            `json:"deleted"`
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetAccounts handles GET /users/{userId}/accounts
func (h *Handler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.GetAccountsByUserID(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, accounts)
}

// AddAccount handles POST /users/{userId}/accounts
func (h *Handler) AddAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	account, err := h.accounts.AddAccount(r.Context(), req.Name, req.Desc, mux.Vars(r)["userId"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, account)
}

// UpdateAccount handles PATCH /users/{userId}/accounts/{accountId}
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req updateAccountRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	u := models.AccountUpdate{Name: req.Name, Desc: req.Desc, Enabled: req.Enabled, Deleted: req.Deleted}
	if u.Empty() {
		h.respondError(w, r, apperr.Validation(apperr.CodeInvalidParam, "at least one of name, desc, enabled, deleted is required"))
		return
	}

	vars := mux.Vars(r)
	account, err := h.accounts.UpdateAccount(r.Context(), vars["accountId"], vars["userId"], u)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, account)
}

// DeleteAccount handles DELETE /users/{userId}/accounts/{accountId}
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	remaining, err := h.accounts.DeleteAccount(r.Context(), vars["accountId"], vars["userId"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, remaining)
}

// GetUserPositions handles GET /users/{userId}/positions
func (h *Handler) GetUserPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.GetPositionsByUserID(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, positions)
}

// GetAccountPositions handles GET /users/{userId}/accounts/{accountId}/positions
func (h *Handler) GetAccountPositions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	positions, err := h.positions.GetPositionsByAccountID(r.Context(), vars["accountId"], vars["userId"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, positions)
}

// GetAccountPortfolio handles GET /users/{userId}/accounts/{accountId}/portfolio
func (h *Handler) GetAccountPortfolio(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	portfolios, err := h.portfolios.GetPortfoliosByAccountID(r.Context(), vars["accountId"], vars["userId"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolios)
}

// AddPosition handles POST /users/{userId}/accounts/{accountId}/positions
func (h *Handler) AddPosition(w http.ResponseWriter, r *http.Request) {
	var req addPositionRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	vars := mux.Vars(r)
	position, err := h.positions.AddPosition(r.Context(), vars["accountId"], vars["userId"], req.Ticker, *req.Shares)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, position)
}

// UpdatePosition handles PATCH /users/{userId}/accounts/{accountId}/positions/{ticker}
func (h *Handler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req updatePositionRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	u := models.PositionUpdate{Shares: req.Shares, Enabled: req.Enabled, Deleted: req.Deleted}
	if u.Empty() {
		h.respondError(w, r, apperr.Validation(apperr.CodeInvalidParam, "at least one of shares, enabled, deleted is required"))
		return
	}

	position, err := h.positions.UpdatePosition(r.Context(), positionKey(r), u)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, position)
}

// DeletePosition handles DELETE /users/{userId}/accounts/{accountId}/positions/{ticker}
func (h *Handler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	remaining, err := h.positions.DeletePosition(r.Context(), positionKey(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, remaining)
}

// GetPortfolios handles GET /users/{userId}/portfolios
func (h *Handler) GetPortfolios(w http.ResponseWriter, r *http.Request) {
	result, err := h.aggregator.GetPortfoliosByUserID(r.Context(), mux.Vars(r)["userId"])
	respondAggregation(h, w, r, result, err)
}

// GetBreakdown handles GET /users/{userId}/breakdown
func (h *Handler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	result, err := h.aggregator.GetBreakdownByUserID(r.Context(), mux.Vars(r)["userId"])
	respondAggregation(h, w, r, result, err)
}

// GetDividends handles GET /users/{userId}/dividends
func (h *Handler) GetDividends(w http.ResponseWriter, r *http.Request) {
	result, err := h.aggregator.GetDividendsByUserID(r.Context(), mux.Vars(r)["userId"])
	respondAggregation(h, w, r, result, err)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Msg("Health check failed")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// decode reads and validates a JSON request body
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation(apperr.CodeInvalidParam, "invalid request body: "+err.Error())
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperr.Validation(apperr.CodeInvalidParam, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, strings.ToLower(fe.Field())+" failed "+fe.Tag()+" validation")
	}
	return strings.Join(msgs, "; ")
}

func positionKey(r *http.Request) models.PositionKey {
	vars := mux.Vars(r)
	return models.PositionKey{
		AccountID: vars["accountId"],
		CreatedBy: vars["userId"],
		Ticker:    vars["ticker"],
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.From(err)
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Str("code", string(appErr.Code)).
			Msg("Request failed")
	}

	respondJSON(w, status, errorResponse{Code: string(appErr.Code), Message: appErr.Message})
}

// respondAggregation maps the aggregation status to 200, 207 or 502
func respondAggregation[R any](h *Handler, w http.ResponseWriter, r *http.Request, result *models.AggregationResult[R], err error) {
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	switch result.Status {
	case models.AggregationPartial:
		status = http.StatusMultiStatus
	case models.AggregationFailed:
		status = http.StatusBadGateway
	}
	respondJSON(w, status, result)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
