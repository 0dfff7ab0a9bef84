package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for callers that need to pick a transport status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindRepository
	KindAggregation
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindRepository:
		return "repository"
	case KindAggregation:
		return "aggregation"
	default:
		return "internal"
	}
}

// Code is a stable, user-visible error identifier
type Code string

const (
	CodeInvalidParam Code = "INVALID_PARAM"
	CodeInternal     Code = "INTERNAL_ERROR"

	CodeAccountNotExisted    Code = "ACCOUNT_NOT_EXISTED"
	CodeCreateAccountFailed  Code = "CREATE_ACCOUNT_FAILED"
	CodeUpdateAccountFailed  Code = "UPDATE_ACCOUNT_FAILED"
	CodeDeleteAccountFailed  Code = "DELETE_ACCOUNT_FAILED"
	CodeSearchAccountsFailed Code = "SEARCH_ACCOUNTS_FAILED"
	CodeAccountHookFailed    Code = "ACCOUNT_HOOK_FAILED"

	CodePositionExisted       Code = "POSITION_EXISTED"
	CodePositionNotExisted    Code = "POSITION_NOT_EXISTED"
	CodeCreatePositionFailed  Code = "CREATE_POSITION_FAILED"
	CodeUpdatePositionFailed  Code = "UPDATE_POSITION_FAILED"
	CodeDeletePositionFailed  Code = "DELETE_POSITION_FAILED"
	CodeSearchPositionsFailed Code = "SEARCH_POSITIONS_FAILED"

	CodePortfolioExisted       Code = "PORTFOLIO_EXISTED"
	CodePortfolioNotExisted    Code = "PORTFOLIO_NOT_EXISTED"
	CodeCreatePortfolioFailed  Code = "CREATE_PORTFOLIO_FAILED"
	CodeUpdatePortfolioFailed  Code = "UPDATE_PORTFOLIO_FAILED"
	CodeDeletePortfolioFailed  Code = "DELETE_PORTFOLIO_FAILED"
	CodeSearchPortfoliosFailed Code = "SEARCH_PORTFOLIOS_FAILED"

	CodeLookupFailed      Code = "AGGREGATION_LOOKUP_FAILED"
	CodeMissingReference  Code = "AGGREGATION_MISSING_REFERENCE"
	CodeAggregationFailed Code = "AGGREGATION_FAILED"
)

// Error is the domain error carried across package boundaries.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed or missing input.
func Validation(code Code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

// Conflict reports an existence-guard failure.
func Conflict(code Code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

// Aggregation reports a failed or incomplete reference-data join.
func Aggregation(code Code, msg string, err error) *Error {
	return &Error{Kind: KindAggregation, Code: code, Message: msg, Err: err}
}

// Internal reports a failure that is not attributable to input or storage.
func Internal(code Code, msg string, err error) *Error {
	return &Error{Kind: KindInternal, Code: code, Message: msg, Err: err}
}

// Wrap classifies err as a repository failure under code. Errors that are
// already classified pass through unchanged so the innermost code wins.
func Wrap(err error, code Code) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{Kind: KindRepository, Code: code, Message: err.Error(), Err: err}
}

// From extracts the domain error, defaulting to an internal failure.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: err.Error(), Err: err}
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch From(err).Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindAggregation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
