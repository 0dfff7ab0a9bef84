package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, handler.loggingMiddleware)

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1/users/{userId}").Subrouter()

	// Account routes
	api.HandleFunc("/accounts", handler.GetAccounts).Methods("GET")
	api.HandleFunc("/accounts", handler.AddAccount).Methods("POST")
	api.HandleFunc("/accounts/{accountId}", handler.UpdateAccount).Methods("PATCH")
	api.HandleFunc("/accounts/{accountId}", handler.DeleteAccount).Methods("DELETE")
	api.HandleFunc("/accounts/{accountId}/portfolio", handler.GetAccountPortfolio).Methods("GET")

	// Position routes
	api.HandleFunc("/positions", handler.GetUserPositions).Methods("GET")
	api.HandleFunc("/accounts/{accountId}/positions", handler.GetAccountPositions).Methods("GET")
	api.HandleFunc("/accounts/{accountId}/positions", handler.AddPosition).Methods("POST")
	api.HandleFunc("/accounts/{accountId}/positions/{ticker}", handler.UpdatePosition).Methods("PATCH")
	api.HandleFunc("/accounts/{accountId}/positions/{ticker}", handler.DeletePosition).Methods("DELETE")

	// Aggregation routes
	api.HandleFunc("/portfolios", handler.GetPortfolios).Methods("GET")
	api.HandleFunc("/breakdown", handler.GetBreakdown).Methods("GET")
	api.HandleFunc("/dividends", handler.GetDividends).Methods("GET")

	return r
}

// loggingMiddleware logs HTTP requests
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
