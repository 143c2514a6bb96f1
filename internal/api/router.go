/**
 * @description
 * HTTP routing for the banking core. Public endpoints are limited to the health
 * check; everything else runs behind bearer-token authentication.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the authentication and throttling settings for NewRouter.
type RouterConfig struct {
	JWTSecret                  string
	JWTIssuer                  string
	TransferRateLimitPerMinute int
}

// NewRouter creates a new Chi router and registers the banking routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.handleOpenAccount)
			r.Get("/", h.handleListAccounts)
			r.Get("/{accountID}", h.handleGetAccount)
			r.Get("/{accountID}/transactions", h.handleListTransactions)
		})

		r.Route("/transfers", func(r chi.Router) {
			r.With(RateLimitMiddleware(h.limiter, h.logger, "transfer", cfg.TransferRateLimitPerMinute, time.Minute)).
				Post("/", h.handleTransfer)
			r.Get("/{transactionID}", h.handleGetTransaction)
		})

		r.Route("/scheduled-payments", func(r chi.Router) {
			r.Post("/", h.handleCreateScheduledPayment)
			r.Get("/", h.handleListScheduledPayments)
			r.Get("/{paymentID}", h.handleGetScheduledPayment)
			r.Put("/{paymentID}", h.handleUpdateScheduledPayment)
			r.Delete("/{paymentID}", h.handleDeleteScheduledPayment)
		})

		r.Route("/api/recurring-payments", func(r chi.Router) {
			r.Post("/", h.handleCreateRecurringPayment)
			r.Get("/", h.handleListRecurringPayments)
			r.Get("/{paymentID}", h.handleGetRecurringPayment)
			r.Put("/{paymentID}", h.handleUpdateRecurringPayment)
			r.Delete("/{paymentID}", h.handleCancelRecurringPayment)
		})

		r.Get("/activity-logs", h.handleListActivity)
	})

	return r
}
