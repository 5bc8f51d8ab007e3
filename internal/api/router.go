package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "payrecon/internal/api/context"
	"payrecon/internal/api/handlers"
	"payrecon/internal/api/middleware"
	"payrecon/internal/pkg/errors"
	"payrecon/internal/platform/auth"
)

type Dependencies struct {
	WebhookHandler     *handlers.WebhookHandler
	TransactionHandler *handlers.TransactionHandler
	EventHandler       *handlers.EventHandler
	HealthHandler      *handlers.HealthHandler
	MetricsHandler     *handlers.MetricsHandler
	AuthMiddleware     *middleware.AuthMiddleware
	RateLimiter        *middleware.RateLimiter
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	// Provider webhooks, authenticated by signature
	router.POST("/stripe/webhook", wrap(deps.WebhookHandler.Handle))

	// Operational endpoints
	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	// Middleware references
	authMid := deps.AuthMiddleware
	limit := deps.RateLimiter.Handle

	// Ledger
	router.GET("/api/v1/transactions",
		chain(deps.TransactionHandler.List, authMid.Handle, limit))
	router.GET("/api/v1/transactions/:transaction_id",
		chain(deps.TransactionHandler.Get, authMid.Handle, limit))

	// Webhook audit log
	router.GET("/api/v1/webhook-events",
		chain(deps.EventHandler.List, authMid.Handle, limit, middleware.RequireRole(auth.RoleAdmin)))
	router.GET("/api/v1/webhook-events/:event_id",
		chain(deps.EventHandler.Get, authMid.Handle, limit, middleware.RequireRole(auth.RoleAdmin)))

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Route not found", nil)
	})

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
