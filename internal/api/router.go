package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/greyledger/offline-sync/internal/api/handler"
	"github.com/greyledger/offline-sync/internal/api/middleware"
	"github.com/greyledger/offline-sync/internal/api/spec"
	"github.com/greyledger/offline-sync/internal/config"
	"github.com/greyledger/offline-sync/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Router struct {
	cfg     *config.Config
	logger  *zap.Logger
	session *session.Session
	redis   redis.Cmdable
}

func NewRouter(cfg *config.Config, logger *zap.Logger, sess *session.Session, redisClient redis.Cmdable) *Router {
	return &Router{cfg: cfg, logger: logger, session: sess, redis: redisClient}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.RateLimiter(api.cfg.RateLimitRPS))

	// Handlers
	accountHandler := handler.NewAccountHandler(api.session)
	transactionHandler := handler.NewTransactionHandler(api.session)
	syncHandler := handler.NewSyncHandler(api.session)
	healthHandler := handler.NewHealthHandler(api.session, api.redis)

	// Accounts
	r.Get("/v1/accounts", accountHandler.List)
	r.Get("/v1/accounts/projected", accountHandler.Projected)
	r.Get("/v1/accounts/{id}/transactions", accountHandler.Transactions)
	r.Post("/v1/accounts", accountHandler.Create)

	// Transactions
	r.Post("/v1/transactions", transactionHandler.SubmitNow)
	r.Post("/v1/transactions/stage", transactionHandler.Stage)
	r.Get("/v1/transactions/staged", transactionHandler.ListStaged)
	r.Delete("/v1/transactions/staged", transactionHandler.Discard)
	r.Post("/v1/transactions/commit", transactionHandler.Commit)

	// Sync worker
	r.Post("/v1/sync", syncHandler.Trigger)
	r.Get("/v1/sync/status", syncHandler.Status)

	// Operability
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())

	return r
}
