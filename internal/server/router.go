package server

import (
	"net/http"

	"github.com/maruel/listopt/internal/optimizer"
	"github.com/maruel/listopt/internal/server/handlers"
	"github.com/maruel/listopt/internal/server/ratelimit"
	"github.com/maruel/listopt/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services are the dependencies of the HTTP API.
type Services struct {
	Users         *storage.UserService
	Products      *storage.ProductService
	Optimizations *storage.OptimizationService
	Optimizer     optimizer.Optimizer
	Dispatcher    *optimizer.Dispatcher
	// Schemas and Documents are keyed by document name.
	Schemas   map[string]handlers.SchemaProvider
	Documents map[string]handlers.Counter
	Version   string
}

// NewRouter creates and configures the HTTP router. When reg is not nil, the
// HTTP metrics are registered on it and it is served at /metrics.
func NewRouter(svc *Services, cfg *handlers.Config, limiters *ratelimit.Limiters, reg *prometheus.Registry) http.Handler {
	if limiters == nil {
		limiters = &ratelimit.Limiters{}
	}
	mux := http.NewServeMux()
	a := NewAuthenticator(svc.Users, cfg.JWTSecret)

	authH := handlers.NewAuthHandler(svc.Users, cfg)
	productH := handlers.NewProductHandler(svc.Products)
	optH := handlers.NewOptimizationHandler(svc.Products, svc.Optimizations, svc.Optimizer)
	pubH := handlers.NewPublishingHandler(svc.Dispatcher)
	schemaH := handlers.NewSchemaHandler(svc.Schemas)
	healthH := handlers.NewHealthHandler(svc.Version, svc.Documents)

	mux.Handle("GET /{$}", Wrap(handlers.Root, cfg, nil))
	mux.Handle("GET /api/health", Wrap(healthH.Health, cfg, nil))
	mux.Handle("GET /api/platforms", Wrap(handlers.Platforms, cfg, nil))
	mux.Handle("GET /api/platforms/{name}", Wrap(handlers.Platform, cfg, nil))
	mux.Handle("GET /api/schemas/{entity}", Wrap(schemaH.Get, cfg, nil))

	// Auth
	mux.Handle("POST /api/auth/register", Wrap(authH.Register, cfg, limiters.Auth))
	mux.Handle("POST /api/auth/login", Wrap(authH.Login, cfg, limiters.Auth))
	mux.Handle("GET /api/auth/me", WrapAuth(authH.Me, a, cfg, nil))
	mux.Handle("PUT /api/auth/me/plan", WrapAuth(authH.UpdatePlan, a, cfg, limiters.Write))

	// Products
	mux.Handle("GET /api/products", WrapAuth(productH.List, a, cfg, nil))
	mux.Handle("POST /api/products", WrapAuth(productH.Create, a, cfg, limiters.Write))
	mux.Handle("GET /api/products/{id}", WrapAuth(productH.Get, a, cfg, nil))
	mux.Handle("PUT /api/products/{id}", WrapAuth(productH.Update, a, cfg, limiters.Write))
	mux.Handle("DELETE /api/products/{id}", WrapAuth(productH.Delete, a, cfg, limiters.Write))

	// Optimizations
	mux.Handle("POST /api/optimizations", WrapAuth(optH.Create, a, cfg, limiters.Write))
	mux.Handle("GET /api/optimizations", WrapAuth(optH.List, a, cfg, nil))
	mux.Handle("GET /api/optimizations/usage", WrapAuth(optH.Usage, a, cfg, nil))
	mux.Handle("GET /api/optimizations/{id}", WrapAuth(optH.Get, a, cfg, nil))

	// Publishing
	mux.Handle("POST /api/publishing", WrapAuth(pubH.Publish, a, cfg, limiters.Write))
	mux.Handle("POST /api/publishing/batch", WrapAuth(pubH.PublishBatch, a, cfg, limiters.Write))

	var m *HTTPMetrics
	if reg != nil {
		m = NewHTTPMetrics(reg)
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	return RequestLog(mux, m)
}
