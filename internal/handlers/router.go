package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/taracart/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	checkout RouteRegistrar
	risk     RouteRegistrar
	track    RouteRegistrar
	admin    RouteRegistrar

	checkoutMiddlewares []func(http.Handler) http.Handler
	riskMiddlewares     []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix = "/v1"
	defaultTimeout   = 60 * time.Second
)

// WithBasePath overrides the API prefix.
func WithBasePath(path string) Option {
	return func(cfg *routerConfig) {
		if path != "" {
			cfg.basePath = path
		}
	}
}

// WithMiddleware appends shared middleware applied to every route.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealth installs the health handlers.
func WithHealth(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithCheckout installs the checkout route group with its own middleware,
// typically the submission rate limiter.
func WithCheckout(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.checkout = reg
		cfg.checkoutMiddlewares = mw
	}
}

// WithRisk installs the risk verification route group with its own middleware.
func WithRisk(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.risk = reg
		cfg.riskMiddlewares = mw
	}
}

// WithTrack installs the event tracking route group.
func WithTrack(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.track = reg }
}

// WithAdmin installs the bearer-guarded admin route group.
func WithAdmin(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.admin = reg }
}

// NewRouter constructs the chi router with shared middleware and route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	if cfg.health != nil {
		cfg.health.Routes(r)
	}

	r.Route(cfg.basePath, func(api chi.Router) {
		if cfg.checkout != nil {
			api.Group(func(group chi.Router) {
				for _, mw := range cfg.checkoutMiddlewares {
					if mw != nil {
						group.Use(mw)
					}
				}
				cfg.checkout(group)
			})
		}
		if cfg.risk != nil {
			api.Group(func(group chi.Router) {
				for _, mw := range cfg.riskMiddlewares {
					if mw != nil {
						group.Use(mw)
					}
				}
				cfg.risk(group)
			})
		}
		if cfg.track != nil {
			cfg.track(api)
		}
		if cfg.admin != nil {
			cfg.admin(api)
		}
	})

	return r
}
