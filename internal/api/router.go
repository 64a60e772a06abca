package api

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/go-chi/chi/v5"

	"github.com/hafedapp/entitlement/internal/activation"
	"github.com/hafedapp/entitlement/internal/api/handler"
	"github.com/hafedapp/entitlement/internal/api/middleware"
	"github.com/hafedapp/entitlement/internal/entitlement"
	"github.com/hafedapp/entitlement/internal/identity"
	"github.com/hafedapp/entitlement/internal/metrics"
	"github.com/hafedapp/entitlement/internal/purchase"
	"github.com/hafedapp/entitlement/internal/reconcile"
	"github.com/hafedapp/entitlement/internal/trial"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Checks      map[string]handler.Pinger
	Version     string
	OpenAPISpec []byte

	Identity      identity.Resolver
	Purchases     *purchase.Service
	WebhookTokens *purchase.TokenChecker
	Activation    *activation.Service
	Reconciler    *reconcile.Service
	Evaluator     *entitlement.Evaluator
	Trials        *trial.Gate

	Metrics           *metrics.Metrics
	MetricsHandler    http.Handler
	ActivationLimiter *middleware.RateLimiter
	ResolveTimeout    time.Duration
	CORSOrigin        string
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)
	r.Use(middleware.CORS(deps.CORSOrigin))
	r.MethodNotAllowed(handler.MethodNotAllowed)

	healthHandler := handler.NewHealthHandler(deps.Checks, deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)

	if len(deps.OpenAPISpec) > 0 {
		openapiHandler := handler.NewOpenAPIHandler(deps.OpenAPISpec)
		r.Get("/openapi.json", openapiHandler.JSON)
		r.Get("/openapi.yaml", openapiHandler.YAML)
	}

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	if deps.Purchases != nil {
		purchaseHandler := handler.NewPurchaseHandler(deps.Purchases, deps.WebhookTokens, deps.Metrics)
		r.Post("/webhooks/purchase", purchaseHandler.ServeHTTP)
	}

	if deps.Identity == nil || deps.Reconciler == nil {
		return r
	}

	required := middleware.Authenticate(deps.Identity, true)
	optional := middleware.Authenticate(deps.Identity, false)

	claimHandler := handler.NewClaimHandler(deps.Reconciler)
	r.Options("/profile/claim", handler.Preflight)
	r.With(required).Post("/profile/claim", claimHandler.ServeHTTP)

	if deps.Activation != nil {
		activationHandler := handler.NewActivationHandler(deps.Activation, deps.Metrics)
		chain := []func(http.Handler) http.Handler{required}
		if deps.ActivationLimiter != nil {
			chain = append(chain, deps.ActivationLimiter.Middleware(middleware.ByIdentityOrIP))
		}
		r.Options("/license/activate", handler.Preflight)
		r.With(chain...).Post("/license/activate", activationHandler.ServeHTTP)
	}

	if deps.Evaluator != nil {
		status := handler.NewStatusResolver(deps.Reconciler, deps.Evaluator, deps.ResolveTimeout)

		meHandler := handler.NewMeHandler(status)
		r.With(optional).Get("/me", meHandler.ServeHTTP)

		if deps.Trials != nil {
			trialHandler := handler.NewTrialHandler(deps.Trials, status, deps.Metrics)
			r.Route("/trial", func(r chi.Router) {
				r.Use(optional)
				r.Get("/", trialHandler.Status)
				r.Post("/{action}", trialHandler.Start)
			})
		}
	}

	return r
}
