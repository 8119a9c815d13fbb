package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zatekoja/quizfunnel/internal/api/handlers"
	"github.com/zatekoja/quizfunnel/internal/api/middleware"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	trackingHandler *handlers.TrackingHandler
	sessionHandler  *handlers.SessionHandler
	webhookHandler  *handlers.PurchaseWebhookHandler
	adminHandler    *handlers.AdminStatsHandler
	quizHandler     *handlers.QuizHandler
	configHandler   *handlers.ConfigHandler
	healthHandler   *handlers.HealthHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// Handlers groups the endpoints mounted by the router.
type Handlers struct {
	Tracking *handlers.TrackingHandler
	Session  *handlers.SessionHandler
	Webhook  *handlers.PurchaseWebhookHandler
	Admin    *handlers.AdminStatsHandler
	Quiz     *handlers.QuizHandler
	Config   *handlers.ConfigHandler
	Health   *handlers.HealthHandler
}

// NewRouter creates a new router. metrics may be nil.
func NewRouter(h Handlers, allowedOrigins []string, metrics *observability.Metrics) *Router {
	return &Router{
		trackingHandler: h.Tracking,
		sessionHandler:  h.Session,
		webhookHandler:  h.Webhook,
		adminHandler:    h.Admin,
		quizHandler:     h.Quiz,
		configHandler:   h.Config,
		healthHandler:   h.Health,
		allowedOrigins:  allowedOrigins,
		metrics:         metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	mux := chi.NewRouter()

	// CORS first so preflights never reach the logger or a handler.
	mux.Use(middleware.CORSMiddleware(r.allowedOrigins))
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.ObservabilityMiddleware(r.metrics))
	mux.Use(chimw.Compress(5, "application/json"))

	mux.Get("/health", r.healthHandler.Health)
	mux.Method(http.MethodGet, "/metrics", promhttp.Handler())

	mux.Route("/api", func(api chi.Router) {
		api.Get("/session", r.sessionHandler.GetSession)
		api.Get("/config", r.configHandler.GetConfig)

		api.Post("/tracking", r.trackingHandler.Track)
		api.Post("/quiz/estimate", r.quizHandler.Estimate)

		// Checkout provider callback
		api.Post("/vega-webhook", r.webhookHandler.HandleWebhook)

		api.Get("/admin/stats", r.adminHandler.GetStats)
	})

	return mux
}
