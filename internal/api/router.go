package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/historyhub/internal/api/handlers"
	"github.com/nikhilbhutani/historyhub/internal/api/middleware"
	"github.com/nikhilbhutani/historyhub/internal/app"
)

type Router struct {
	mux *chi.Mux
	app *app.App
}

func NewRouter(a *app.App) *Router {
	return &Router{
		mux: chi.NewRouter(),
		app: a,
	}
}

// Setup registers middleware and routes. ctx bounds the rate limiter's
// background sweeper.
func (rt *Router) Setup(ctx context.Context) http.Handler {
	r := rt.mux
	cfg := rt.app.Config

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	if cfg.Server.RateLimitRPS > 0 {
		rl := middleware.NewRateLimiter(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		r.Use(rl.Limit)
	}

	health := handlers.NewHealthHandler(rt.app.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	transcribeH := handlers.NewTranscribeHandler(rt.app.STT, cfg.STT.MaxUploadMB)
	r.Post("/api/transcribe", transcribeH.Transcribe)

	r.Route("/api/v1", func(r chi.Router) {
		historyH := handlers.NewHistoryHandler(rt.app.History, rt.app.Stream)
		r.Route("/history", func(r chi.Router) {
			r.Get("/", historyH.Get)
			r.Patch("/", historyH.Patch)
			r.Delete("/", historyH.Delete)
			r.Get("/stream", historyH.Stream)

			auditH := handlers.NewAuditHandler(rt.app.Audit)
			r.Get("/audit", auditH.List)
		})

		modelsH := handlers.NewModelsHandler(rt.app.Catalog)
		r.Route("/models", func(r chi.Router) {
			r.Get("/", modelsH.List)
			r.Get("/{id}", modelsH.Get)
		})
	})

	return r
}
