package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apimiddleware "github.com/phrazzld/grimoire-api/internal/api/middleware"
	"github.com/phrazzld/grimoire-api/internal/service/auth"
)

// RouterDeps carries the handlers and middleware the router wires up.
type RouterDeps struct {
	Auth    *AuthHandler
	Workers *WorkerHandler
	Cards   *CardHandler
	AuthMW  *apimiddleware.AuthMiddleware
}

// NewRouter creates the application router with all routes and middleware.
//
// Route map:
//
//	POST /api/auth/token               public: secret -> bearer token
//	POST /api/jobs/claim               worker: claim one job
//	POST /api/jobs/{id}/renew          worker: extend lease
//	POST /api/jobs/{id}/submit         worker: commit guide draft
//	POST /api/jobs/{id}/fail           worker: report failed attempt
//	GET  /api/cards/{id}               worker: card read
//	GET  /api/cards/{id}/guide         worker: guide read (?resolve=1)
//	GET  /api/cards/{id}/mentions      worker: mention listing
//	GET  /api/stats                    worker: pipeline progress
//	GET  /api/stats/top-mentions       worker: most-mentioned cards (?limit=N)
//	POST /api/cards                    admin: bulk ingest
//	POST /api/cards/{id}/requeue       admin: re-analysis
//	POST /api/cards/{id}/reset         admin: reset failed job
//	GET  /healthz                      public
//	GET  /metrics                      public: Prometheus exposition
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Authentication endpoints (public)
		r.Post("/auth/token", deps.Auth.Token)

		// Worker surface: the job protocol plus read access to the catalog
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMW.Authenticate)
			r.Use(deps.AuthMW.RequireRole(auth.RoleWorker))

			r.Post("/jobs/claim", deps.Workers.Claim)
			r.Post("/jobs/{id}/renew", deps.Workers.Renew)
			r.Post("/jobs/{id}/submit", deps.Workers.Submit)
			r.Post("/jobs/{id}/fail", deps.Workers.Fail)

			r.Get("/cards/{id}", deps.Cards.GetCard)
			r.Get("/cards/{id}/guide", deps.Cards.GetGuide)
			r.Get("/cards/{id}/mentions", deps.Cards.Mentions)
			r.Get("/stats", deps.Cards.Stats)
			r.Get("/stats/top-mentions", deps.Cards.TopMentions)
		})

		// Admin surface: ingestion and operator job controls
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMW.Authenticate)
			r.Use(deps.AuthMW.RequireRole(auth.RoleAdmin))

			r.Post("/cards", deps.Cards.Ingest)
			r.Post("/cards/{id}/requeue", deps.Cards.Requeue)
			r.Post("/cards/{id}/reset", deps.Cards.ResetFailed)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
