package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/metrics"
)

// NewRouter builds and returns the Chi router with all routes configured.
// Health and metrics are unauthenticated; all plan routes require bearer auth.
// Rate limiting is applied globally: 60 requests per minute per IP.
func NewRouter(handlers *Handlers, token string, db dbPinger, redisClient redisPinger, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(Instrument)
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/api/v1/health", HealthHandlerFunc(db, redisClient, log))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(token))
		r.Post("/api/v1/plans/{planID}/rebuild", handlers.RebuildPlan)
		r.Get("/api/v1/plans/{planID}/timeline", handlers.GetTimeline)
		r.Post("/api/v1/plans/{planID}/segments/{segmentID}/preview-insert", handlers.PreviewInsert)
		r.Post("/api/v1/plans/{planID}/segments/{segmentID}/commit-insert", handlers.CommitInsert)
		r.Post("/api/v1/plans/{planID}/segments/{segmentID}/preview-remove", handlers.PreviewRemove)
		r.Post("/api/v1/distance-cache/invalidate", handlers.InvalidateDistances)
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
