package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/planner"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/timeline"
)

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	plans     PlanService
	distances DistanceInvalidator
	log       *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(plans PlanService, distances DistanceInvalidator, log *slog.Logger) *Handlers {
	return &Handlers{
		plans:     plans,
		distances: distances,
		log:       log,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// writeServiceError maps planner sentinels to HTTP statuses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, planner.ErrPlanNotFound),
		errors.Is(err, planner.ErrSegmentNotFound),
		errors.Is(err, planner.ErrHotspotNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, timeline.ErrStaleTimeline):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, planner.ErrInsertRejected):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "operation timed out, retry later"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// RebuildPlan handles POST /api/v1/plans/{planID}/rebuild.
// Regenerates every segment timeline and returns them.
func (h *Handlers) RebuildPlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := idParam(r, "planID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid plan id"})
		return
	}

	results, err := h.plans.RebuildPlan(r.Context(), planID)
	if err != nil {
		h.log.Error("rebuild failed", "plan", planID, "err", err)
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"plan_id": planID, "segments": results})
}

// GetTimeline handles GET /api/v1/plans/{planID}/timeline.
func (h *Handlers) GetTimeline(w http.ResponseWriter, r *http.Request) {
	planID, ok := idParam(r, "planID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid plan id"})
		return
	}

	results, err := h.plans.Timeline(r.Context(), planID)
	if err != nil {
		h.log.Error("timeline load failed", "plan", planID, "err", err)
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"plan_id": planID, "segments": results})
}

type insertRequest struct {
	HotspotID int64 `json:"hotspot_id"`
	Version   int64 `json:"version"`
}

type removeRequest struct {
	EntryID int64 `json:"entry_id"`
}

// PreviewInsert handles POST /api/v1/plans/{planID}/segments/{segmentID}/preview-insert.
// Simulates the insertion and returns the would-be entry plus any shifted or
// conflicting rows. Nothing is persisted; repeating the call with the same
// timeline state returns the same preview id.
func (h *Handlers) PreviewInsert(w http.ResponseWriter, r *http.Request) {
	planID, okP := idParam(r, "planID")
	segmentID, okS := idParam(r, "segmentID")
	if !okP || !okS {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid plan or segment id"})
		return
	}

	var req insertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.HotspotID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "hotspot_id required"})
		return
	}

	res, err := h.plans.PreviewInsert(r.Context(), planID, segmentID, req.HotspotID)
	if err != nil {
		h.log.Error("preview insert failed", "plan", planID, "segment", segmentID, "hotspot", req.HotspotID, "err", err)
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// CommitInsert handles POST /api/v1/plans/{planID}/segments/{segmentID}/commit-insert.
// Applies a previously previewed insertion. The request carries the segment
// version the preview reported; a stale version yields 409 and the client
// must preview again.
func (h *Handlers) CommitInsert(w http.ResponseWriter, r *http.Request) {
	planID, okP := idParam(r, "planID")
	segmentID, okS := idParam(r, "segmentID")
	if !okP || !okS {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid plan or segment id"})
		return
	}

	var req insertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.HotspotID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "hotspot_id required"})
		return
	}

	res, err := h.plans.CommitInsert(r.Context(), planID, segmentID, req.HotspotID, req.Version)
	if err != nil {
		h.log.Error("commit insert failed", "plan", planID, "segment", segmentID, "hotspot", req.HotspotID, "err", err)
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// PreviewRemove handles POST /api/v1/plans/{planID}/segments/{segmentID}/preview-remove.
func (h *Handlers) PreviewRemove(w http.ResponseWriter, r *http.Request) {
	planID, okP := idParam(r, "planID")
	segmentID, okS := idParam(r, "segmentID")
	if !okP || !okS {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid plan or segment id"})
		return
	}

	var req removeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EntryID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "entry_id required"})
		return
	}

	res, err := h.plans.PreviewRemove(r.Context(), planID, segmentID, req.EntryID)
	if err != nil {
		h.log.Error("preview remove failed", "plan", planID, "segment", segmentID, "entry", req.EntryID, "err", err)
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// InvalidateDistances handles POST /api/v1/distance-cache/invalidate.
// Drops the hot cache only; persisted pair rows survive and repopulate it.
func (h *Handlers) InvalidateDistances(w http.ResponseWriter, r *http.Request) {
	if err := h.distances.InvalidateAll(r.Context()); err != nil {
		h.log.Error("distance cache invalidation failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to invalidate distance cache"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// HealthCheck handles GET /api/v1/health.
// Pings DB and Redis; returns 200 if both ok, 503 otherwise.
type dbPinger interface {
	Ping(ctx context.Context) error
}

type redisPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlerFunc returns an http.HandlerFunc that checks db and redis connectivity.
func HealthHandlerFunc(db dbPinger, redis redisPinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		dbStatus := "ok"
		redisStatus := "ok"

		if err := db.Ping(ctx); err != nil {
			log.Error("health check: db ping failed", "err", err)
			dbStatus = "error"
			status = http.StatusServiceUnavailable
		}

		if err := redis.Ping(ctx); err != nil {
			log.Error("health check: redis ping failed", "err", err)
			redisStatus = "error"
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, map[string]string{
			"status": func() string {
				if status == http.StatusOK {
					return "ok"
				}
				return "degraded"
			}(),
			"db":    dbStatus,
			"redis": redisStatus,
		})
	}
}
