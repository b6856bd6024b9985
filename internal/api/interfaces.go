package api

import (
	"context"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/planner"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/timeline"
)

// PlanService defines the scheduling operations needed by handlers.
type PlanService interface {
	RebuildPlan(ctx context.Context, planID int64) ([]planner.SegmentResult, error)
	Timeline(ctx context.Context, planID int64) ([]planner.SegmentResult, error)
	PreviewInsert(ctx context.Context, planID, segmentID, hotspotID int64) (timeline.PreviewResult, error)
	CommitInsert(ctx context.Context, planID, segmentID, hotspotID, expectedVersion int64) (timeline.PreviewResult, error)
	PreviewRemove(ctx context.Context, planID, segmentID, entryID int64) (timeline.PreviewResult, error)
}

// DistanceInvalidator defines the cache maintenance operation needed by handlers.
type DistanceInvalidator interface {
	InvalidateAll(ctx context.Context) error
}
