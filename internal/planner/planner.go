// Package planner orchestrates full-trip regeneration and the manual-edit
// entry points around the timeline assembler.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/config"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/hotspot"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/metrics"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/storage"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/timeline"
)

// Repo is the persistence surface the planner needs. *storage.Repository
// implements it.
type Repo interface {
	ListSegments(ctx context.Context, planID int64) ([]timeline.Segment, error)
	GetSegment(ctx context.Context, segmentID int64) (*timeline.Segment, error)
	ListHotspots(ctx context.Context) ([]hotspot.Hotspot, error)
	ListEntries(ctx context.Context, segmentID int64) ([]timeline.Entry, error)
	ListManualHotspotIDs(ctx context.Context, segmentID int64) ([]int64, error)
	ReplaceEntries(ctx context.Context, segmentID int64, expectedVersion int64, entries []timeline.Entry) error
	SoftDeleteDuplicateManuals(ctx context.Context, segmentID, hotspotID int64) (int64, error)
	WithSegmentLock(ctx context.Context, planID, segmentID int64, fn func(ctx context.Context) error) error
}

// Sentinels for the manual-edit surface.
var (
	ErrPlanNotFound    = errors.New("plan not found")
	ErrSegmentNotFound = errors.New("segment not found")
	ErrHotspotNotFound = errors.New("hotspot not found")
	ErrInsertRejected  = errors.New("insert rejected")
)

// SegmentResult is the outcome of one segment's rebuild. Err is scoped to
// the segment; sibling segments complete independently.
type SegmentResult struct {
	Segment timeline.Segment `json:"segment"`
	Entries []timeline.Entry `json:"entries,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Planner ties the repository, eligibility filter, and assembler together.
type Planner struct {
	repo     Repo
	asm      *timeline.Assembler
	settings config.Settings
	log      *slog.Logger
}

// New constructs a Planner.
func New(repo Repo, asm *timeline.Assembler, settings config.Settings, log *slog.Logger) *Planner {
	return &Planner{repo: repo, asm: asm, settings: settings, log: log}
}

// RebuildPlan regenerates every segment timeline of a plan. Segments are
// independent once their candidate sets are computed, so they assemble in
// parallel; a segment-scoped failure (infeasible window, bad reference row)
// is reported in its result and never aborts siblings. The whole rebuild is
// bounded by the configured timeout and returns a retryable error when it
// fires; a segment is only persisted after its build fully succeeded.
func (p *Planner) RebuildPlan(ctx context.Context, planID int64) ([]SegmentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.settings.RebuildTimeout)
	defer cancel()

	segments, err := p.repo.ListSegments(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("listing segments for plan %d: %w", planID, err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("plan %d: %w", planID, ErrPlanNotFound)
	}

	all, err := p.repo.ListHotspots(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing hotspots: %w", err)
	}
	catalog := catalogOf(all)

	results := make([]SegmentResult, len(segments))
	g, gCtx := errgroup.WithContext(ctx)

	for i, seg := range segments {
		g.Go(func() error {
			entries, err := p.rebuildSegment(gCtx, seg, all, catalog)
			results[i] = SegmentResult{Segment: seg, Entries: entries}
			if err != nil {
				if isSegmentScoped(err) {
					metrics.SegmentsAssembled.WithLabelValues("infeasible").Inc()
					results[i].Error = err.Error()
					return nil
				}
				metrics.SegmentsAssembled.WithLabelValues("error").Inc()
				return err
			}
			metrics.SegmentsAssembled.WithLabelValues("ok").Inc()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("rebuilding plan %d timed out, retry later: %w", planID, ctx.Err())
		}
		return nil, fmt.Errorf("rebuilding plan %d: %w", planID, err)
	}
	return results, nil
}

func (p *Planner) rebuildSegment(ctx context.Context, seg timeline.Segment, all []hotspot.Hotspot, catalog map[int64]hotspot.Hotspot) ([]timeline.Entry, error) {
	started := time.Now()
	defer func() { metrics.AssemblyDuration.Observe(time.Since(started).Seconds()) }()

	manualIDs, err := p.repo.ListManualHotspotIDs(ctx, seg.ID)
	if err != nil {
		return nil, fmt.Errorf("listing manual hotspots for segment %d: %w", seg.ID, err)
	}
	var manual []hotspot.Hotspot
	for _, id := range manualIDs {
		if h, ok := catalog[id]; ok {
			manual = append(manual, h)
		}
	}

	sets := hotspot.Eligible(all, hotspot.SegmentQuery{
		Source:      seg.Source,
		Destination: seg.Destination,
		Via:         seg.Via,
		Direct:      seg.Direct,
		Weekday:     seg.Weekday(),
	})

	entries, err := p.asm.Build(ctx, seg, sets, manual)
	if err != nil {
		return nil, err
	}

	// A concurrent manual commit bumps the version and loses our build;
	// -1 skips the check because a rebuild takes whatever state it finds.
	if err := p.repo.ReplaceEntries(ctx, seg.ID, -1, entries); err != nil {
		return nil, fmt.Errorf("persisting timeline for segment %d: %w", seg.ID, err)
	}
	return entries, nil
}

// Timeline returns the persisted timelines of all segments of a plan.
func (p *Planner) Timeline(ctx context.Context, planID int64) ([]SegmentResult, error) {
	segments, err := p.repo.ListSegments(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("listing segments for plan %d: %w", planID, err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("plan %d: %w", planID, ErrPlanNotFound)
	}

	results := make([]SegmentResult, len(segments))
	for i, seg := range segments {
		entries, err := p.repo.ListEntries(ctx, seg.ID)
		if err != nil {
			return nil, fmt.Errorf("listing entries for segment %d: %w", seg.ID, err)
		}
		results[i] = SegmentResult{Segment: seg, Entries: entries}
	}
	return results, nil
}

// PreviewInsert simulates adding a hotspot to a segment without persisting.
// It runs under the segment's advisory lock so a concurrent commit cannot
// change the state mid-simulation.
func (p *Planner) PreviewInsert(ctx context.Context, planID, segmentID, hotspotID int64) (timeline.PreviewResult, error) {
	var res timeline.PreviewResult
	err := p.repo.WithSegmentLock(ctx, planID, segmentID, func(ctx context.Context) error {
		seg, catalog, h, entries, err := p.loadForEdit(ctx, planID, segmentID, hotspotID)
		if err != nil {
			return err
		}
		res, err = p.asm.PreviewInsert(ctx, *seg, entries, h, catalog)
		return err
	})
	if err != nil {
		metrics.Previews.WithLabelValues("insert", "error").Inc()
		return timeline.PreviewResult{}, err
	}
	metrics.Previews.WithLabelValues("insert", outcomeOf(res)).Inc()
	return res, nil
}

// CommitInsert applies a previously previewed insertion. expectedVersion is
// the SegmentVersion returned by the preview; if the segment moved on since,
// the commit fails with StaleTimeline and the caller must re-preview.
func (p *Planner) CommitInsert(ctx context.Context, planID, segmentID, hotspotID, expectedVersion int64) (timeline.PreviewResult, error) {
	var res timeline.PreviewResult
	err := p.repo.WithSegmentLock(ctx, planID, segmentID, func(ctx context.Context) error {
		seg, catalog, h, entries, err := p.loadForEdit(ctx, planID, segmentID, hotspotID)
		if err != nil {
			return err
		}
		if seg.Version != expectedVersion {
			return fmt.Errorf("segment %d at version %d, previewed %d: %w",
				segmentID, seg.Version, expectedVersion, timeline.ErrStaleTimeline)
		}

		res, err = p.asm.PreviewInsert(ctx, *seg, entries, h, catalog)
		if err != nil {
			return err
		}
		if res.Reason != "" {
			return fmt.Errorf("inserting hotspot %d into segment %d: %s: %w",
				hotspotID, segmentID, res.Reason, ErrInsertRejected)
		}

		next := materialize(entries, res)
		if err := p.repo.ReplaceEntries(ctx, segmentID, seg.Version, next); err != nil {
			if errors.Is(err, storage.ErrVersionMismatch) {
				return fmt.Errorf("segment %d: %w", segmentID, timeline.ErrStaleTimeline)
			}
			return err
		}

		// Companion cleanup: only the newest manual record for the pair
		// stays active.
		if n, err := p.repo.SoftDeleteDuplicateManuals(ctx, segmentID, hotspotID); err != nil {
			p.log.Warn("manual duplicate cleanup failed", "segment", segmentID, "hotspot", hotspotID, "err", err)
		} else if n > 0 {
			p.log.Info("deactivated duplicate manual visits", "segment", segmentID, "hotspot", hotspotID, "count", n)
		}
		return nil
	})
	if err != nil {
		return timeline.PreviewResult{}, err
	}
	return res, nil
}

// PreviewRemove simulates removing a visit entry from a segment.
func (p *Planner) PreviewRemove(ctx context.Context, planID, segmentID, entryID int64) (timeline.PreviewResult, error) {
	var res timeline.PreviewResult
	err := p.repo.WithSegmentLock(ctx, planID, segmentID, func(ctx context.Context) error {
		seg, err := p.segmentOf(ctx, planID, segmentID)
		if err != nil {
			return err
		}
		entries, err := p.repo.ListEntries(ctx, segmentID)
		if err != nil {
			return fmt.Errorf("listing entries for segment %d: %w", segmentID, err)
		}
		res, err = p.asm.PreviewRemove(ctx, *seg, entries, entryID)
		return err
	})
	if err != nil {
		metrics.Previews.WithLabelValues("remove", "error").Inc()
		return timeline.PreviewResult{}, err
	}
	metrics.Previews.WithLabelValues("remove", outcomeOf(res)).Inc()
	return res, nil
}

func (p *Planner) segmentOf(ctx context.Context, planID, segmentID int64) (*timeline.Segment, error) {
	seg, err := p.repo.GetSegment(ctx, segmentID)
	if err != nil {
		return nil, fmt.Errorf("loading segment %d: %w", segmentID, err)
	}
	if seg == nil || seg.PlanID != planID {
		return nil, fmt.Errorf("segment %d in plan %d: %w", segmentID, planID, ErrSegmentNotFound)
	}
	return seg, nil
}

func (p *Planner) loadForEdit(ctx context.Context, planID, segmentID, hotspotID int64) (*timeline.Segment, map[int64]hotspot.Hotspot, hotspot.Hotspot, []timeline.Entry, error) {
	seg, err := p.segmentOf(ctx, planID, segmentID)
	if err != nil {
		return nil, nil, hotspot.Hotspot{}, nil, err
	}

	all, err := p.repo.ListHotspots(ctx)
	if err != nil {
		return nil, nil, hotspot.Hotspot{}, nil, fmt.Errorf("listing hotspots: %w", err)
	}
	catalog := catalogOf(all)
	h, ok := catalog[hotspotID]
	if !ok {
		return nil, nil, hotspot.Hotspot{}, nil, fmt.Errorf("hotspot %d: %w", hotspotID, ErrHotspotNotFound)
	}

	entries, err := p.repo.ListEntries(ctx, segmentID)
	if err != nil {
		return nil, nil, hotspot.Hotspot{}, nil, fmt.Errorf("listing entries for segment %d: %w", segmentID, err)
	}
	return seg, catalog, h, entries, nil
}

// materialize folds a successful insert preview into the full entry list the
// segment should hold afterwards: untouched entries keep their times, shifted
// entries take their new times, conflicts stay at their old place flagged for
// the operator, and ordinals are renumbered contiguously by start time.
func materialize(existing []timeline.Entry, res timeline.PreviewResult) []timeline.Entry {
	shifted := make(map[int64]timeline.Entry, len(res.Shifted))
	for _, e := range res.Shifted {
		shifted[e.ID] = e
	}
	conflicted := make(map[int64]bool, len(res.Conflicts))
	for _, e := range res.Conflicts {
		conflicted[e.ID] = true
	}

	next := make([]timeline.Entry, 0, len(existing)+2)
	for _, e := range existing {
		if s, ok := shifted[e.ID]; ok {
			e = s
		} else if conflicted[e.ID] {
			e.Conflict = true
			e.ConflictReason = timeline.ReasonPastCutoff
		}
		e.ID = 0 // reinserted as new rows
		next = append(next, e)
	}
	if res.Travel != nil {
		next = append(next, *res.Travel)
	}
	if res.Entry != nil {
		next = append(next, *res.Entry)
	}

	sort.SliceStable(next, func(i, j int) bool { return next[i].Start < next[j].Start })
	for i := range next {
		next[i].Ordinal = i + 1
	}
	return next
}

func catalogOf(all []hotspot.Hotspot) map[int64]hotspot.Hotspot {
	catalog := make(map[int64]hotspot.Hotspot, len(all))
	for _, h := range all {
		catalog[h.ID] = h
	}
	return catalog
}

func isSegmentScoped(err error) bool {
	return errors.Is(err, timeline.ErrSegmentInfeasible)
}

func outcomeOf(res timeline.PreviewResult) string {
	if res.Reason != "" {
		return "rejected"
	}
	return "ok"
}
