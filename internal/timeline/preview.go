package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/distance"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/hotspot"
)

// PreviewResult reports the effect a single manual change would have on a
// segment's timeline. Nothing is persisted; calling the same preview twice
// with no intervening commit yields identical results.
type PreviewResult struct {
	// PreviewID is deterministic over (plan, segment, hotspot/entry,
	// segment version) so repeated previews are byte-identical.
	PreviewID string `json:"preview_id"`

	// SegmentVersion pins the timeline state the preview ran against;
	// commit revalidates it.
	SegmentVersion int64 `json:"segment_version"`

	// Entry is the visit that would be created or removed; nil when the
	// change is rejected, with Reason set.
	Entry  *Entry `json:"entry,omitempty"`
	Travel *Entry `json:"travel,omitempty"`
	Reason string `json:"reason,omitempty"`

	// Conflicts are existing entries that can no longer fit the segment
	// window after the change; they are reported, never auto-resolved.
	Conflicts []Entry `json:"conflicts,omitempty"`

	// Shifted are existing entries that would move to accommodate the
	// change.
	Shifted []Entry `json:"shifted,omitempty"`
}

// PreviewInsert simulates appending a manual visit of h to the segment's
// current schedule. existing must be the active (non-deleted) entries in
// ordinal order; catalog maps hotspot ids to their master records for
// position lookup. The input slices are never mutated.
func (a *Assembler) PreviewInsert(ctx context.Context, seg Segment, existing []Entry, h hotspot.Hotspot, catalog map[int64]hotspot.Hotspot) (PreviewResult, error) {
	res := PreviewResult{
		PreviewID:      previewID(seg, fmt.Sprintf("insert:%d", h.ID)),
		SegmentVersion: seg.Version,
	}

	if !a.matchesSegment(seg, h) {
		res.Reason = ReasonLocationMismatch
		return res, nil
	}

	for _, e := range existing {
		if e.Kind == KindVisit && e.HotspotID == h.ID {
			res.Reason = ReasonDuplicate
			return res, nil
		}
	}

	clock, pos := insertionPoint(seg, existing, catalog, a.settings.RefreshDuration)

	adm, err := a.admit(ctx, seg, h, clock, pos, seg.Weekday(), hotspot.Day)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("previewing insert of hotspot %d into segment %d: %w", h.ID, seg.ID, err)
	}
	if adm.reject != "" {
		res.Reason = adm.reject
		return res, nil
	}

	adm.visit.ManuallyAdded = true
	res.Entry = &adm.visit
	res.Travel = &adm.travel

	// Everything at or after the insertion point moves later by the
	// inserted span; whatever no longer fits the segment window is a
	// conflict the caller must resolve.
	delta := adm.visit.End - clock
	for _, e := range existing {
		if e.Start < clock {
			continue
		}
		shifted := e
		shifted.Start += delta
		shifted.End += delta
		if shifted.End > seg.End || shifted.End > hotspot.Day {
			res.Conflicts = append(res.Conflicts, e)
		} else {
			res.Shifted = append(res.Shifted, shifted)
		}
	}
	return res, nil
}

// PreviewRemove simulates removing the visit entry with the given id. The
// visit's travel (and wait) companions are treated as part of the removal;
// later entries would move earlier by the freed span.
func (a *Assembler) PreviewRemove(ctx context.Context, seg Segment, existing []Entry, entryID int64) (PreviewResult, error) {
	res := PreviewResult{
		PreviewID:      previewID(seg, fmt.Sprintf("remove:%d", entryID)),
		SegmentVersion: seg.Version,
	}

	idx := -1
	for i, e := range existing {
		if e.ID == entryID && e.Kind == KindVisit {
			idx = i
			break
		}
	}
	if idx < 0 {
		res.Reason = "entry not found"
		return res, nil
	}

	visit := existing[idx]
	res.Entry = &visit

	// Walk back over the visit's travel and wait rows for the freed span.
	removedStart := visit.Start
	for i := idx - 1; i >= 0; i-- {
		e := existing[i]
		if e.HotspotID == visit.HotspotID && (e.Kind == KindTravel || (e.Kind == KindRefresh && e.AllowBreakHours)) {
			removedStart = e.Start
			if e.Kind == KindTravel {
				res.Travel = &existing[i]
			}
			continue
		}
		break
	}

	delta := visit.End - removedStart
	for _, e := range existing[idx+1:] {
		shifted := e
		shifted.Start -= delta
		shifted.End -= delta
		res.Shifted = append(res.Shifted, shifted)
	}
	return res, nil
}

// matchesSegment reports whether the hotspot is reachable from this segment:
// one of its aliases matches an endpoint or via location, or it sits on the
// segment boundary.
func (a *Assembler) matchesSegment(seg Segment, h hotspot.Hotspot) bool {
	if h.MatchesLocation(seg.Source) || h.MatchesLocation(seg.Destination) {
		return true
	}
	for _, v := range seg.Via {
		if h.MatchesLocation(v) {
			return true
		}
	}
	return h.WithinBoundary(seg.Source, seg.Destination)
}

// insertionPoint finds where a manual visit slots in: after the last entry
// that is not a closing transfer, at the position of the last visited
// hotspot.
func insertionPoint(seg Segment, existing []Entry, catalog map[int64]hotspot.Hotspot, refresh time.Duration) (time.Duration, distance.Point) {
	clock := seg.Start + refresh
	pos := distance.Point{Coords: seg.SourceCoords}

	for _, e := range existing {
		if e.Kind == KindReturn || e.Kind == KindHotelTransfer {
			continue
		}
		if e.End > clock {
			clock = e.End
		}
		if e.Kind == KindVisit {
			if h, ok := catalog[e.HotspotID]; ok {
				pos = distance.Point{ID: h.ID, Coords: h.Coords}
			}
		}
	}
	return clock, pos
}

// previewID derives a stable token for one (segment state, operation) pair.
func previewID(seg Segment, op string) string {
	name := fmt.Sprintf("plan:%d:segment:%d:version:%d:%s", seg.PlanID, seg.ID, seg.Version, op)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
