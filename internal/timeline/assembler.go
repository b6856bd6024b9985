package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/config"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/distance"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/geo"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/hotspot"
)

// LegResolver resolves a travel leg between two points. *distance.Cache
// implements it.
type LegResolver interface {
	Resolve(ctx context.Context, from, to distance.Point, class geo.TravelClass) (distance.Entry, error)
}

// Assembler is the greedy state machine that turns an ordered candidate pool
// into a segment timeline.
type Assembler struct {
	legs     LegResolver
	settings config.Settings
	log      *slog.Logger
}

// NewAssembler builds an Assembler. Settings are taken by value so a caller's
// later mutations cannot leak into a running build.
func NewAssembler(legs LegResolver, settings config.Settings, log *slog.Logger) *Assembler {
	return &Assembler{legs: legs, settings: settings, log: log}
}

// Build assembles the timeline for one segment. The candidate sets come from
// the eligibility filter; manual lists hotspots the user pinned to this
// segment, which are attempted first and surface as conflict visits instead
// of being dropped when they no longer fit.
//
// Within one segment a hotspot id is scheduled at most once; the same id may
// appear again in other segments of the trip untouched.
func (a *Assembler) Build(ctx context.Context, seg Segment, sets hotspot.Sets, manual []hotspot.Hotspot) ([]Entry, error) {
	weekday := seg.Weekday()
	clock := seg.Start
	pos := distance.Point{Coords: seg.SourceCoords}
	ordinal := 1
	var entries []Entry

	refreshEnd := clock + a.settings.RefreshDuration
	closing, err := a.legs.Resolve(ctx, pos, distance.Point{Coords: seg.DestCoords}, geo.TravelOutstation)
	closingSpan := time.Duration(0)
	if err == nil {
		closingSpan = closing.Duration + a.buffer(seg.Mode)
	} else if !errors.Is(err, geo.ErrUnresolvableDistance) {
		return nil, fmt.Errorf("resolving closing leg for segment %d: %w", seg.ID, err)
	}
	if refreshEnd+closingSpan > seg.End || refreshEnd >= hotspot.Day {
		return nil, fmt.Errorf("segment %d: %w", seg.ID, ErrSegmentInfeasible)
	}

	entries = append(entries, Entry{
		SegmentID:       seg.ID,
		Ordinal:         ordinal,
		Kind:            KindRefresh,
		Start:           clock,
		End:             refreshEnd,
		AllowBreakHours: true,
	})
	clock = refreshEnd
	ordinal++

	manualIDs := make(map[int64]bool, len(manual))
	for _, h := range manual {
		manualIDs[h.ID] = true
	}

	pending := a.queue(seg, sets, manual)
	visited := make(map[int64]bool, len(pending))

	for pass := 1; pass <= 2 && len(pending) > 0; pass++ {
		maxWait := a.settings.MaxWait
		if pass == 2 {
			// Explicit fallback: a deferred candidate waits for its
			// window however long, as long as the visit still fits.
			maxWait = hotspot.Day
		}

		var deferred []hotspot.Hotspot
		for _, cand := range pending {
			if visited[cand.ID] {
				continue
			}

			adm, err := a.admit(ctx, seg, cand, clock, pos, weekday, maxWait)
			if err != nil {
				return nil, err
			}

			if adm.reject != "" {
				if pass == 1 && adm.canDefer {
					deferred = append(deferred, cand)
					continue
				}
				if manualIDs[cand.ID] && buildableConflict(adm.reject) {
					// Pinned by the user: keep it visible as a
					// conflict instead of dropping it.
					adm.visit.Conflict = true
					adm.visit.ConflictReason = adm.reject
				} else {
					a.log.Debug("candidate rejected",
						"segment", seg.ID, "hotspot", cand.ID, "reason", adm.reject)
					continue
				}
			}

			adm.travel.Ordinal = ordinal
			entries = append(entries, adm.travel)
			ordinal++
			if adm.wait != nil {
				adm.wait.Ordinal = ordinal
				entries = append(entries, *adm.wait)
				ordinal++
			}
			adm.visit.Ordinal = ordinal
			adm.visit.ManuallyAdded = manualIDs[cand.ID]
			entries = append(entries, adm.visit)
			ordinal++

			clock = adm.visit.End
			pos = distance.Point{ID: cand.ID, Coords: cand.Coords}
			visited[cand.ID] = true

			if clock >= seg.End {
				break
			}
		}
		pending = deferred
	}

	// Direct pass-through legs travel on to the destination city before the
	// closing entry.
	if seg.Direct && !seg.Final {
		leg, err := a.closingLeg(ctx, seg, pos)
		if err != nil {
			return nil, err
		}
		if end := clock + leg.Duration + a.buffer(seg.Mode); end < hotspot.Day {
			entries = append(entries, Entry{
				SegmentID:  seg.ID,
				Ordinal:    ordinal,
				Kind:       KindTravel,
				Start:      clock,
				End:        end,
				DistanceKm: leg.DistanceKm,
				TravelTime: leg.Duration,
			})
			ordinal++
			clock = end
			pos = distance.Point{Coords: seg.DestCoords}
		}
	}

	leg, err := a.closingLeg(ctx, seg, pos)
	if err != nil {
		return nil, err
	}
	kind := KindHotelTransfer
	if seg.Final {
		kind = KindReturn
	}
	end := clock + leg.Duration + a.buffer(seg.Mode)
	if end > hotspot.Day {
		end = hotspot.Day
	}
	entries = append(entries, Entry{
		SegmentID:  seg.ID,
		Ordinal:    ordinal,
		Kind:       kind,
		Start:      clock,
		End:        end,
		DistanceKm: leg.DistanceKm,
		TravelTime: leg.Duration,
	})

	return entries, nil
}

// queue orders the candidate pools into the sequence the greedy loop tries:
// manual first, then source (capped), destination, via. Direct segments carry
// only manual and via pools. Ordering within each pool is the contractual
// priority / earliest-closing / distance / id sequence, with distance
// measured from the segment source.
func (a *Assembler) queue(seg Segment, sets hotspot.Sets, manual []hotspot.Hotspot) []hotspot.Hotspot {
	weekday := seg.Weekday()
	from := seg.SourceCoords

	var out []hotspot.Hotspot
	out = append(out, hotspot.Order(manual, weekday, from)...)

	if !seg.Direct {
		source := hotspot.Order(sets.Source, weekday, from)
		if limit := a.settings.SourceCandidateLimit; limit > 0 && len(source) > limit {
			source = source[:limit]
		}
		out = append(out, source...)
		out = append(out, hotspot.Order(sets.Destination, weekday, from)...)
	}
	out = append(out, hotspot.Order(sets.Via, weekday, from)...)
	return out
}

// admission is the outcome of one candidate evaluation.
type admission struct {
	travel Entry
	wait   *Entry
	visit  Entry

	// reject carries the reason code when the candidate cannot be
	// scheduled; canDefer marks a closed-now candidate worth a second pass.
	reject   string
	canDefer bool
}

func (a *Assembler) admit(ctx context.Context, seg Segment, cand hotspot.Hotspot, clock time.Duration, pos distance.Point, weekday int, maxWait time.Duration) (admission, error) {
	leg, err := a.legs.Resolve(ctx, pos, distance.Point{ID: cand.ID, Coords: cand.Coords}, geo.TravelLocal)
	if err != nil {
		if errors.Is(err, geo.ErrUnresolvableDistance) {
			return admission{reject: ReasonUnreachable}, nil
		}
		return admission{}, fmt.Errorf("resolving leg to hotspot %d: %w", cand.ID, err)
	}

	arrival := clock + leg.Duration + a.buffer(seg.Mode)
	if arrival >= hotspot.Day {
		return admission{reject: ReasonCrossesMidnight}, nil
	}

	visit := cand.VisitLength(a.settings.DefaultVisitDuration)

	chk := cand.CheckVisit(weekday, arrival, visit, maxWait)
	start := arrival
	if chk.OK && chk.Waited {
		start = chk.AdjustedStart
	}
	end := start + visit

	adm := admission{
		travel: Entry{
			SegmentID:  seg.ID,
			Kind:       KindTravel,
			Start:      clock,
			End:        arrival,
			HotspotID:  cand.ID,
			DistanceKm: leg.DistanceKm,
			TravelTime: leg.Duration,
		},
		visit: Entry{
			SegmentID:   seg.ID,
			Kind:        KindVisit,
			Start:       start,
			End:         end,
			HotspotID:   cand.ID,
			HotspotName: cand.Name,
		},
	}
	if chk.OK && chk.Waited {
		adm.wait = &Entry{
			SegmentID:       seg.ID,
			Kind:            KindRefresh,
			Start:           arrival,
			End:             start,
			HotspotID:       cand.ID,
			AllowBreakHours: true,
		}
	}

	if !chk.OK {
		adm.reject = ReasonWindowMiss
		adm.canDefer = chk.HasNextOpen && chk.NextOpen+visit <= seg.End
		return adm, nil
	}
	if end >= hotspot.Day {
		adm.reject = ReasonCrossesMidnight
		return adm, nil
	}
	if end > seg.End {
		adm.reject = ReasonPastCutoff
		return adm, nil
	}
	return adm, nil
}

// closingLeg resolves the leg from the current position to the segment's
// declared destination. An unreachable destination degrades to a zero leg so
// the closing entry is still emitted.
func (a *Assembler) closingLeg(ctx context.Context, seg Segment, pos distance.Point) (distance.Entry, error) {
	leg, err := a.legs.Resolve(ctx, pos, distance.Point{Coords: seg.DestCoords}, geo.TravelOutstation)
	if err != nil {
		if errors.Is(err, geo.ErrUnresolvableDistance) {
			return distance.Entry{}, nil
		}
		return distance.Entry{}, fmt.Errorf("resolving closing leg for segment %d: %w", seg.ID, err)
	}
	return leg, nil
}

func (a *Assembler) buffer(mode geo.TravelMode) time.Duration {
	return a.settings.Buffers[string(mode)]
}

// buildableConflict reports whether a rejected manual candidate still has
// sane times to show as a conflict row. Midnight wraps and unreachable pairs
// cannot produce a coherent row.
func buildableConflict(reason string) bool {
	return reason == ReasonWindowMiss || reason == ReasonPastCutoff
}
