package hotspot

// SegmentQuery describes the one travel day the filter is selecting for.
type SegmentQuery struct {
	Source      string
	Destination string
	Via         []string
	Direct      bool
	Weekday     int
}

// Sets are the per-segment candidate pools, not yet ordered. The assembler
// consumes them source, then destination, then via for non-direct segments;
// direct segments carry only the via pool.
type Sets struct {
	Source      []Hotspot
	Destination []Hotspot
	Via         []Hotspot
}

// Eligible categorizes every hotspot against the segment endpoints and keeps
// only those with a usable opening window on the segment's weekday.
//
// A hotspot matching both endpoints counts as destination only, so it is not
// scheduled twice. Hotspots matching neither endpoint join the via pool when
// they match one of the segment's via locations, or, failing that, when they
// lie within the source/destination boundary. Direct segments skip source and
// destination pools entirely: only pass-through hotspots are considered.
func Eligible(all []Hotspot, q SegmentQuery) Sets {
	var sets Sets
	var boundary []Hotspot

	for _, h := range all {
		if !h.OpenOn(q.Weekday) {
			continue
		}

		matchesSource := h.MatchesLocation(q.Source)
		matchesDest := h.MatchesLocation(q.Destination)

		switch {
		case matchesDest:
			// Destination precedence: a both-ends match is destination.
			if !q.Direct {
				sets.Destination = append(sets.Destination, h)
			}
		case matchesSource:
			if !q.Direct {
				sets.Source = append(sets.Source, h)
			}
		default:
			if matchesVia(h, q.Via) {
				sets.Via = append(sets.Via, h)
			} else if h.WithinBoundary(q.Source, q.Destination) {
				boundary = append(boundary, h)
			}
		}
	}

	// Boundary hotspots only stand in when no via location produced
	// candidates for a direct pass-through leg.
	if q.Direct && len(sets.Via) == 0 {
		sets.Via = boundary
	}

	return sets
}

func matchesVia(h Hotspot, via []string) bool {
	for _, v := range via {
		if h.MatchesLocation(v) {
			return true
		}
	}
	return false
}
