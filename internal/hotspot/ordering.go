package hotspot

import (
	"math"
	"sort"
	"time"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/geo"
)

// noPriority is the effective rank of priority 0; legacy parity puts
// unprioritized hotspots last regardless of numeric value.
const noPriority = math.MaxInt

// EffectivePriority maps priority 0 to the bottom of the order.
func EffectivePriority(p int) int {
	if p == 0 {
		return noPriority
	}
	return p
}

// Order sorts a candidate pool into visiting order: priority ascending with 0
// last, then earliest closing time on the weekday (a hotspot closing sooner is
// attempted first), then distance from the current position, then id. The
// result is deterministic for any input order.
func Order(pool []Hotspot, weekday int, from geo.Coordinates) []Hotspot {
	out := make([]Hotspot, len(pool))
	copy(out, pool)

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]

		ap, bp := EffectivePriority(a.Priority), EffectivePriority(b.Priority)
		if ap != bp {
			return ap < bp
		}

		ac, bc := closingRank(a, weekday), closingRank(b, weekday)
		if ac != bc {
			return ac < bc
		}

		ad, bd := distanceFrom(from, a), distanceFrom(from, b)
		if ad != bd {
			return ad < bd
		}

		return a.ID < b.ID
	})
	return out
}

func closingRank(h Hotspot, weekday int) time.Duration {
	if end, ok := h.EarliestClosing(weekday); ok {
		return end
	}
	// No usable window: already excluded by the filter, but rank it last so
	// ordering alone never promotes it.
	return Day + 1
}

// distanceFrom falls back to zero when either side has no coordinates,
// matching the legacy scorer.
func distanceFrom(from geo.Coordinates, h Hotspot) float64 {
	if !from.Valid() || !h.Coords.Valid() {
		return 0
	}
	return geo.Haversine(from, h.Coords)
}
