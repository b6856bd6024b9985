// Package hotspot holds the sightseeing reference data model and the
// eligibility and ordering rules the timeline assembler consumes.
package hotspot

import (
	"fmt"
	"time"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/geo"
)

// Day is the full scheduling day; no entry may start or end past it.
const Day = 24 * time.Hour

// Hotspot is a point of interest. Read-only reference data to the engine.
type Hotspot struct {
	ID            int64
	Name          string
	Coords        geo.Coordinates
	VisitDuration time.Duration

	// Priority orders candidates ascending; 0 means "no explicit priority"
	// and sorts last regardless of numeric value.
	Priority int

	// Aliases are the normalized place names this hotspot is reachable
	// from. A hotspot may be associated with several named places.
	Aliases []string

	// Boundaries lists the city pairs this hotspot lies between; a direct
	// segment whose endpoints both appear here may visit it in passing.
	Boundaries []string

	// OpenAllDay marks a hotspot with no window rows as always admissible.
	// Without it, a weekday with zero windows is closed.
	OpenAllDay bool

	Windows []Window
}

// Window is one weekday-scoped opening range. Start and End are offsets from
// midnight.
type Window struct {
	Weekday    int // 0 = Monday .. 6 = Sunday
	Start      time.Duration
	End        time.Duration
	Closed     bool
	OpenAllDay bool
}

// usable filters out closed markers and broken rows (end before start, which
// the legacy data contains).
func (w Window) usable() bool {
	if w.Closed {
		return false
	}
	if w.OpenAllDay {
		return true
	}
	return w.End > w.Start
}

// WeekdayIndex maps a date to the Monday-based weekday the reference data
// uses.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// ParseClock parses "HH:MM:SS" or "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("parsing clock value %q: %w", s, err)
		}
		sec = 0
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// FormatClock renders an offset from midnight as "HH:MM:SS".
func FormatClock(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// VisitLength returns the hotspot visit duration, falling back to the given
// default when the record has none.
func (h Hotspot) VisitLength(fallback time.Duration) time.Duration {
	if h.VisitDuration > 0 {
		return h.VisitDuration
	}
	return fallback
}

// windowsOn returns the usable windows for a weekday, including hotspot-level
// open-all-day as a synthetic full-day window.
func (h Hotspot) windowsOn(weekday int) []Window {
	var out []Window
	if h.OpenAllDay {
		out = append(out, Window{Weekday: weekday, OpenAllDay: true})
	}
	for _, w := range h.Windows {
		if w.Weekday == weekday && w.usable() {
			out = append(out, w)
		}
	}
	return out
}

// OpenOn reports whether the hotspot has any usable window on the weekday.
// Zero rows means closed unless the open-all-day marker is set.
func (h Hotspot) OpenOn(weekday int) bool {
	return len(h.windowsOn(weekday)) > 0
}

// Admit reports whether a visit starting at the given offset falls inside
// some usable window for the weekday.
func (h Hotspot) Admit(weekday int, start time.Duration) bool {
	for _, w := range h.windowsOn(weekday) {
		if w.OpenAllDay {
			return true
		}
		if start >= w.Start && start < w.End {
			return true
		}
	}
	return false
}

// EarliestClosing returns the earliest window end for the weekday. Open-all-day
// counts as closing at end of day so explicitly windowed hotspots sort first.
// The second return is false when the hotspot has no usable window that day.
func (h Hotspot) EarliestClosing(weekday int) (time.Duration, bool) {
	best := time.Duration(-1)
	for _, w := range h.windowsOn(weekday) {
		end := w.End
		if w.OpenAllDay {
			end = Day
		}
		if best < 0 || end < best {
			best = end
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// VisitCheck is the admission outcome for one candidate at one arrival time.
type VisitCheck struct {
	// OK means the visit fits a window as-is or after waiting AdjustedStart.
	OK bool

	// AdjustedStart is set when the visit must wait for a window to open;
	// it is the window's opening offset. Zero value means no wait.
	AdjustedStart time.Duration
	Waited        bool

	// NextOpen is the earliest later opening the candidate could be retried
	// at, when the visit cannot happen now.
	NextOpen    time.Duration
	HasNextOpen bool
}

// CheckVisit evaluates a visit of the given duration arriving at start.
// A wait of at most maxWait is absorbed by shifting the visit start to the
// window opening; longer gaps are reported via NextOpen for a later retry.
func (h Hotspot) CheckVisit(weekday int, start, visit, maxWait time.Duration) VisitCheck {
	windows := h.windowsOn(weekday)

	var res VisitCheck
	for _, w := range windows {
		if w.OpenAllDay {
			return VisitCheck{OK: true}
		}

		if start < w.Start {
			wait := w.Start - start
			if wait <= maxWait && w.Start+visit <= w.End {
				return VisitCheck{OK: true, AdjustedStart: w.Start, Waited: true}
			}
			if !res.HasNextOpen || w.Start < res.NextOpen {
				res.NextOpen = w.Start
				res.HasNextOpen = true
			}
			continue
		}

		if start < w.End && start+visit <= w.End {
			return VisitCheck{OK: true}
		}
	}
	return res
}
