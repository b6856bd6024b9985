// Package timeline builds the per-day schedule of breaks, travel legs,
// visits, and returns for a route segment, and simulates manual edits against
// an existing schedule without committing them.
package timeline

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/geo"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/hotspot"
)

// Kind is the timeline entry type.
type Kind string

const (
	KindRefresh       Kind = "refresh"
	KindTravel        Kind = "travel"
	KindVisit         Kind = "visit"
	KindHotelTransfer Kind = "hotel_transfer"
	KindReturn        Kind = "return"
)

// Rejection and conflict reason codes.
const (
	ReasonWindowMiss       = "window miss"
	ReasonPastCutoff       = "past cutoff"
	ReasonCrossesMidnight  = "crosses midnight"
	ReasonLocationMismatch = "location mismatch"
	ReasonUnreachable      = "unreachable"
	ReasonDuplicate        = "already scheduled"
)

// ErrSegmentInfeasible reports that not even the mandatory refresh and return
// fit inside the segment window. It is scoped to one segment and never aborts
// siblings.
var ErrSegmentInfeasible = errors.New("segment infeasible: refresh and return do not fit the segment window")

// ErrStaleTimeline reports that a segment was mutated between preview and
// commit; the caller must re-preview.
var ErrStaleTimeline = errors.New("stale timeline: segment changed since preview")

// Segment is one travel day's leg between two named locations. Immutable once
// the trip is confirmed.
type Segment struct {
	ID     int64     `json:"id"`
	PlanID int64     `json:"plan_id"`
	Index  int       `json:"index"`
	Date   time.Time `json:"date"`

	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	Via         []string `json:"via,omitempty"`

	SourceCoords geo.Coordinates `json:"source_coords"`
	DestCoords   geo.Coordinates `json:"dest_coords"`

	// Start and End are offsets from midnight on Date.
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`

	// Direct marks a pass-through leg with no intermediate sightseeing
	// beyond via hotspots.
	Direct bool `json:"direct"`

	// Final marks the trip's last segment, which returns to the declared
	// destination instead of transferring to a hotel.
	Final bool `json:"final"`

	// Mode selects the buffer applied on top of travel time.
	Mode geo.TravelMode `json:"mode"`

	// Version increments on every committed change to the segment's
	// timeline; previews pin it to detect staleness at commit.
	Version int64 `json:"version"`
}

// Weekday is the Monday-based weekday of the segment date.
func (s Segment) Weekday() int {
	return hotspot.WeekdayIndex(s.Date)
}

// Entry is one scheduled item within a segment. Entries are created and
// reordered only by the assembler or the preview simulator, and soft-deleted
// when superseded.
type Entry struct {
	ID        int64 `json:"id,omitempty"`
	SegmentID int64 `json:"segment_id"`
	Ordinal   int   `json:"ordinal"`
	Kind      Kind  `json:"kind"`

	Start time.Duration `json:"-"`
	End   time.Duration `json:"-"`

	HotspotID   int64  `json:"hotspot_id,omitempty"`
	HotspotName string `json:"hotspot_name,omitempty"`

	DistanceKm float64       `json:"distance_km,omitempty"`
	TravelTime time.Duration `json:"travel_time,omitempty"`

	ManuallyAdded   bool   `json:"manually_added,omitempty"`
	Conflict        bool   `json:"conflict,omitempty"`
	ConflictReason  string `json:"conflict_reason,omitempty"`
	AllowBreakHours bool   `json:"allow_break_hours,omitempty"`
}

// MarshalJSON renders start and end as wall-clock strings alongside the
// regular fields.
func (e Entry) MarshalJSON() ([]byte, error) {
	type alias Entry
	return json.Marshal(struct {
		alias
		Start string `json:"start"`
		End   string `json:"end"`
	}{
		alias: alias(e),
		Start: hotspot.FormatClock(e.Start),
		End:   hotspot.FormatClock(e.End),
	})
}

// Overlaps reports whether two entries' time windows intersect.
func (e Entry) Overlaps(o Entry) bool {
	return e.Start < o.End && o.Start < e.End
}
