package geo

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TravelClass selects the speed assumption for a leg.
type TravelClass string

const (
	TravelLocal      TravelClass = "local"
	TravelOutstation TravelClass = "outstation"
	TravelWalking    TravelClass = "walking"
)

// ParseTravelClass validates a wire-level travel class string.
func ParseTravelClass(s string) (TravelClass, error) {
	switch TravelClass(s) {
	case TravelLocal, TravelOutstation, TravelWalking:
		return TravelClass(s), nil
	}
	return "", fmt.Errorf("unknown travel class %q", s)
}

// TravelMode selects the buffer assumption for a segment.
type TravelMode string

const (
	ModeRoad   TravelMode = "road"
	ModeRail   TravelMode = "rail"
	ModeFlight TravelMode = "flight"
)

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinates are usable for distance computation.
// The legacy data stores missing coordinates as (0, 0), which is open ocean
// for every serviced region, so the origin is treated as unset.
func (c Coordinates) Valid() bool {
	if c.Lat == 0 && c.Lon == 0 {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// ErrUnresolvableDistance is returned when either endpoint has no usable
// coordinates. Callers treat the pair as unreachable, not as fatal.
var ErrUnresolvableDistance = errors.New("unresolvable distance: missing or invalid coordinates")

const (
	earthRadiusKm = 6371

	// CorrectionFactor approximates road distance over great-circle
	// distance. The 1.5 value is a compatibility contract with the stored
	// cache rows; changing it is a product decision.
	CorrectionFactor = 1.5

	// Local legs longer than this never use a sub-40 km/h speed, matching
	// the legacy handling of same-city hotspots that are far apart.
	localSpeedFloorKm   = 10
	localSpeedFloorKmph = 40
)

// Leg is the resolved distance and duration between two points.
type Leg struct {
	HaversineKm float64       `json:"haversine_km"`
	DistanceKm  float64       `json:"distance_km"`
	SpeedKmph   float64       `json:"speed_kmph"`
	Duration    time.Duration `json:"duration"`
}

// Resolver computes road distance and travel duration from coordinates.
// It is pure: no I/O, no ambient state.
type Resolver struct {
	speeds map[TravelClass]float64
}

// NewResolver builds a Resolver from a speed table keyed by travel class
// name. Unknown keys are ignored; missing classes fall back to legacy
// defaults at resolve time.
func NewResolver(speedsKmph map[string]float64) *Resolver {
	speeds := make(map[TravelClass]float64, len(speedsKmph))
	for name, speed := range speedsKmph {
		if class, err := ParseTravelClass(name); err == nil {
			speeds[class] = speed
		}
	}
	return &Resolver{speeds: speeds}
}

// Resolve returns the corrected distance and duration between two points for
// the given travel class. Distance is rounded to two decimals and duration to
// whole seconds.
func (r *Resolver) Resolve(from, to Coordinates, class TravelClass) (Leg, error) {
	if !from.Valid() || !to.Valid() {
		return Leg{}, ErrUnresolvableDistance
	}

	haversine := Haversine(from, to)
	corrected := haversine * CorrectionFactor

	speed := r.speed(class)
	if class == TravelLocal && corrected > localSpeedFloorKm && speed < localSpeedFloorKmph {
		speed = localSpeedFloorKmph
	}

	duration := time.Duration(corrected / speed * float64(time.Hour)).Round(time.Second)

	return Leg{
		HaversineKm: round2(haversine),
		DistanceKm:  round2(corrected),
		SpeedKmph:   speed,
		Duration:    duration,
	}, nil
}

func (r *Resolver) speed(class TravelClass) float64 {
	if speed, ok := r.speeds[class]; ok && speed > 0 {
		return speed
	}
	switch class {
	case TravelWalking:
		return 5
	case TravelOutstation:
		return 60
	default:
		return 40
	}
}

// Haversine returns the great-circle distance between two points in km.
func Haversine(from, to Coordinates) float64 {
	lat1 := from.Lat * math.Pi / 180
	lon1 := from.Lon * math.Pi / 180
	lat2 := to.Lat * math.Pi / 180
	lon2 := to.Lon * math.Pi / 180

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
