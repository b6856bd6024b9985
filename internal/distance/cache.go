// Package distance memoizes hotspot-to-hotspot travel legs. Values are pure
// functions of immutable coordinates, so entries never expire; both directions
// of a pair are written at creation time and must stay identical.
package distance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/geo"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/metrics"
)

// Key identifies one cached leg.
type Key struct {
	FromID int64
	ToID   int64
	Class  geo.TravelClass
}

// Entry is the stored resolution for a key, including the inputs that
// produced it so a reference-data change is detectable.
type Entry struct {
	FromID           int64           `json:"from_id"`
	ToID             int64           `json:"to_id"`
	Class            geo.TravelClass `json:"travel_class"`
	HaversineKm      float64         `json:"haversine_km"`
	CorrectionFactor float64         `json:"correction_factor"`
	SpeedKmph        float64         `json:"speed_kmph"`
	DistanceKm       float64         `json:"distance_km"`
	Duration         time.Duration   `json:"duration"`
}

// Key returns the cache key of the entry.
func (e Entry) Key() Key {
	return Key{FromID: e.FromID, ToID: e.ToID, Class: e.Class}
}

// reversed swaps the endpoints; distance and duration are symmetric.
func (e Entry) reversed() Entry {
	e.FromID, e.ToID = e.ToID, e.FromID
	return e
}

// sameValues compares the resolved figures, ignoring direction.
func (e Entry) sameValues(o Entry) bool {
	return e.DistanceKm == o.DistanceKm && e.Duration == o.Duration
}

// Store is the persistent layer under the hot cache.
type Store interface {
	// GetEntry returns nil, nil on a miss.
	GetEntry(ctx context.Context, k Key) (*Entry, error)
	// PutPair inserts forward and reverse entries, ignoring rows that
	// already exist so a concurrent fill stays idempotent.
	PutPair(ctx context.Context, forward, reverse Entry) error
}

// HotCache is the fast lookaside in front of Store. *RedisCache implements it.
type HotCache interface {
	Get(ctx context.Context, k Key) (*Entry, error)
	Set(ctx context.Context, e Entry) error
}

// Point pairs a hotspot id with its coordinates for resolution.
type Point struct {
	ID     int64
	Coords geo.Coordinates
}

// Cache resolves legs through redis, then postgres, then the pure resolver,
// writing both directions back on a miss. Concurrent fills of the same pair
// are collapsed with singleflight; the resolver is pure, so a lost race can
// only waste one computation, never diverge.
type Cache struct {
	hot      HotCache
	store    Store
	resolver *geo.Resolver
	log      *slog.Logger
	group    singleflight.Group
}

// NewCache wires the cache. hot may be nil (store-only operation, used in
// tests and degraded mode).
func NewCache(hot HotCache, store Store, resolver *geo.Resolver, log *slog.Logger) *Cache {
	return &Cache{hot: hot, store: store, resolver: resolver, log: log}
}

// Resolve returns the leg between two hotspots. After any successful call
// both directions are cached, so a reversed call never recomputes.
func (c *Cache) Resolve(ctx context.Context, from, to Point, class geo.TravelClass) (Entry, error) {
	// City endpoints carry no hotspot id; their legs are resolved directly
	// and never memoized, since only hotspot pairs recur.
	if from.ID == 0 || to.ID == 0 {
		leg, err := c.resolver.Resolve(from.Coords, to.Coords, class)
		if err != nil {
			return Entry{}, err
		}
		return Entry{
			FromID:           from.ID,
			ToID:             to.ID,
			Class:            class,
			HaversineKm:      leg.HaversineKm,
			CorrectionFactor: geo.CorrectionFactor,
			SpeedKmph:        leg.SpeedKmph,
			DistanceKm:       leg.DistanceKm,
			Duration:         leg.Duration,
		}, nil
	}

	k := Key{FromID: from.ID, ToID: to.ID, Class: class}

	if c.hot != nil {
		if e, err := c.hot.Get(ctx, k); err != nil {
			c.log.Warn("distance hot cache read failed", "from", from.ID, "to", to.ID, "err", err)
		} else if e != nil {
			metrics.DistanceLookups.WithLabelValues("hot").Inc()
			return *e, nil
		}
	}

	// Collapse A->B and B->A onto one flight; the values are symmetric.
	flightKey := canonicalKey(k)
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		return c.fill(ctx, from, to, class)
	})
	if err != nil {
		return Entry{}, err
	}

	e := v.(Entry)
	if e.FromID != from.ID {
		e = e.reversed()
	}
	return e, nil
}

func (c *Cache) fill(ctx context.Context, from, to Point, class geo.TravelClass) (Entry, error) {
	k := Key{FromID: from.ID, ToID: to.ID, Class: class}

	stored, err := c.store.GetEntry(ctx, k)
	if err != nil {
		return Entry{}, fmt.Errorf("reading distance store for pair %d->%d: %w", from.ID, to.ID, err)
	}
	if stored != nil {
		metrics.DistanceLookups.WithLabelValues("store").Inc()
		c.populateHot(ctx, *stored)
		return *stored, nil
	}
	metrics.DistanceLookups.WithLabelValues("computed").Inc()

	leg, err := c.resolver.Resolve(from.Coords, to.Coords, class)
	if err != nil {
		return Entry{}, fmt.Errorf("resolving pair %d->%d: %w", from.ID, to.ID, err)
	}

	e := Entry{
		FromID:           from.ID,
		ToID:             to.ID,
		Class:            class,
		HaversineKm:      leg.HaversineKm,
		CorrectionFactor: geo.CorrectionFactor,
		SpeedKmph:        leg.SpeedKmph,
		DistanceKm:       leg.DistanceKm,
		Duration:         leg.Duration,
	}

	if err := c.store.PutPair(ctx, e, e.reversed()); err != nil {
		return Entry{}, fmt.Errorf("persisting pair %d->%d: %w", from.ID, to.ID, err)
	}

	// Re-read: a concurrent writer may have won the insert. The resolver is
	// pure, so a value mismatch means the reference data changed under us.
	winner, err := c.store.GetEntry(ctx, k)
	if err != nil {
		return Entry{}, fmt.Errorf("re-reading distance store for pair %d->%d: %w", from.ID, to.ID, err)
	}
	if winner != nil {
		if !winner.sameValues(e) {
			c.log.Warn("distance cache integrity: stored value differs from recomputation",
				"from", from.ID, "to", to.ID, "class", class,
				"stored_km", winner.DistanceKm, "computed_km", e.DistanceKm)
		}
		e = *winner
	}

	c.populateHot(ctx, e)
	return e, nil
}

func (c *Cache) populateHot(ctx context.Context, e Entry) {
	if c.hot == nil {
		return
	}
	for _, entry := range []Entry{e, e.reversed()} {
		if err := c.hot.Set(ctx, entry); err != nil {
			c.log.Warn("distance hot cache write failed", "from", entry.FromID, "to", entry.ToID, "err", err)
		}
	}
}

func canonicalKey(k Key) string {
	lo, hi := k.FromID, k.ToID
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%d:%d:%s", lo, hi, k.Class)
}
