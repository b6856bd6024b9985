package hotspot_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/geo"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/hotspot"
)

func TestEffectivePriority(t *testing.T) {
	assert.Equal(t, 1, hotspot.EffectivePriority(1))
	assert.Equal(t, 5, hotspot.EffectivePriority(5))
	// Zero means unprioritized and ranks below any explicit value.
	assert.Greater(t, hotspot.EffectivePriority(0), hotspot.EffectivePriority(9999))
}

func TestOrder_PriorityFirst(t *testing.T) {
	pool := []hotspot.Hotspot{
		{ID: 1, Priority: 0, OpenAllDay: true},
		{ID: 2, Priority: 3, OpenAllDay: true},
		{ID: 3, Priority: 1, OpenAllDay: true},
	}

	got := hotspot.Order(pool, 1, geo.Coordinates{})
	assert.Equal(t, []int64{3, 2, 1}, ids(got))
}

func TestOrder_EarliestClosingBreaksTies(t *testing.T) {
	window := func(end time.Duration) []hotspot.Window {
		return []hotspot.Window{{Weekday: 1, Start: 9 * time.Hour, End: end}}
	}
	pool := []hotspot.Hotspot{
		{ID: 1, Priority: 1, Windows: window(18 * time.Hour)},
		{ID: 2, Priority: 1, Windows: window(12 * time.Hour)},
		{ID: 3, Priority: 1, OpenAllDay: true},
	}

	got := hotspot.Order(pool, 1, geo.Coordinates{})
	assert.Equal(t, []int64{2, 1, 3}, ids(got))
}

func TestOrder_DistanceBreaksTies(t *testing.T) {
	from := geo.Coordinates{Lat: 13.0827, Lon: 80.2707}
	near := geo.Coordinates{Lat: 13.05, Lon: 80.25}
	far := geo.Coordinates{Lat: 11.94, Lon: 79.81}

	pool := []hotspot.Hotspot{
		{ID: 1, Priority: 1, OpenAllDay: true, Coords: far},
		{ID: 2, Priority: 1, OpenAllDay: true, Coords: near},
	}

	got := hotspot.Order(pool, 1, from)
	assert.Equal(t, []int64{2, 1}, ids(got))
}

func TestOrder_IDBreaksFinalTies(t *testing.T) {
	pool := []hotspot.Hotspot{
		{ID: 30, Priority: 1, OpenAllDay: true},
		{ID: 10, Priority: 1, OpenAllDay: true},
		{ID: 20, Priority: 1, OpenAllDay: true},
	}

	got := hotspot.Order(pool, 1, geo.Coordinates{})
	assert.Equal(t, []int64{10, 20, 30}, ids(got))
}

func TestOrder_DeterministicForAnyInputOrder(t *testing.T) {
	base := []hotspot.Hotspot{
		{ID: 1, Priority: 2, OpenAllDay: true},
		{ID: 2, Priority: 0, OpenAllDay: true},
		{ID: 3, Priority: 2, Windows: []hotspot.Window{{Weekday: 1, Start: 9 * time.Hour, End: 13 * time.Hour}}},
		{ID: 4, Priority: 1, OpenAllDay: true},
		{ID: 5, Priority: 0, OpenAllDay: true},
	}
	want := ids(hotspot.Order(base, 1, geo.Coordinates{}))

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]hotspot.Hotspot, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, want, ids(hotspot.Order(shuffled, 1, geo.Coordinates{})))
	}
}

func TestOrder_DoesNotMutateInput(t *testing.T) {
	pool := []hotspot.Hotspot{
		{ID: 2, Priority: 2, OpenAllDay: true},
		{ID: 1, Priority: 1, OpenAllDay: true},
	}

	_ = hotspot.Order(pool, 1, geo.Coordinates{})
	assert.Equal(t, []int64{2, 1}, ids(pool))
}
