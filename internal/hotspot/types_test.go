package hotspot_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/hotspot"
)

func clock(t *testing.T, s string) time.Duration {
	t.Helper()
	d, err := hotspot.ParseClock(s)
	require.NoError(t, err)
	return d
}

func TestParseClock(t *testing.T) {
	assert.Equal(t, 9*time.Hour, clock(t, "09:00:00"))
	assert.Equal(t, 17*time.Hour+30*time.Minute, clock(t, "17:30"))
	assert.Equal(t, 23*time.Hour+59*time.Minute+59*time.Second, clock(t, "23:59:59"))

	for _, bad := range []string{"", "morning", "25:00:00", "10:61:00"} {
		_, err := hotspot.ParseClock(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "09:00:00", hotspot.FormatClock(9*time.Hour))
	assert.Equal(t, "17:30:45", hotspot.FormatClock(17*time.Hour+30*time.Minute+45*time.Second))
	assert.Equal(t, "00:00:00", hotspot.FormatClock(0))
}

func TestWeekdayIndex(t *testing.T) {
	// Monday 2026-08-31 maps to 0, Sunday 2026-09-06 to 6.
	monday := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, hotspot.WeekdayIndex(monday))
	assert.Equal(t, 1, hotspot.WeekdayIndex(monday.AddDate(0, 0, 1)))
	assert.Equal(t, 6, hotspot.WeekdayIndex(monday.AddDate(0, 0, 6)))
}

func TestOpenOn(t *testing.T) {
	windowed := hotspot.Hotspot{Windows: []hotspot.Window{
		{Weekday: 1, Start: 9 * time.Hour, End: 17 * time.Hour},
	}}
	assert.True(t, windowed.OpenOn(1))
	// Zero rows for a weekday means closed.
	assert.False(t, windowed.OpenOn(2))

	allDay := hotspot.Hotspot{OpenAllDay: true}
	for wd := 0; wd <= 6; wd++ {
		assert.True(t, allDay.OpenOn(wd))
	}

	closedRow := hotspot.Hotspot{Windows: []hotspot.Window{
		{Weekday: 3, Start: 9 * time.Hour, End: 17 * time.Hour, Closed: true},
	}}
	assert.False(t, closedRow.OpenOn(3))

	// End before start is broken reference data, not an open window.
	broken := hotspot.Hotspot{Windows: []hotspot.Window{
		{Weekday: 4, Start: 17 * time.Hour, End: 9 * time.Hour},
	}}
	assert.False(t, broken.OpenOn(4))
}

func TestAdmit(t *testing.T) {
	h := hotspot.Hotspot{Windows: []hotspot.Window{
		{Weekday: 1, Start: 9 * time.Hour, End: 17 * time.Hour},
	}}

	assert.True(t, h.Admit(1, 9*time.Hour))
	assert.True(t, h.Admit(1, 16*time.Hour))
	assert.False(t, h.Admit(1, 17*time.Hour)) // window end is exclusive
	assert.False(t, h.Admit(1, 8*time.Hour))
	assert.False(t, h.Admit(2, 10*time.Hour))
}

func TestEarliestClosing(t *testing.T) {
	h := hotspot.Hotspot{Windows: []hotspot.Window{
		{Weekday: 1, Start: 9 * time.Hour, End: 12 * time.Hour},
		{Weekday: 1, Start: 14 * time.Hour, End: 18 * time.Hour},
	}}

	end, ok := h.EarliestClosing(1)
	require.True(t, ok)
	assert.Equal(t, 12*time.Hour, end)

	_, ok = h.EarliestClosing(2)
	assert.False(t, ok)

	allDay := hotspot.Hotspot{OpenAllDay: true}
	end, ok = allDay.EarliestClosing(5)
	require.True(t, ok)
	assert.Equal(t, hotspot.Day, end)
}

func TestCheckVisit(t *testing.T) {
	h := hotspot.Hotspot{Windows: []hotspot.Window{
		{Weekday: 1, Start: 10 * time.Hour, End: 17 * time.Hour},
	}}
	visit := time.Hour
	maxWait := 30 * time.Minute

	t.Run("fits as-is", func(t *testing.T) {
		chk := h.CheckVisit(1, 11*time.Hour, visit, maxWait)
		assert.True(t, chk.OK)
		assert.False(t, chk.Waited)
	})

	t.Run("short wait absorbed", func(t *testing.T) {
		chk := h.CheckVisit(1, 9*time.Hour+45*time.Minute, visit, maxWait)
		require.True(t, chk.OK)
		assert.True(t, chk.Waited)
		assert.Equal(t, 10*time.Hour, chk.AdjustedStart)
	})

	t.Run("long wait reports next opening", func(t *testing.T) {
		chk := h.CheckVisit(1, 8*time.Hour, visit, maxWait)
		assert.False(t, chk.OK)
		require.True(t, chk.HasNextOpen)
		assert.Equal(t, 10*time.Hour, chk.NextOpen)
	})

	t.Run("visit would outlast window", func(t *testing.T) {
		chk := h.CheckVisit(1, 16*time.Hour+30*time.Minute, visit, maxWait)
		assert.False(t, chk.OK)
		assert.False(t, chk.HasNextOpen)
	})

	t.Run("open all day always fits", func(t *testing.T) {
		allDay := hotspot.Hotspot{OpenAllDay: true}
		chk := allDay.CheckVisit(1, 22*time.Hour, visit, maxWait)
		assert.True(t, chk.OK)
	})

	t.Run("unbounded wait still needs the visit to fit", func(t *testing.T) {
		chk := h.CheckVisit(1, 8*time.Hour, visit, hotspot.Day)
		require.True(t, chk.OK)
		assert.True(t, chk.Waited)
		assert.Equal(t, 10*time.Hour, chk.AdjustedStart)
	})
}

func TestVisitLength(t *testing.T) {
	assert.Equal(t, 2*time.Hour, hotspot.Hotspot{VisitDuration: 2 * time.Hour}.VisitLength(time.Hour))
	assert.Equal(t, time.Hour, hotspot.Hotspot{}.VisitLength(time.Hour))
}
