package timeline_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/hotspot"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/timeline"
)

func catalogOf(hs ...hotspot.Hotspot) map[int64]hotspot.Hotspot {
	m := make(map[int64]hotspot.Hotspot, len(hs))
	for _, h := range hs {
		m[h.ID] = h
	}
	return m
}

func builtTimeline(t *testing.T, asm *timeline.Assembler, seg timeline.Segment, sets hotspot.Sets) []timeline.Entry {
	t.Helper()
	entries, err := asm.Build(context.Background(), seg, sets, nil)
	require.NoError(t, err)
	// Simulate persisted rows.
	for i := range entries {
		entries[i].ID = int64(i + 1)
	}
	return entries
}

func TestPreviewInsert_AppendsAndShifts(t *testing.T) {
	asm := newAssembler(t)
	seg := daySegment()
	seg.Version = 3

	fort := hotspot.Hotspot{ID: 1, Name: "Fort St. George", Coords: fortCoords, Priority: 1, OpenAllDay: true, Aliases: []string{"Chennai"}}
	marina := hotspot.Hotspot{ID: 2, Name: "Marina Beach", Coords: marinaCoords, Priority: 1, OpenAllDay: true, Aliases: []string{"Chennai"}}
	existing := builtTimeline(t, asm, seg, hotspot.Sets{Destination: []hotspot.Hotspot{fort}})

	res, err := asm.PreviewInsert(context.Background(), seg, existing, marina, catalogOf(fort, marina))
	require.NoError(t, err)

	assert.Empty(t, res.Reason)
	assert.Equal(t, int64(3), res.SegmentVersion)
	require.NotNil(t, res.Entry)
	assert.Equal(t, int64(2), res.Entry.HotspotID)
	assert.True(t, res.Entry.ManuallyAdded)
	require.NotNil(t, res.Travel)

	// The closing return row moves later by the inserted span.
	require.Len(t, res.Shifted, 1)
	assert.Equal(t, timeline.KindReturn, res.Shifted[0].Kind)
	assert.Greater(t, res.Shifted[0].Start, existing[len(existing)-1].Start)
	assert.Empty(t, res.Conflicts)
}

func TestPreviewInsert_Idempotent(t *testing.T) {
	asm := newAssembler(t)
	seg := daySegment()
	seg.Version = 5

	fort := hotspot.Hotspot{ID: 1, Name: "Fort", Coords: fortCoords, Priority: 1, OpenAllDay: true, Aliases: []string{"Chennai"}}
	marina := hotspot.Hotspot{ID: 2, Name: "Marina", Coords: marinaCoords, Priority: 1, OpenAllDay: true, Aliases: []string{"Chennai"}}
	existing := builtTimeline(t, asm, seg, hotspot.Sets{Destination: []hotspot.Hotspot{fort}})
	catalog := catalogOf(fort, marina)

	first, err := asm.PreviewInsert(context.Background(), seg, existing, marina, catalog)
	require.NoError(t, err)
	second, err := asm.PreviewInsert(context.Background(), seg, existing, marina, catalog)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, a, b, "repeated previews must be byte-identical")

	// A committed change bumps the version and with it the preview id.
	seg.Version = 6
	third, err := asm.PreviewInsert(context.Background(), seg, existing, marina, catalog)
	require.NoError(t, err)
	assert.NotEqual(t, first.PreviewID, third.PreviewID)
}

func TestPreviewInsert_LocationMismatch(t *testing.T) {
	asm := newAssembler(t)
	seg := daySegment()

	elsewhere := hotspot.Hotspot{ID: 9, Name: "Meenakshi Temple", Priority: 1, OpenAllDay: true, Aliases: []string{"Madurai"}}
	existing := builtTimeline(t, asm, seg, hotspot.Sets{})

	res, err := asm.PreviewInsert(context.Background(), seg, existing, elsewhere, catalogOf(elsewhere))
	require.NoError(t, err)

	assert.Equal(t, timeline.ReasonLocationMismatch, res.Reason)
	assert.Nil(t, res.Entry)
	assert.Empty(t, res.Shifted)
}

func TestPreviewInsert_DuplicateRejected(t *testing.T) {
	asm := newAssembler(t)
	seg := daySegment()

	fort := hotspot.Hotspot{ID: 1, Name: "Fort", Coords: fortCoords, Priority: 1, OpenAllDay: true, Aliases: []string{"Chennai"}}
	existing := builtTimeline(t, asm, seg, hotspot.Sets{Destination: []hotspot.Hotspot{fort}})

	res, err := asm.PreviewInsert(context.Background(), seg, existing, fort, catalogOf(fort))
	require.NoError(t, err)
	assert.Equal(t, timeline.ReasonDuplicate, res.Reason)
}

func TestPreviewInsert_OverflowBecomesConflict(t *testing.T) {
	asm := newAssembler(t)
	seg := daySegment()
	seg.End = 12*time.Hour + 30*time.Minute

	fort := hotspot.Hotspot{ID: 1, Name: "Fort", Coords: fortCoords, Priority: 1, OpenAllDay: true, Aliases: []string{"Chennai"}}
	slow := hotspot.Hotspot{
		ID: 2, Name: "Long Tour", Coords: marinaCoords, Priority: 1, OpenAllDay: true,
		Aliases: []string{"Chennai"}, VisitDuration: 3 * time.Hour,
	}
	existing := builtTimeline(t, asm, seg, hotspot.Sets{Destination: []hotspot.Hotspot{fort}})

	res, err := asm.PreviewInsert(context.Background(), seg, existing, slow, catalogOf(fort, slow))
	require.NoError(t, err)

	// The insert itself is rejected: a three-hour visit cannot close before
	// the segment window does.
	assert.Equal(t, timeline.ReasonPastCutoff, res.Reason)
}

func TestPreviewRemove_FreesSpanAndShiftsBack(t *testing.T) {
	asm := newAssembler(t)
	seg := daySegment()

	fort := hotspot.Hotspot{ID: 1, Name: "Fort", Coords: fortCoords, Priority: 1, OpenAllDay: true, Aliases: []string{"Chennai"}}
	marina := hotspot.Hotspot{ID: 2, Name: "Marina", Coords: marinaCoords, Priority: 1, OpenAllDay: true, Aliases: []string{"Chennai"}}
	existing := builtTimeline(t, asm, seg, hotspot.Sets{Destination: []hotspot.Hotspot{fort, marina}})

	// Remove the first visit; everything after moves earlier.
	var visitID int64
	var visitIdx int
	for i, e := range existing {
		if e.Kind == timeline.KindVisit {
			visitID = e.ID
			visitIdx = i
			break
		}
	}
	require.NotZero(t, visitID)

	res, err := asm.PreviewRemove(context.Background(), seg, existing, visitID)
	require.NoError(t, err)

	assert.Empty(t, res.Reason)
	require.NotNil(t, res.Entry)
	assert.Equal(t, visitID, res.Entry.ID)
	require.NotNil(t, res.Travel)
	assert.Equal(t, timeline.KindTravel, res.Travel.Kind)

	require.Len(t, res.Shifted, len(existing)-visitIdx-1)
	freed := res.Entry.End - res.Travel.Start
	for i, shifted := range res.Shifted {
		orig := existing[visitIdx+1+i]
		assert.Equal(t, orig.Start-freed, shifted.Start)
		assert.Equal(t, orig.End-freed, shifted.End)
	}
}

func TestPreviewRemove_UnknownEntry(t *testing.T) {
	asm := newAssembler(t)
	seg := daySegment()
	existing := builtTimeline(t, asm, seg, hotspot.Sets{})

	res, err := asm.PreviewRemove(context.Background(), seg, existing, 999)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Reason)
	assert.Nil(t, res.Entry)
}

func TestPreviewRemove_DoesNotMutateInput(t *testing.T) {
	asm := newAssembler(t)
	seg := daySegment()

	fort := hotspot.Hotspot{ID: 1, Name: "Fort", Coords: fortCoords, Priority: 1, OpenAllDay: true, Aliases: []string{"Chennai"}}
	existing := builtTimeline(t, asm, seg, hotspot.Sets{Destination: []hotspot.Hotspot{fort}})

	snapshot := make([]timeline.Entry, len(existing))
	copy(snapshot, existing)

	var visitID int64
	for _, e := range existing {
		if e.Kind == timeline.KindVisit {
			visitID = e.ID
		}
	}
	_, err := asm.PreviewRemove(context.Background(), seg, existing, visitID)
	require.NoError(t, err)
	assert.Equal(t, snapshot, existing)
}
