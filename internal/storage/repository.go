// Package storage provides postgres persistence for route segments, hotspot
// reference data, timeline entries, and the distance cache.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/distance"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/geo"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/hotspot"
	"github.com/sparkgenieit/api.dvi.travel-sub004/internal/timeline"
)

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ErrVersionMismatch reports that a segment's timeline changed under a
// caller holding an older version. The planner maps it to StaleTimeline.
var ErrVersionMismatch = errors.New("segment version mismatch")

// Repository provides database access for the scheduling engine. Methods
// that need transactions or advisory locks require a real pool; query
// methods work against any Querier.
type Repository struct {
	q    Querier
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool, pool: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier
// (for tests). Transactional methods are unavailable.
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

// GetSegment retrieves one route segment. Returns nil, nil when not found.
func (r *Repository) GetSegment(ctx context.Context, segmentID int64) (*timeline.Segment, error) {
	const q = `
		SELECT s.id, s.plan_id, s.idx, s.date, s.source, s.destination, s.via,
		       s.source_lat, s.source_lon, s.dest_lat, s.dest_lon,
		       s.start_seconds, s.end_seconds, s.direct, s.mode, s.version,
		       s.idx = (SELECT MAX(idx) FROM route_segments WHERE plan_id = s.plan_id) AS final
		FROM route_segments s
		WHERE s.id = $1
	`
	seg, err := scanSegment(r.q.QueryRow(ctx, q, segmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying segment %d: %w", segmentID, err)
	}
	return seg, nil
}

// ListSegments returns a plan's segments in trip order, with the last one
// marked final.
func (r *Repository) ListSegments(ctx context.Context, planID int64) ([]timeline.Segment, error) {
	const q = `
		SELECT s.id, s.plan_id, s.idx, s.date, s.source, s.destination, s.via,
		       s.source_lat, s.source_lon, s.dest_lat, s.dest_lon,
		       s.start_seconds, s.end_seconds, s.direct, s.mode, s.version,
		       s.idx = (SELECT MAX(idx) FROM route_segments WHERE plan_id = s.plan_id) AS final
		FROM route_segments s
		WHERE s.plan_id = $1
		ORDER BY s.idx
	`
	rows, err := r.q.Query(ctx, q, planID)
	if err != nil {
		return nil, fmt.Errorf("querying segments for plan %d: %w", planID, err)
	}
	defer rows.Close()

	var out []timeline.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning segment row: %w", err)
		}
		out = append(out, *seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating segment rows: %w", err)
	}
	return out, nil
}

func scanSegment(row pgx.Row) (*timeline.Segment, error) {
	var s timeline.Segment
	var startSec, endSec int64
	var mode string
	err := row.Scan(
		&s.ID, &s.PlanID, &s.Index, &s.Date, &s.Source, &s.Destination, &s.Via,
		&s.SourceCoords.Lat, &s.SourceCoords.Lon, &s.DestCoords.Lat, &s.DestCoords.Lon,
		&startSec, &endSec, &s.Direct, &mode, &s.Version, &s.Final,
	)
	if err != nil {
		return nil, err
	}
	s.Start = time.Duration(startSec) * time.Second
	s.End = time.Duration(endSec) * time.Second
	s.Mode = geo.TravelMode(mode)
	return &s, nil
}

// ListHotspots returns all active hotspot master records with their
// operating windows attached.
func (r *Repository) ListHotspots(ctx context.Context) ([]hotspot.Hotspot, error) {
	const q = `
		SELECT id, name, lat, lon, visit_seconds, priority, aliases, boundaries, open_all_day
		FROM hotspots
		WHERE NOT deleted
		ORDER BY id
	`
	rows, err := r.q.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying hotspots: %w", err)
	}
	defer rows.Close()

	var out []hotspot.Hotspot
	index := map[int64]int{}
	for rows.Next() {
		var h hotspot.Hotspot
		var visitSec int64
		if err := rows.Scan(&h.ID, &h.Name, &h.Coords.Lat, &h.Coords.Lon,
			&visitSec, &h.Priority, &h.Aliases, &h.Boundaries, &h.OpenAllDay); err != nil {
			return nil, fmt.Errorf("scanning hotspot row: %w", err)
		}
		h.VisitDuration = time.Duration(visitSec) * time.Second
		index[h.ID] = len(out)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hotspot rows: %w", err)
	}

	const wq = `
		SELECT hotspot_id, weekday, start_seconds, end_seconds, closed, open_all_day
		FROM operating_windows
		ORDER BY hotspot_id, weekday, start_seconds
	`
	wrows, err := r.q.Query(ctx, wq)
	if err != nil {
		return nil, fmt.Errorf("querying operating windows: %w", err)
	}
	defer wrows.Close()

	for wrows.Next() {
		var hotspotID int64
		var w hotspot.Window
		var startSec, endSec int64
		if err := wrows.Scan(&hotspotID, &w.Weekday, &startSec, &endSec, &w.Closed, &w.OpenAllDay); err != nil {
			return nil, fmt.Errorf("scanning window row: %w", err)
		}
		w.Start = time.Duration(startSec) * time.Second
		w.End = time.Duration(endSec) * time.Second
		if i, ok := index[hotspotID]; ok {
			out[i].Windows = append(out[i].Windows, w)
		}
	}
	if err := wrows.Err(); err != nil {
		return nil, fmt.Errorf("iterating window rows: %w", err)
	}
	return out, nil
}

// ListEntries returns a segment's active timeline entries in ordinal order.
func (r *Repository) ListEntries(ctx context.Context, segmentID int64) ([]timeline.Entry, error) {
	const q = `
		SELECT id, segment_id, ordinal, kind, start_seconds, end_seconds,
		       hotspot_id, hotspot_name, distance_km, travel_seconds,
		       manually_added, conflict, conflict_reason, allow_break_hours
		FROM timeline_entries
		WHERE segment_id = $1 AND NOT deleted
		ORDER BY ordinal
	`
	rows, err := r.q.Query(ctx, q, segmentID)
	if err != nil {
		return nil, fmt.Errorf("querying entries for segment %d: %w", segmentID, err)
	}
	defer rows.Close()

	var out []timeline.Entry
	for rows.Next() {
		var e timeline.Entry
		var kind string
		var startSec, endSec, travelSec int64
		if err := rows.Scan(&e.ID, &e.SegmentID, &e.Ordinal, &kind, &startSec, &endSec,
			&e.HotspotID, &e.HotspotName, &e.DistanceKm, &travelSec,
			&e.ManuallyAdded, &e.Conflict, &e.ConflictReason, &e.AllowBreakHours); err != nil {
			return nil, fmt.Errorf("scanning entry row: %w", err)
		}
		e.Kind = timeline.Kind(kind)
		e.Start = time.Duration(startSec) * time.Second
		e.End = time.Duration(endSec) * time.Second
		e.TravelTime = time.Duration(travelSec) * time.Second
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entry rows: %w", err)
	}
	return out, nil
}

// ListManualHotspotIDs returns the hotspot ids currently pinned to a segment
// by manual insertion, newest first.
func (r *Repository) ListManualHotspotIDs(ctx context.Context, segmentID int64) ([]int64, error) {
	const q = `
		SELECT DISTINCT ON (hotspot_id) hotspot_id
		FROM timeline_entries
		WHERE segment_id = $1 AND kind = 'visit' AND manually_added AND NOT deleted
		ORDER BY hotspot_id, id DESC
	`
	rows, err := r.q.Query(ctx, q, segmentID)
	if err != nil {
		return nil, fmt.Errorf("querying manual hotspots for segment %d: %w", segmentID, err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning manual hotspot id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating manual hotspot ids: %w", err)
	}
	return out, nil
}

// ReplaceEntries swaps a segment's timeline for a new one: old rows are
// soft-deleted, never removed. When expectedVersion is non-negative it must
// match the stored version or ErrVersionMismatch is returned and nothing
// changes. The segment version is bumped either way.
func (r *Repository) ReplaceEntries(ctx context.Context, segmentID int64, expectedVersion int64, entries []timeline.Entry) error {
	if r.pool == nil {
		return errors.New("replace entries: repository has no pool")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning replace tx for segment %d: %w", segmentID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var version int64
	err = tx.QueryRow(ctx, `SELECT version FROM route_segments WHERE id = $1 FOR UPDATE`, segmentID).Scan(&version)
	if err != nil {
		return fmt.Errorf("locking segment %d: %w", segmentID, err)
	}
	if expectedVersion >= 0 && version != expectedVersion {
		return fmt.Errorf("segment %d at version %d, expected %d: %w", segmentID, version, expectedVersion, ErrVersionMismatch)
	}

	if _, err := tx.Exec(ctx, `UPDATE timeline_entries SET deleted = TRUE WHERE segment_id = $1 AND NOT deleted`, segmentID); err != nil {
		return fmt.Errorf("soft-deleting entries for segment %d: %w", segmentID, err)
	}

	const ins = `
		INSERT INTO timeline_entries
			(segment_id, ordinal, kind, start_seconds, end_seconds,
			 hotspot_id, hotspot_name, distance_km, travel_seconds,
			 manually_added, conflict, conflict_reason, allow_break_hours)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`
	for _, e := range entries {
		if _, err := tx.Exec(ctx, ins,
			segmentID, e.Ordinal, string(e.Kind),
			int64(e.Start/time.Second), int64(e.End/time.Second),
			e.HotspotID, e.HotspotName, e.DistanceKm, int64(e.TravelTime/time.Second),
			e.ManuallyAdded, e.Conflict, e.ConflictReason, e.AllowBreakHours); err != nil {
			return fmt.Errorf("inserting entry %d for segment %d: %w", e.Ordinal, segmentID, err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE route_segments SET version = version + 1 WHERE id = $1`, segmentID); err != nil {
		return fmt.Errorf("bumping version for segment %d: %w", segmentID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing replace for segment %d: %w", segmentID, err)
	}
	return nil
}

// SoftDeleteDuplicateManuals keeps only the most recently created active
// manual visit for the (segment, hotspot) pair, soft-deleting earlier ones.
// Returns the number of rows deactivated.
func (r *Repository) SoftDeleteDuplicateManuals(ctx context.Context, segmentID, hotspotID int64) (int64, error) {
	const q = `
		UPDATE timeline_entries SET deleted = TRUE
		WHERE segment_id = $1 AND hotspot_id = $2 AND kind = 'visit'
		  AND manually_added AND NOT deleted
		  AND id < (
			SELECT MAX(id) FROM timeline_entries
			WHERE segment_id = $1 AND hotspot_id = $2 AND kind = 'visit'
			  AND manually_added AND NOT deleted
		  )
	`
	tag, err := r.q.Exec(ctx, q, segmentID, hotspotID)
	if err != nil {
		return 0, fmt.Errorf("deduplicating manual visits for segment %d hotspot %d: %w", segmentID, hotspotID, err)
	}
	return tag.RowsAffected(), nil
}

// WithSegmentLock runs fn while holding the advisory lock for (planID,
// segmentID), serializing preview+commit against concurrent commits to the
// same segment.
func (r *Repository) WithSegmentLock(ctx context.Context, planID, segmentID int64, fn func(ctx context.Context) error) error {
	if r.pool == nil {
		return errors.New("segment lock: repository has no pool")
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for segment lock: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1, $2)`, int32(planID), int32(segmentID)); err != nil {
		return fmt.Errorf("acquiring advisory lock for plan %d segment %d: %w", planID, segmentID, err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1, $2)`, int32(planID), int32(segmentID))
	}()

	return fn(ctx)
}

// GetEntry implements distance.Store. Returns nil, nil on a miss.
func (r *Repository) GetEntry(ctx context.Context, k distance.Key) (*distance.Entry, error) {
	const q = `
		SELECT from_id, to_id, travel_class, haversine_km, correction_factor,
		       speed_kmph, distance_km, duration_seconds
		FROM hotspot_distance_cache
		WHERE from_id = $1 AND to_id = $2 AND travel_class = $3
	`
	var e distance.Entry
	var class string
	var durSec int64
	err := r.q.QueryRow(ctx, q, k.FromID, k.ToID, string(k.Class)).Scan(
		&e.FromID, &e.ToID, &class, &e.HaversineKm, &e.CorrectionFactor,
		&e.SpeedKmph, &e.DistanceKm, &durSec,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying distance cache %d->%d: %w", k.FromID, k.ToID, err)
	}
	e.Class = geo.TravelClass(class)
	e.Duration = time.Duration(durSec) * time.Second
	return &e, nil
}

// PutPair implements distance.Store: both directions are written in one
// transaction, ignoring rows that already exist so racing fills stay
// idempotent.
func (r *Repository) PutPair(ctx context.Context, forward, reverse distance.Entry) error {
	const ins = `
		INSERT INTO hotspot_distance_cache
			(from_id, to_id, travel_class, haversine_km, correction_factor,
			 speed_kmph, distance_km, duration_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (from_id, to_id, travel_class) DO NOTHING
	`
	for _, e := range []distance.Entry{forward, reverse} {
		if _, err := r.q.Exec(ctx, ins,
			e.FromID, e.ToID, string(e.Class), e.HaversineKm, e.CorrectionFactor,
			e.SpeedKmph, e.DistanceKm, int64(e.Duration/time.Second)); err != nil {
			return fmt.Errorf("inserting distance cache %d->%d: %w", e.FromID, e.ToID, err)
		}
	}
	return nil
}
