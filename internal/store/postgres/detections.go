package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/firewatch/hotspot-ingest/internal/domain"
)

const insertDetectionSQL = `
	INSERT INTO detections (latitude, longitude, observed_at, intensity, confidence, instrument, source, region)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (latitude, longitude, observed_at) DO NOTHING`

// InsertDetections performs an insert-if-absent for each record. Collisions
// on the dedup key are expected and counted as skipped, never errors, which
// makes re-ingesting the same raw batch idempotent.
func (s *Store) InsertDetections(ctx context.Context, recs []domain.Detection) (inserted, skipped int64, err error) {
	if len(recs) == 0 {
		return 0, 0, nil
	}

	batch := &pgx.Batch{}
	for _, d := range recs {
		batch.Queue(insertDetectionSQL,
			d.Latitude, d.Longitude, d.ObservedAt, d.Intensity,
			d.Confidence, d.Instrument, d.Source, d.Region)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range recs {
		tag, err := results.Exec()
		if err != nil {
			return inserted, skipped, fmt.Errorf("insert detection: %w", err)
		}
		if tag.RowsAffected() == 0 {
			skipped++
		} else {
			inserted++
		}
	}
	return inserted, skipped, nil
}

// ReplaceDetections swaps out a feed's whole scope in one transaction:
// delete every row the source previously wrote, then insert the new batch.
// Readers never observe the intermediate empty state.
func (s *Store) ReplaceDetections(ctx context.Context, source string, recs []domain.Detection) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin replace detections: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `DELETE FROM detections WHERE source = $1`, source); err != nil {
		return 0, fmt.Errorf("clear detection scope %q: %w", source, err)
	}

	var inserted int64
	for _, d := range recs {
		tag, err := tx.Exec(ctx, insertDetectionSQL,
			d.Latitude, d.Longitude, d.ObservedAt, d.Intensity,
			d.Confidence, d.Instrument, d.Source, d.Region)
		if err != nil {
			return 0, fmt.Errorf("replace detection: %w", err)
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit replace detections: %w", err)
	}
	return inserted, nil
}

// PruneDetectionsByAge deletes the source's detections observed before the
// cutoff. Retention windows are per-feed, so the delete must never reach
// into another feed's rows: a 24-hour cutoff applied globally would destroy
// long-horizon records still inside their own window.
func (s *Store) PruneDetectionsByAge(ctx context.Context, source string, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM detections WHERE source = $1 AND observed_at < $2`, source, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune detections by age: %w", err)
	}
	return tag.RowsAffected(), nil
}

// geofencePruneChunk bounds the id list of a single DELETE statement.
const geofencePruneChunk = 500

// PruneDetectionsOutsideGeofence re-classifies every stored coordinate under
// the current policy and deletes rows the policy now rejects. Policies evolve
// between runs, so rows accepted under an older, looser policy must be
// cleaned retroactively.
func (s *Store) PruneDetectionsOutsideGeofence(ctx context.Context, policy domain.GeofencePolicy) (int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, latitude, longitude FROM detections`)
	if err != nil {
		return 0, fmt.Errorf("scan detections for geofence prune: %w", err)
	}
	defer rows.Close()

	var outside []int64
	for rows.Next() {
		var id int64
		var lat, lon float64
		if err := rows.Scan(&id, &lat, &lon); err != nil {
			return 0, fmt.Errorf("scan detection row: %w", err)
		}
		if !policy.Contains(lat, lon) {
			outside = append(outside, id)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate detections: %w", err)
	}

	var deleted int64
	for start := 0; start < len(outside); start += geofencePruneChunk {
		end := min(start+geofencePruneChunk, len(outside))
		tag, err := s.pool.Exec(ctx, `DELETE FROM detections WHERE id = ANY($1)`, outside[start:end])
		if err != nil {
			return deleted, fmt.Errorf("delete geofence-rejected detections: %w", err)
		}
		deleted += tag.RowsAffected()
	}
	return deleted, nil
}

// DetectionFilter narrows read-only queries issued by downstream consumers.
// Zero-valued fields are ignored.
type DetectionFilter struct {
	Since  time.Time
	Until  time.Time
	Region string
	Source string
	Limit  int
}

// ListDetections returns stored detections matching the filter, newest first.
// This is the read surface consumed by the presentation layer; it performs no
// writes.
func (s *Store) ListDetections(ctx context.Context, filter DetectionFilter) ([]domain.Detection, error) {
	query := `SELECT latitude, longitude, observed_at, intensity, confidence, instrument, source, region
		FROM detections WHERE TRUE`
	args := []any{}

	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND observed_at >= $%d", len(args))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		query += fmt.Sprintf(" AND observed_at < $%d", len(args))
	}
	if filter.Region != "" {
		args = append(args, filter.Region)
		query += fmt.Sprintf(" AND region = $%d", len(args))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	query += " ORDER BY observed_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	var out []domain.Detection
	for rows.Next() {
		var d domain.Detection
		if err := rows.Scan(&d.Latitude, &d.Longitude, &d.ObservedAt, &d.Intensity,
			&d.Confidence, &d.Instrument, &d.Source, &d.Region); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate detections: %w", err)
	}
	return out, nil
}
