package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/passenger.counter/internal/counting"
)

// Crossing is a stored crossing event.
type Crossing struct {
	ID        int64              `json:"crossing_id"`
	SessionID string             `json:"session_id"`
	Stream    string             `json:"stream"`
	Frame     int64              `json:"frame"`
	Timestamp float64            `json:"ts"`
	TrackID   int                `json:"track_id"`
	Direction counting.Direction `json:"direction"`
	Increment int                `json:"increment"`
	Area      float64            `json:"area"`
	X         float64            `json:"x"`
	Y         float64            `json:"y"`
}

// Time returns the crossing timestamp.
func (c Crossing) Time() time.Time {
	return unixToTime(c.Timestamp)
}

func timeToUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func unixToTime(s float64) time.Time {
	return time.Unix(0, int64(s*1e9))
}

// RecordCrossings stores a frame's crossing events in one transaction.
func (db *DB) RecordCrossings(ctx context.Context, sessionID, stream string, events []counting.CrossingEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO crossings (session_id, stream, frame, ts, track_id, direction, increment, area, x, y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare crossing insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			sessionID, stream, ev.Frame, timeToUnix(ev.Timestamp), ev.TrackID,
			string(ev.Direction), ev.Increment, ev.Area, ev.Point.X, ev.Point.Y,
		); err != nil {
			return fmt.Errorf("failed to insert crossing: %w", err)
		}
	}
	return tx.Commit()
}

// CrossingQuery filters ListCrossings. Zero fields do not filter.
type CrossingQuery struct {
	Stream    string
	SessionID string
	Since     time.Time
	Until     time.Time
	Limit     int // <= 0 means 500
}

func (q CrossingQuery) bounds() (float64, float64) {
	since, until := 0.0, float64(1<<53)
	if !q.Since.IsZero() {
		since = timeToUnix(q.Since)
	}
	if !q.Until.IsZero() {
		until = timeToUnix(q.Until)
	}
	return since, until
}

// ListCrossings returns matching crossings, newest first.
func (db *DB) ListCrossings(ctx context.Context, q CrossingQuery) ([]Crossing, error) {
	if q.Limit <= 0 {
		q.Limit = 500
	}
	since, until := q.bounds()
	rows, err := db.QueryContext(ctx, `
		SELECT crossing_id, session_id, stream, frame, ts, track_id, direction, increment, area, x, y
		FROM crossings
		WHERE (? = '' OR stream = ?)
		  AND (? = '' OR session_id = ?)
		  AND ts >= ? AND ts < ?
		ORDER BY ts DESC, crossing_id DESC
		LIMIT ?
	`, q.Stream, q.Stream, q.SessionID, q.SessionID, since, until, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Crossing
	for rows.Next() {
		var c Crossing
		var dir string
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Stream, &c.Frame, &c.Timestamp, &c.TrackID,
			&dir, &c.Increment, &c.Area, &c.X, &c.Y); err != nil {
			return nil, err
		}
		c.Direction = counting.Direction(dir)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountBucket is the passenger total for one time bucket.
type CountBucket struct {
	Start time.Time `json:"start"`
	In    int       `json:"in"`
	Out   int       `json:"out"`
}

// CountsByInterval sums crossing increments into fixed buckets. Only
// buckets with at least one crossing are returned, oldest first.
func (db *DB) CountsByInterval(ctx context.Context, q CrossingQuery, interval time.Duration) ([]CountBucket, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("bucket interval %v is shorter than a second", interval)
	}
	width := int64(interval / time.Second)
	since, until := q.bounds()
	rows, err := db.QueryContext(ctx, `
		SELECT CAST(ts / ? AS INTEGER) * ? AS bucket,
		       COALESCE(SUM(CASE WHEN direction = 'in' THEN increment END), 0),
		       COALESCE(SUM(CASE WHEN direction = 'out' THEN increment END), 0)
		FROM crossings
		WHERE (? = '' OR stream = ?)
		  AND (? = '' OR session_id = ?)
		  AND ts >= ? AND ts < ?
		GROUP BY bucket
		ORDER BY bucket
	`, width, width, q.Stream, q.Stream, q.SessionID, q.SessionID, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CountBucket
	for rows.Next() {
		var (
			start int64
			b     CountBucket
		)
		if err := rows.Scan(&start, &b.In, &b.Out); err != nil {
			return nil, err
		}
		b.Start = time.Unix(start, 0).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// Totals sums crossing increments for the query.
func (db *DB) Totals(ctx context.Context, q CrossingQuery) (counting.Counters, error) {
	since, until := q.bounds()
	var c counting.Counters
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN direction = 'in' THEN increment END), 0),
		       COALESCE(SUM(CASE WHEN direction = 'out' THEN increment END), 0)
		FROM crossings
		WHERE (? = '' OR stream = ?)
		  AND (? = '' OR session_id = ?)
		  AND ts >= ? AND ts < ?
	`, q.Stream, q.Stream, q.SessionID, q.SessionID, since, until).Scan(&c.In, &c.Out)
	return c, err
}
