package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/passenger.counter/internal/counting"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Session is one counting run of a stream. EndedAt is nil while the
// session is open.
type Session struct {
	ID          string   `json:"session_id"`
	Stream      string   `json:"stream"`
	FrameWidth  int      `json:"frame_width"`
	FrameHeight int      `json:"frame_height"`
	StartedAt   float64  `json:"started_at"`
	EndedAt     *float64 `json:"ended_at,omitempty"`
	In          int      `json:"in"`
	Out         int      `json:"out"`
	Frames      int64    `json:"frames"`
}

// StartSession opens a session and returns its id.
func (db *DB) StartSession(ctx context.Context, stream string, width, height int) (string, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, stream, frame_width, frame_height)
		VALUES (?, ?, ?, ?)
	`, id, stream, width, height)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// EndSession stamps the end time and final totals.
func (db *DB) EndSession(ctx context.Context, sessionID string, c counting.Counters, frames int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE sessions
		SET ended_at = UNIXEPOCH('subsec'), count_in = ?, count_out = ?, frames = ?
		WHERE session_id = ?
	`, c.In, c.Out, frames, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

const sessionColumns = `session_id, stream, frame_width, frame_height, started_at, ended_at, count_in, count_out, frames`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		s     Session
		ended sql.NullFloat64
	)
	if err := row.Scan(&s.ID, &s.Stream, &s.FrameWidth, &s.FrameHeight, &s.StartedAt, &ended, &s.In, &s.Out, &s.Frames); err != nil {
		return Session{}, err
	}
	if ended.Valid {
		v := ended.Float64
		s.EndedAt = &v
	}
	return s, nil
}

// GetSession looks up one session.
func (db *DB) GetSession(ctx context.Context, sessionID string) (Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, err
}

// ListSessions returns the newest sessions first. An empty stream
// matches every stream; limit <= 0 means 100.
func (db *DB) ListSessions(ctx context.Context, stream string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE (? = '' OR stream = ?)
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, stream, stream, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
