package stream

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/passenger.counter/internal/counting"
)

var (
	// ErrDuplicateStream is returned when a stream name is registered twice.
	ErrDuplicateStream = errors.New("stream already registered")
	// ErrUnknownStream is returned for a stream name that was never registered.
	ErrUnknownStream = errors.New("unknown stream")
	// ErrStreamStopped is returned when a reset targets a stream whose
	// runner is not processing frames.
	ErrStreamStopped = errors.New("stream is not running")
)

// Input is one frame's worth of detections from a capture pipeline.
type Input struct {
	Timestamp  time.Time
	Width      int
	Height     int
	Detections []counting.Detection

	// FPS overrides the runner's framerate meter when positive. Replayed
	// recordings use it to reproduce the rate they were captured at.
	FPS float64
}

// Source produces frames. Next blocks until a frame is ready and
// returns io.EOF when the stream has ended cleanly.
type Source interface {
	Next(ctx context.Context) (Input, error)
	Close() error
}

// Output is what a Runner hands to sinks after each frame.
type Output struct {
	Stream    string
	SessionID string
	Result    counting.FrameResult
	Snapshot  counting.Snapshot

	// Input is the frame as the engine consumed it. Its FPS is the rate
	// the engine used, so replaying it reproduces the same eviction.
	Input Input
}

// Sink consumes per-frame results. Errors are logged by the runner and
// do not stop the stream.
type Sink interface {
	OnFrame(ctx context.Context, out Output) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, out Output) error

// OnFrame calls f.
func (f SinkFunc) OnFrame(ctx context.Context, out Output) error {
	return f(ctx, out)
}

// SessionStore records counting sessions. A session spans one engine's
// lifetime: it starts on the first frame and ends when the stream stops
// or its counters are reset.
type SessionStore interface {
	StartSession(ctx context.Context, stream string, width, height int) (string, error)
	EndSession(ctx context.Context, sessionID string, counters counting.Counters, frames int64) error
}

// CrossingStore persists crossing events.
type CrossingStore interface {
	RecordCrossings(ctx context.Context, sessionID, stream string, events []counting.CrossingEvent) error
}
