// Package replay reads and writes recorded detection streams as JSON
// lines, one frame per line. Recordings let the counting pipeline run
// without a camera (dev mode, regression fixtures).
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/passenger.counter/internal/counting"
	"github.com/banshee-data/passenger.counter/internal/stream"
	"github.com/banshee-data/passenger.counter/internal/timeutil"
)

// maxLineBytes bounds a single recorded frame.
const maxLineBytes = 4 << 20

// Record is the on-disk form of one frame.
type Record struct {
	Timestamp  time.Time         `json:"timestamp,omitempty"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	FPS        float64           `json:"fps,omitempty"`
	Detections []RecordDetection `json:"detections"`
}

// RecordDetection is one blob in a Record.
type RecordDetection struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Area float64 `json:"area"`
	// Optional bounding box; zero when absent.
	MinX float64 `json:"min_x,omitempty"`
	MinY float64 `json:"min_y,omitempty"`
	MaxX float64 `json:"max_x,omitempty"`
	MaxY float64 `json:"max_y,omitempty"`
}

func (r Record) input() stream.Input {
	in := stream.Input{
		Timestamp:  r.Timestamp,
		Width:      r.Width,
		Height:     r.Height,
		FPS:        r.FPS,
		Detections: make([]counting.Detection, 0, len(r.Detections)),
	}
	for _, d := range r.Detections {
		in.Detections = append(in.Detections, counting.Detection{
			Centroid: counting.Point{X: d.X, Y: d.Y},
			Area:     d.Area,
			Box:      counting.Rect{MinX: d.MinX, MinY: d.MinY, MaxX: d.MaxX, MaxY: d.MaxY},
		})
	}
	return in
}

// RecordFromInput converts a frame into its recorded form.
func RecordFromInput(in stream.Input) Record {
	r := Record{
		Timestamp:  in.Timestamp,
		Width:      in.Width,
		Height:     in.Height,
		FPS:        in.FPS,
		Detections: make([]RecordDetection, 0, len(in.Detections)),
	}
	for _, d := range in.Detections {
		r.Detections = append(r.Detections, RecordDetection{
			X: d.Centroid.X, Y: d.Centroid.Y, Area: d.Area,
			MinX: d.Box.MinX, MinY: d.Box.MinY, MaxX: d.Box.MaxX, MaxY: d.Box.MaxY,
		})
	}
	return r
}

// Options control playback.
type Options struct {
	// Paced sleeps between frames so playback runs at the recorded
	// framerate. Frames without an fps are not delayed.
	Paced bool
	// Loop restarts from the first frame at end of input. Only
	// supported for sources opened from a file.
	Loop  bool
	Clock timeutil.Clock
}

// Source replays a recording. It implements stream.Source.
type Source struct {
	opts Options

	mu     sync.Mutex
	path   string
	file   *os.File
	closer io.Closer
	sc     *bufio.Scanner
	line   int
}

// NewSource replays records from r. If r is an io.Closer it is closed
// with the source.
func NewSource(r io.Reader, opts Options) *Source {
	s := &Source{opts: opts}
	if s.opts.Clock == nil {
		s.opts.Clock = timeutil.RealClock{}
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	s.sc = newScanner(r)
	return s
}

// Open replays the recording at path.
func Open(path string, opts Options) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	s := NewSource(f, opts)
	s.path = path
	s.file = f
	return s, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return sc
}

// Next returns the next recorded frame. Blank lines are skipped.
func (s *Source) Next(ctx context.Context) (stream.Input, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return stream.Input{}, err
		}
		if !s.sc.Scan() {
			if err := s.sc.Err(); err != nil {
				return stream.Input{}, fmt.Errorf("read line %d: %w", s.line+1, err)
			}
			if s.opts.Loop && s.file != nil && s.line > 0 {
				if err := s.rewind(); err != nil {
					return stream.Input{}, err
				}
				continue
			}
			return stream.Input{}, io.EOF
		}
		s.line++
		raw := s.sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return stream.Input{}, fmt.Errorf("decode line %d: %w", s.line, err)
		}
		if rec.Width <= 0 || rec.Height <= 0 {
			return stream.Input{}, fmt.Errorf("line %d: frame size %dx%d is not positive", s.line, rec.Width, rec.Height)
		}
		if s.opts.Paced && rec.FPS > 0 {
			s.opts.Clock.Sleep(time.Duration(float64(time.Second) / rec.FPS))
		}
		return rec.input(), nil
	}
}

func (s *Source) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", s.path, err)
	}
	s.sc = newScanner(s.file)
	s.line = 0
	return nil
}

// Close releases the underlying reader.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// Writer appends frames to a recording.
type Writer struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
}

// NewWriter returns a writer over w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{w: bw, enc: json.NewEncoder(bw)}
}

// Write appends one frame.
func (w *Writer) Write(in stream.Input) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(RecordFromInput(in))
}

// Flush writes buffered frames through.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Flush()
}

// Recorder is a stream.Sink that appends every processed frame to a
// recording, with the framerate the engine used for it.
type Recorder struct {
	w      *Writer
	closer io.Closer
}

// NewRecorder records into w. If w is an io.Closer it is closed by Close.
func NewRecorder(w io.Writer) *Recorder {
	r := &Recorder{w: NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// OnFrame appends out.Input.
func (r *Recorder) OnFrame(_ context.Context, out stream.Output) error {
	if err := r.w.Write(out.Input); err != nil {
		return fmt.Errorf("record frame: %w", err)
	}
	return nil
}

// Close flushes buffered frames and closes the underlying writer. Call
// it after the stream has stopped.
func (r *Recorder) Close() error {
	err := r.w.Flush()
	if r.closer != nil {
		err = errors.Join(err, r.closer.Close())
		r.closer = nil
	}
	return err
}
