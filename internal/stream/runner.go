package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/passenger.counter/internal/config"
	"github.com/banshee-data/passenger.counter/internal/counting"
	"github.com/banshee-data/passenger.counter/internal/framerate"
	"github.com/banshee-data/passenger.counter/internal/monitoring"
	"github.com/banshee-data/passenger.counter/internal/timeutil"
)

// Config holds everything a Runner needs.
type Config struct {
	Name     string
	Source   Source
	Params   *config.Live
	Sinks    []Sink
	Sessions SessionStore   // optional
	Clock    timeutil.Clock // optional, defaults to the real clock

	// SeedFPS is used as the framerate estimate until the meter has
	// completed its first window. Zero keeps the meter's initial 0.
	SeedFPS float64
}

// Runner processes one stream.
type Runner struct {
	cfg   Config
	logf  func(format string, v ...interface{})
	clock timeutil.Clock

	engine *counting.Engine
	meter  *framerate.Meter

	snapshot atomic.Pointer[counting.Snapshot]
	reset    atomic.Bool
	running  atomic.Bool

	sessionMu sync.RWMutex
	sessionID string

	loopTime   time.Duration
	loopFrames int64
}

// NewRunner creates a runner; call Run to start it.
func NewRunner(cfg Config) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Params == nil {
		cfg.Params = config.NewLive(nil)
	}
	r := &Runner{
		cfg:    cfg,
		logf:   monitoring.Prefixed("stream " + cfg.Name),
		clock:  cfg.Clock,
		engine: counting.NewEngine(),
	}
	r.meter = framerate.NewMeter(cfg.Clock, cfg.Params.Get().GetFramerateWindow())
	r.meter.Seed(cfg.SeedFPS)
	empty := r.engine.Snapshot()
	r.snapshot.Store(&empty)
	return r
}

// Name returns the stream name.
func (r *Runner) Name() string {
	return r.cfg.Name
}

// Snapshot returns the state published after the most recent frame.
func (r *Runner) Snapshot() counting.Snapshot {
	return *r.snapshot.Load()
}

// SessionID returns the current session id, empty before the first frame.
func (r *Runner) SessionID() string {
	r.sessionMu.RLock()
	defer r.sessionMu.RUnlock()
	return r.sessionID
}

// Running reports whether Run is active.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// RequestReset asks the runner to close the current session and start
// over with a fresh engine. It takes effect between frames, so a runner
// that is not running refuses it with ErrStreamStopped.
func (r *Runner) RequestReset() error {
	if !r.Running() {
		return fmt.Errorf("%w: %s", ErrStreamStopped, r.cfg.Name)
	}
	r.reset.Store(true)
	return nil
}

// AverageLoopTime returns the smoothed per-frame processing time: the
// first frame's time, then each new frame averaged with the previous
// estimate. It is only read from the Run goroutine or after Run has
// returned.
func (r *Runner) AverageLoopTime() time.Duration {
	return r.loopTime
}

// Run processes frames until the source ends (nil), the context is
// cancelled (ctx.Err()) or the source fails (wrapped error). A frame is
// always processed to completion before cancellation is checked.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("stream %s: already running", r.cfg.Name)
	}
	defer r.running.Store(false)
	defer func() {
		if err := r.cfg.Source.Close(); err != nil {
			r.logf("failed to close source: %v", err)
		}
	}()
	defer r.endSession(context.WithoutCancel(ctx))

	r.logf("started")
	for {
		if err := ctx.Err(); err != nil {
			r.logf("stopped after %d frames, average loop time %v", r.engine.FramesProcessed(), r.AverageLoopTime())
			return err
		}

		if r.reset.Swap(false) {
			r.endSession(ctx)
			r.engine = counting.NewEngine()
			r.logf("counters reset")
		}

		in, err := r.cfg.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			r.logf("source ended after %d frames, average loop time %v", r.engine.FramesProcessed(), r.AverageLoopTime())
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream %s: read frame: %w", r.cfg.Name, err)
		}

		r.processFrame(ctx, in)
	}
}

func (r *Runner) processFrame(ctx context.Context, in Input) {
	start := r.clock.Now()

	tuning := r.cfg.Params.Get()
	r.meter.SetWindow(tuning.GetFramerateWindow())
	if fps := r.meter.Tick(); in.FPS <= 0 {
		in.FPS = fps
	}

	if r.SessionID() == "" {
		r.startSession(ctx, in.Width, in.Height)
	}

	res := r.engine.ProcessFrame(counting.Frame{
		Timestamp:  in.Timestamp,
		Width:      in.Width,
		Height:     in.Height,
		FPS:        in.FPS,
		Detections: in.Detections,
	}, counting.ParamsFromTuning(tuning))
	snap := r.engine.Snapshot()
	r.snapshot.Store(&snap)

	for _, ev := range res.Crossings {
		r.logf("crossing %s track=%d +%d area=%.0f in=%d out=%d",
			ev.Direction, ev.TrackID, ev.Increment, ev.Area, res.Counters.In, res.Counters.Out)
	}

	out := Output{
		Stream:    r.cfg.Name,
		SessionID: r.SessionID(),
		Result:    res,
		Snapshot:  snap,
		Input:     in,
	}
	for _, sink := range r.cfg.Sinks {
		if err := sink.OnFrame(ctx, out); err != nil {
			r.logf("sink error: %v", err)
		}
	}

	r.observeLoopTime(r.clock.Since(start))
}

func (r *Runner) observeLoopTime(d time.Duration) {
	if r.loopFrames == 0 {
		r.loopTime = d
	} else {
		r.loopTime = (r.loopTime + d) / 2
	}
	r.loopFrames++
}

func (r *Runner) startSession(ctx context.Context, width, height int) {
	id := fmt.Sprintf("%s-%d", r.cfg.Name, r.clock.Now().UnixNano())
	if r.cfg.Sessions != nil {
		stored, err := r.cfg.Sessions.StartSession(ctx, r.cfg.Name, width, height)
		if err != nil {
			r.logf("failed to start session: %v", err)
		} else {
			id = stored
		}
	}
	r.sessionMu.Lock()
	r.sessionID = id
	r.sessionMu.Unlock()
	r.logf("session %s started (%dx%d)", id, width, height)
}

func (r *Runner) endSession(ctx context.Context) {
	r.sessionMu.Lock()
	id := r.sessionID
	r.sessionID = ""
	r.sessionMu.Unlock()
	if id == "" {
		return
	}
	counters := r.engine.Counters()
	if r.cfg.Sessions != nil {
		if err := r.cfg.Sessions.EndSession(ctx, id, counters, r.engine.FramesProcessed()); err != nil {
			r.logf("failed to end session %s: %v", id, err)
		}
	}
	r.logf("session %s ended: in=%d out=%d", id, counters.In, counters.Out)
}
