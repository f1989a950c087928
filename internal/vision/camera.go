//go:build withcv

package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/passenger.counter/internal/config"
	"github.com/banshee-data/passenger.counter/internal/counting"
	"github.com/banshee-data/passenger.counter/internal/monitoring"
	"github.com/banshee-data/passenger.counter/internal/stream"
)

// CameraConfig describes one capture device and how it is shown.
type CameraConfig struct {
	Name      string
	Device    string // device index or a file path / URL
	Params    *config.Live
	Displays  Displays
	Calibrate bool   // show the calibration sliders on the colour window
	VideoDir  string // record the annotated stream here; empty disables
}

// Camera captures frames and detects blobs as a stream.Source, then
// draws the tracking results back onto the same frame as a stream.Sink.
// Both halves run on the stream's goroutine.
type Camera struct {
	cfg     CameraConfig
	logf    func(format string, v ...interface{})
	capture *gocv.VideoCapture

	detector   *Detector
	frame      gocv.Mat
	detections []counting.Detection

	color, backsub, denoise *gocv.Window
	trackbars               []Trackbar
	sliders                 []*gocv.Trackbar
	paramsVersion           uint64

	writer *gocv.VideoWriter
}

// OpenCamera opens the capture device and the requested windows.
func OpenCamera(cfg CameraConfig) (*Camera, error) {
	if cfg.Params == nil {
		cfg.Params = config.NewLive(nil)
	}
	var device interface{} = cfg.Device
	if idx, err := strconv.Atoi(cfg.Device); err == nil {
		device = idx
	}
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open capture %q: %w", cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("unable to open capture %q", cfg.Device)
	}

	c := &Camera{
		cfg:      cfg,
		logf:     monitoring.Prefixed("camera " + cfg.Name),
		capture:  capture,
		detector: NewDetector(cfg.Params.Get()),
		frame:    gocv.NewMat(),
	}
	if cfg.Displays.Color {
		c.color = gocv.NewWindow(WindowName("Color", cfg.Name))
		if cfg.Calibrate {
			c.createTrackbars()
		}
	}
	if cfg.Displays.Backsub {
		c.backsub = gocv.NewWindow(WindowName("Backsub", cfg.Name))
	}
	if cfg.Displays.Denoise {
		c.denoise = gocv.NewWindow(WindowName("Denoise", cfg.Name))
	}
	c.logf("opened %s (%.0fx%.0f @ %.1f fps)", cfg.Device,
		capture.Get(gocv.VideoCaptureFrameWidth), capture.Get(gocv.VideoCaptureFrameHeight), c.FPS())
	return c, nil
}

// FPS is the framerate the device reports, 0 when unknown.
func (c *Camera) FPS() float64 {
	return c.capture.Get(gocv.VideoCaptureFPS)
}

func (c *Camera) createTrackbars() {
	width := int(c.capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(c.capture.Get(gocv.VideoCaptureFrameHeight))
	c.trackbars = CalibrationTrackbars(width, height)
	cur := c.cfg.Params.Get()
	for _, bar := range c.trackbars {
		tb := c.color.CreateTrackbar(bar.Name, bar.Max)
		tb.SetPos(bar.Get(cur))
		c.sliders = append(c.sliders, tb)
	}
	c.paramsVersion = c.cfg.Params.Version()
}

// Next grabs a frame and runs the detector on it. The end of a video
// file is reported as io.EOF.
func (c *Camera) Next(ctx context.Context) (stream.Input, error) {
	if err := ctx.Err(); err != nil {
		return stream.Input{}, err
	}
	if ok := c.capture.Read(&c.frame); !ok {
		return stream.Input{}, io.EOF
	}
	if c.frame.Empty() {
		return stream.Input{}, errors.New("blank frame grabbed")
	}

	tuning := c.cfg.Params.Get()
	all := c.detector.Detect(c.frame, tuning)

	c.detections = c.detections[:0]
	for _, d := range all {
		if d.Area > tuning.GetMinArea() {
			c.detections = append(c.detections, d)
		}
	}

	return stream.Input{
		Timestamp:  time.Now(),
		Width:      c.frame.Cols(),
		Height:     c.frame.Rows(),
		Detections: all,
	}, nil
}

// OnFrame annotates the frame read by the last Next call, refreshes the
// windows and records it.
func (c *Camera) OnFrame(ctx context.Context, out stream.Output) error {
	if c.frame.Empty() {
		return nil
	}
	c.draw(out)

	if c.color != nil {
		c.color.IMShow(c.frame)
	}
	if c.backsub != nil {
		c.backsub.IMShow(c.detector.Foreground())
	}
	if c.denoise != nil {
		c.denoise.IMShow(c.detector.Denoised())
	}
	for _, w := range []*gocv.Window{c.color, c.backsub, c.denoise} {
		if w != nil {
			w.WaitKey(1)
			break
		}
	}
	if c.sliders != nil {
		c.syncTrackbars()
	}
	return c.record(out.Snapshot.FPS)
}

func (c *Camera) draw(out stream.Output) {
	for _, d := range c.detections {
		gocv.Rectangle(&c.frame, BoxRect(d.Box), Green, 2)
		gocv.Circle(&c.frame, image.Pt(int(d.Centroid.X), int(d.Centroid.Y)), 5, Red, 2)
	}

	for _, ev := range out.Result.Crossings {
		gocv.Circle(&c.frame, ev.Anchor, 8, IndicatorColor(ev.Direction), -1)
	}

	for _, t := range out.Snapshot.Tracks {
		pts := TrajectoryPoints(t)
		if pts == nil {
			continue
		}
		pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
		gocv.Polylines(&c.frame, pv, false, t.Color, 2)
		pv.Close()
		gocv.PutText(&c.frame, PidLabel(t.ID), pts[len(pts)-1], gocv.FontHersheySimplex, 0.5, t.Color, 2)
	}

	rows, cols := c.frame.Rows(), c.frame.Cols()
	gocv.PutText(&c.frame, FPSLabel(out.Snapshot.FPS), image.Pt(0, 15), gocv.FontHersheySimplex, 0.5, Red, 2)
	gocv.Line(&c.frame, image.Pt(0, rows/2), image.Pt(cols, rows/2), Red, 2)
	in, outLabel := CountLabels(out.Snapshot.Counters)
	gocv.PutText(&c.frame, in, image.Pt(0, rows-30), gocv.FontHersheySimplex, 0.5, White, 2)
	gocv.PutText(&c.frame, outLabel, image.Pt(0, rows-10), gocv.FontHersheySimplex, 0.5, White, 2)
}

// syncTrackbars pushes slider moves into the live params, or moves the
// sliders when the params were changed elsewhere.
func (c *Camera) syncTrackbars() {
	if v := c.cfg.Params.Version(); v != c.paramsVersion {
		cur := c.cfg.Params.Get()
		for i, bar := range c.trackbars {
			c.sliders[i].SetPos(bar.Get(cur))
		}
		c.paramsVersion = v
		return
	}
	positions := make([]int, len(c.sliders))
	for i, tb := range c.sliders {
		positions[i] = tb.GetPos()
	}
	changed, err := ApplyTrackbars(c.cfg.Params, c.trackbars, positions)
	if err != nil {
		c.logf("calibration rejected: %v", err)
		return
	}
	if changed {
		c.paramsVersion = c.cfg.Params.Version()
	}
}

func (c *Camera) record(fps float64) error {
	if c.cfg.VideoDir == "" {
		return nil
	}
	if c.writer == nil {
		if fps <= 0 {
			fps = c.FPS()
		}
		if fps <= 0 {
			fps = DefaultRecordingFPS
		}
		path, err := VideoFileName(c.cfg.VideoDir, c.cfg.Name)
		if err != nil {
			c.cfg.VideoDir = ""
			return err
		}
		w, err := gocv.VideoWriterFile(path, "MJPG", fps, c.frame.Cols(), c.frame.Rows(), true)
		if err != nil {
			c.cfg.VideoDir = ""
			return fmt.Errorf("open video writer %s: %w", path, err)
		}
		c.writer = w
		c.logf("recording to %s", path)
	}
	if err := c.writer.Write(c.frame); err != nil {
		return fmt.Errorf("write video frame: %w", err)
	}
	return nil
}

// Close releases the device, windows and recording.
func (c *Camera) Close() error {
	var errs []error
	if c.writer != nil {
		errs = append(errs, c.writer.Close())
	}
	for _, w := range []*gocv.Window{c.color, c.backsub, c.denoise} {
		if w != nil {
			errs = append(errs, w.Close())
		}
	}
	errs = append(errs, c.detector.Close(), c.frame.Close(), c.capture.Close())
	return errors.Join(errs...)
}
