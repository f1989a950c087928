//go:build withcv

package vision

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/banshee-data/passenger.counter/internal/config"
	"github.com/banshee-data/passenger.counter/internal/counting"
)

// Detector turns colour frames into foreground blobs: MOG2 background
// subtraction, a binary threshold, erode, dilate and blur, then the
// external contours of what remains.
type Detector struct {
	mog2         gocv.BackgroundSubtractorMOG2
	history      int
	varThreshold float64
	shadows      bool

	foreground gocv.Mat
	denoised   gocv.Mat
}

// NewDetector builds a detector for the given tuning.
func NewDetector(t *config.TuningConfig) *Detector {
	d := &Detector{
		foreground: gocv.NewMat(),
		denoised:   gocv.NewMat(),
	}
	d.configure(t)
	return d
}

func mog2History(t *config.TuningConfig) int {
	if t.LearningRate != nil {
		return HistoryForLearningRate(t.GetLearningRate())
	}
	return t.GetMOG2History()
}

// configure rebuilds the subtractor when its construction parameters
// change. The background model restarts in that case.
func (d *Detector) configure(t *config.TuningConfig) {
	history, varThreshold, shadows := mog2History(t), t.GetMOG2VarThreshold(), t.GetMOG2DetectShadows()
	if d.history == history && d.varThreshold == varThreshold && d.shadows == shadows {
		return
	}
	if d.history != 0 {
		d.mog2.Close()
	}
	d.mog2 = gocv.NewBackgroundSubtractorMOG2WithParams(history, varThreshold, shadows)
	d.history, d.varThreshold, d.shadows = history, varThreshold, shadows
}

// Detect runs the pipeline on img and returns every external contour as
// a detection. Area filtering is left to the counting engine.
func (d *Detector) Detect(img gocv.Mat, t *config.TuningConfig) []counting.Detection {
	d.configure(t)

	d.mog2.Apply(img, &d.foreground)
	gocv.Threshold(d.foreground, &d.denoised, float32(t.GetWhiteThreshold()), 255, gocv.ThresholdBinary)

	erode := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(t.GetErodeAmount(), t.GetErodeAmount()))
	defer erode.Close()
	gocv.Erode(d.denoised, &d.denoised, erode)

	dilate := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(t.GetDilateAmount(), t.GetDilateAmount()))
	defer dilate.Close()
	gocv.Dilate(d.denoised, &d.denoised, dilate)

	gocv.Blur(d.denoised, &d.denoised, image.Pt(t.GetBlurKSize(), t.GetBlurKSize()))

	contours := gocv.FindContours(d.denoised, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer contours.Close()

	detections := make([]counting.Detection, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		detections = append(detections, DetectionFromBounds(gocv.BoundingRect(contour), gocv.ContourArea(contour)))
	}
	return detections
}

// Foreground is the raw MOG2 mask of the last frame.
func (d *Detector) Foreground() gocv.Mat {
	return d.foreground
}

// Denoised is the thresholded and filtered mask of the last frame.
func (d *Detector) Denoised() gocv.Mat {
	return d.denoised
}

// Close releases the OpenCV resources.
func (d *Detector) Close() error {
	if d.history != 0 {
		d.mog2.Close()
	}
	d.foreground.Close()
	d.denoised.Close()
	return nil
}
