package detector

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/shuttlescope/internal/calibration"
	"github.com/ayusman/shuttlescope/internal/capture"
	"github.com/ayusman/shuttlescope/internal/match"
)

// Column layout of the OpenCV connected component stats matrix.
const (
	statLeft = iota
	statTop
	statWidth
	statHeight
	statArea
)

// ShuttleDetector implements Detector with OpenCV.
type ShuttleDetector struct {
	cfg        calibration.Config
	background *capture.BackgroundModel
	kernel     gocv.Mat
	hasKernel  bool
	mu         sync.Mutex
	closed     bool
}

// NewShuttleDetector creates a detector from a validated calibration.
func NewShuttleDetector(cfg calibration.Config) (*ShuttleDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &ShuttleDetector{
		cfg:        cfg,
		background: capture.NewBackgroundModel(cfg.Background),
	}
	if k := cfg.Background.MorphKernel; k > 1 {
		d.kernel = gocv.GetStructuringElement(gocv.MorphRect, image.Pt(k, k))
		d.hasKernel = true
	}
	return d, nil
}

// Foreground updates the background model with frame.
func (d *ShuttleDetector) Foreground(frame *gocv.Mat) (gocv.Mat, error) {
	return d.background.Apply(frame)
}

// Extract finds shuttlecock candidates in frame.
func (d *ShuttleDetector) Extract(frameIndex int, frame *gocv.Mat, foreground *gocv.Mat) ([]match.Detection, error) {
	if frame == nil || frame.Empty() || foreground == nil || foreground.Empty() {
		return nil, fmt.Errorf("frame %d: %w", frameIndex, capture.ErrEmptyFrame)
	}

	colorMask := d.colorMask(frame)
	defer colorMask.Close()

	combined := d.combine(*foreground, colorMask)
	defer combined.Close()

	if d.hasKernel {
		gocv.MorphologyEx(combined, &combined, gocv.MorphOpen, d.kernel)
	}

	both := gocv.NewMat()
	defer both.Close()
	gocv.BitwiseAnd(*foreground, colorMask, &both)

	comps := d.components(combined, both)
	return Detections(d.cfg.Detection, frameIndex, frame.Cols(), frame.Rows(), comps), nil
}

// colorMask keeps pixels inside the configured HSV bounds.
func (d *ShuttleDetector) colorMask(frame *gocv.Mat) gocv.Mat {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(*frame, &hsv, gocv.ColorBGRToHSV)

	lo, hi := d.cfg.Color.Lower, d.cfg.Color.Upper
	mask := gocv.NewMat()
	gocv.InRangeWithScalar(hsv, gocv.NewScalar(lo.H, lo.S, lo.V, 0), gocv.NewScalar(hi.H, hi.S, hi.V, 0), &mask)
	return mask
}

func (d *ShuttleDetector) combine(foreground, color gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	det := d.cfg.Detection
	if det.CombineMode != calibration.CombineWeightedOr {
		gocv.BitwiseAnd(foreground, color, &out)
		return out
	}

	sum := det.ForegroundWeight + det.ColorWeight
	weighted := gocv.NewMat()
	defer weighted.Close()
	gocv.AddWeighted(foreground, det.ForegroundWeight/sum, color, det.ColorWeight/sum, 0, &weighted)
	// Binary threshold keeps values strictly above the cutoff.
	gocv.Threshold(weighted, &out, float32(det.CombineThreshold*255-1), 255, gocv.ThresholdBinary)
	return out
}

// components labels the combined mask and measures each blob whose area is
// in band. Label 0 is the background.
func (d *ShuttleDetector) components(combined, both gocv.Mat) []Component {
	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(combined, &labels, &stats, &centroids)

	var comps []Component
	for i := 1; i < n; i++ {
		c := Component{
			Left:      int(stats.GetIntAt(i, statLeft)),
			Top:       int(stats.GetIntAt(i, statTop)),
			Width:     int(stats.GetIntAt(i, statWidth)),
			Height:    int(stats.GetIntAt(i, statHeight)),
			Area:      int(stats.GetIntAt(i, statArea)),
			CentroidX: centroids.GetDoubleAt(i, 0),
			CentroidY: centroids.GetDoubleAt(i, 1),
		}
		if !InBand(d.cfg.Detection, c.Area) {
			continue
		}
		for y := c.Top; y < c.Top+c.Height; y++ {
			for x := c.Left; x < c.Left+c.Width; x++ {
				if int(labels.GetIntAt(y, x)) == i && both.GetUCharAt(y, x) > 0 {
					c.Agreeing++
				}
			}
		}
		comps = append(comps, c)
	}
	return comps
}

// Close releases the background model and the morphology kernel.
// It must not be called while Extract is running.
func (d *ShuttleDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.background.Close()
	if d.hasKernel {
		return d.kernel.Close()
	}
	return nil
}
