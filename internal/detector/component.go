package detector

import (
	"math"

	"github.com/ayusman/shuttlescope/internal/calibration"
	"github.com/ayusman/shuttlescope/internal/match"
)

// Component is one connected blob of the combined mask, in pixels.
type Component struct {
	Left, Top     int
	Width, Height int
	Area          int
	CentroidX     float64
	CentroidY     float64
	// Agreeing counts component pixels present in both source masks.
	Agreeing int
}

// Compactness is the bounding box fill ratio times its aspect ratio. A round
// shuttle scores close to pi/4; streaks and slivers score low.
func (c Component) Compactness() float64 {
	if c.Width <= 0 || c.Height <= 0 {
		return 0
	}
	fill := float64(c.Area) / float64(c.Width*c.Height)
	aspect := float64(min(c.Width, c.Height)) / float64(max(c.Width, c.Height))
	return fill * aspect
}

// Agreement is the fraction of component pixels both masks agree on.
func (c Component) Agreement() float64 {
	if c.Area <= 0 {
		return 0
	}
	return float64(c.Agreeing) / float64(c.Area)
}

// Confidence blends compactness and mask agreement into [0,1].
func (c Component) Confidence() float64 {
	v := 0.5*c.Compactness() + 0.5*c.Agreement()
	return math.Max(0, math.Min(1, v))
}

// InBand reports whether the component area passes the configured filter.
func InBand(cfg calibration.DetectionConfig, area int) bool {
	a := float64(area)
	return a >= cfg.MinArea && a <= cfg.MaxArea
}

// Detections turns surviving components into detections with positions
// normalized by the frame size.
func Detections(cfg calibration.DetectionConfig, frameIndex, width, height int, comps []Component) []match.Detection {
	dets := make([]match.Detection, 0, len(comps))
	if width <= 0 || height <= 0 {
		return dets
	}
	for _, c := range comps {
		if !InBand(cfg, c.Area) {
			continue
		}
		dets = append(dets, match.Detection{
			FrameIndex: frameIndex,
			Position:   match.Point{X: c.CentroidX / float64(width), Y: c.CentroidY / float64(height)},
			Confidence: c.Confidence(),
			Area:       float64(c.Area),
		})
	}
	return dets
}
