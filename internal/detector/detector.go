// Package detector finds shuttlecock candidates in video frames by combining
// a background-subtraction mask with a near-white color mask.
package detector

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/shuttlescope/internal/match"
)

// Detector defines the interface for shuttlecock detection implementations.
type Detector interface {
	// Foreground feeds frame to the background model and returns its
	// foreground mask. It is stateful and must see frames in stream order.
	// The caller is responsible for closing the returned Mat.
	Foreground(frame *gocv.Mat) (gocv.Mat, error)

	// Extract returns every candidate found in frame given its foreground
	// mask. It is safe for concurrent use. An empty slice is a normal result.
	Extract(frameIndex int, frame *gocv.Mat, foreground *gocv.Mat) ([]match.Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Detect runs both stages on one frame for sequential callers.
func Detect(d Detector, frameIndex int, frame *gocv.Mat) ([]match.Detection, error) {
	fg, err := d.Foreground(frame)
	if err != nil {
		fg.Close()
		return nil, err
	}
	defer fg.Close()

	return d.Extract(frameIndex, frame, &fg)
}
