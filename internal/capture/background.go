package capture

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/shuttlescope/internal/calibration"
)

// shadowCutoff drops the gray shadow label MOG2 writes into the mask.
const shadowCutoff = 200

// ErrEmptyFrame is returned when an empty frame is fed to the background model.
var ErrEmptyFrame = errors.New("empty frame")

// BackgroundModel keeps a running per-pixel mean and variance of the scene
// and separates moving pixels from it (OpenCV MOG2). It must see frames in
// stream order.
type BackgroundModel struct {
	cfg    calibration.BackgroundConfig
	mog    gocv.BackgroundSubtractorMOG2
	open   bool
	frames int
	mu     sync.Mutex
}

// NewBackgroundModel creates a background model from calibration.
func NewBackgroundModel(cfg calibration.BackgroundConfig) *BackgroundModel {
	m := &BackgroundModel{cfg: cfg}
	m.init()
	return m
}

func (m *BackgroundModel) init() {
	m.mog = gocv.NewBackgroundSubtractorMOG2WithParams(m.cfg.History, m.cfg.VarThreshold, m.cfg.DetectShadows)
	m.open = true
	m.frames = 0
}

// Apply updates the model with frame and returns its binary foreground mask.
// The caller is responsible for closing the returned Mat.
func (m *BackgroundModel) Apply(frame *gocv.Mat) (gocv.Mat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return gocv.NewMat(), ErrEmptyFrame
	}
	if !m.open {
		m.init()
	}

	mask := gocv.NewMat()
	m.mog.Apply(*frame, &mask)
	if m.cfg.DetectShadows {
		gocv.Threshold(mask, &mask, shadowCutoff, 255, gocv.ThresholdBinary)
	}
	m.frames++

	return mask, nil
}

// Frames returns the number of frames the model has learned from.
func (m *BackgroundModel) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.frames
}

// Reset discards the learned background.
func (m *BackgroundModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		m.mog.Close()
	}
	m.init()
}

// Close releases resources used by the background model.
func (m *BackgroundModel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		m.mog.Close()
		m.open = false
	}
	m.frames = 0
}
