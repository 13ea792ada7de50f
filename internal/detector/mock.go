package detector

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/shuttlescope/internal/match"
)

// MockDetector is a test implementation of the Detector interface.
// It returns scripted detections per frame index and ignores pixel data.
type MockDetector struct {
	mu       sync.Mutex
	script   map[int][]match.Detection
	err      error
	errFrame int
	calls    int
	closed   bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{script: make(map[int][]match.Detection), errFrame: -1}
}

// SetDetections sets the detections returned for a frame.
func (m *MockDetector) SetDetections(frameIndex int, dets ...match.Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range dets {
		dets[i].FrameIndex = frameIndex
	}
	m.script[frameIndex] = dets
}

// SetTrajectory scripts one full-confidence detection per position, starting
// at frame 0. Nil positions leave the frame empty.
func (m *MockDetector) SetTrajectory(positions []*match.Point) {
	for i, p := range positions {
		if p != nil {
			m.SetDetections(i, match.Detection{Position: *p, Confidence: 1, Area: 12})
		}
	}
}

// SetError makes Extract fail with err at the given frame.
func (m *MockDetector) SetError(frameIndex int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errFrame = frameIndex
	m.err = err
}

// Foreground returns an empty mask.
func (m *MockDetector) Foreground(frame *gocv.Mat) (gocv.Mat, error) {
	return gocv.NewMat(), nil
}

// Extract returns the scripted detections or error.
func (m *MockDetector) Extract(frameIndex int, frame *gocv.Mat, foreground *gocv.Mat) ([]match.Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil && frameIndex == m.errFrame {
		return nil, m.err
	}
	return append([]match.Detection(nil), m.script[frameIndex]...), nil
}

// Calls returns how many times Extract ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the mock closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
