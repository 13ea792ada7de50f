package capture

import (
	"fmt"
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// MockSource plays back in-memory frames for testing
type MockSource struct {
	frames  []*gocv.Mat
	count   int
	meta    Metadata
	corrupt map[int]bool
	index   int
	mu      sync.Mutex
	running bool
	openErr error
}

// NewMockSource plays back clones of frames at the given frame rate.
func NewMockSource(frames []*gocv.Mat, fps float64) *MockSource {
	meta := Metadata{FPS: fps, FrameCount: len(frames)}
	if len(frames) > 0 {
		meta.Width = frames[0].Cols()
		meta.Height = frames[0].Rows()
	}
	return &MockSource{frames: frames, count: len(frames), meta: meta, corrupt: make(map[int]bool)}
}

// NewBlankSource yields n empty frames. It pairs with a scripted detector
// that ignores pixel data.
func NewBlankSource(n int, fps float64) *MockSource {
	return &MockSource{
		count:   n,
		meta:    Metadata{FPS: fps, Width: 640, Height: 480, FrameCount: n},
		corrupt: make(map[int]bool),
	}
}

// SetCorrupt makes ReadFrame fail with ErrCorruptFrame at the given indices.
func (s *MockSource) SetCorrupt(indices ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range indices {
		s.corrupt[i] = true
	}
}

// SetOpenError makes Open fail with err.
func (s *MockSource) SetOpenError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

func (s *MockSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.running = true
	s.index = 0
	return nil
}

func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *MockSource) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

func (s *MockSource) ReadFrame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrSourceNotOpen
	}
	if s.index >= s.count {
		return nil, io.EOF
	}

	index := s.index
	s.index++
	if s.corrupt[index] {
		return nil, fmt.Errorf("frame %d: %w", index, ErrCorruptFrame)
	}

	// Clone the frame so the original isn't modified
	var mat gocv.Mat
	if s.frames != nil {
		mat = s.frames[index].Clone()
	} else {
		mat = gocv.NewMat()
	}
	return &Frame{Index: index, Timestamp: frameTime(index, s.meta.FPS), Mat: mat}, nil
}

func (s *MockSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
