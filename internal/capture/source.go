// Package capture provides video frame sources and the per-pixel background
// model using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// DefaultFPS is assumed when the container does not report a frame rate.
const DefaultFPS = 30

// ErrSourceNotOpen is returned when trying to read from a source that is not open.
var ErrSourceNotOpen = errors.New("video source is not open")

// ErrCorruptFrame is returned for a frame that could not be decoded. The
// frame index is consumed, so the caller can treat it as a missing frame.
var ErrCorruptFrame = errors.New("corrupt frame")

// Metadata describes an opened video.
type Metadata struct {
	FPS    float64 `json:"fps"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	// FrameCount is zero when the container does not report it.
	FrameCount int `json:"frame_count"`
}

// Frame is a decoded frame with its position in the stream.
type Frame struct {
	Index     int
	Timestamp time.Duration
	Mat       gocv.Mat
}

// Close releases the frame's pixel buffer.
func (f *Frame) Close() error {
	return f.Mat.Close()
}

// Source defines the interface for frame sources. ReadFrame returns io.EOF at
// the end of the stream and ErrCorruptFrame for undecodable frames.
type Source interface {
	Open() error
	Close() error
	Metadata() Metadata
	ReadFrame() (*Frame, error)
	IsOpen() bool
}

// VideoFile decodes frames from a video file on disk.
type VideoFile struct {
	path    string
	capture *gocv.VideoCapture
	meta    Metadata
	index   int
	mu      sync.Mutex
	running bool
}

// NewVideoFile creates a source for the video at path. Nothing is read until
// Open is called.
func NewVideoFile(path string) *VideoFile {
	return &VideoFile{path: path}
}

// Open opens the file and reads its metadata.
func (v *VideoFile) Open() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.running {
		return nil
	}

	capture, err := gocv.VideoCaptureFile(v.path)
	if err != nil {
		return fmt.Errorf("open video %s: %w", v.path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open video %s: unsupported or unreadable file", v.path)
	}

	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = DefaultFPS
	}
	v.meta = Metadata{
		FPS:        fps,
		Width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
		FrameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
	}
	v.capture = capture
	v.index = 0
	v.running = true

	return nil
}

// Close closes the file and releases resources.
func (v *VideoFile) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running || v.capture == nil {
		v.running = false
		return nil
	}

	err := v.capture.Close()
	v.capture = nil
	v.running = false

	return err
}

// Metadata returns the metadata read at Open.
func (v *VideoFile) Metadata() Metadata {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.meta
}

// ReadFrame decodes the next frame.
// The caller is responsible for closing the returned Frame.
func (v *VideoFile) ReadFrame() (*Frame, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running || v.capture == nil {
		return nil, ErrSourceNotOpen
	}

	index := v.index
	mat := gocv.NewMat()
	ok := v.capture.Read(&mat)
	if !ok || mat.Empty() {
		mat.Close()
		// A failed read before the advertised end is a damaged frame.
		if v.meta.FrameCount > 0 && index < v.meta.FrameCount-1 {
			v.index++
			return nil, fmt.Errorf("frame %d: %w", index, ErrCorruptFrame)
		}
		return nil, io.EOF
	}

	v.index++
	return &Frame{
		Index:     index,
		Timestamp: frameTime(index, v.meta.FPS),
		Mat:       mat,
	}, nil
}

// IsOpen returns true if the file is currently open.
func (v *VideoFile) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.running
}

func frameTime(index int, fps float64) time.Duration {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return time.Duration(float64(index) / fps * float64(time.Second))
}
