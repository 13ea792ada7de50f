// Package testdata draws synthetic match frames: a dark court with a small
// near-white shuttlecock.
package testdata

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/shuttlescope/internal/match"
)

// Frame geometry used by the synthetic sequences.
const (
	Width  = 320
	Height = 240
	Radius = 3
)

var (
	courtColor   = gocv.NewScalar(40, 90, 30, 0) // BGR dark green
	shuttleColor = color.RGBA{R: 250, G: 250, B: 250, A: 0}
)

// LoadFrame draws one frame. A nil position yields an empty court.
func LoadFrame(p *match.Point) *gocv.Mat {
	mat := gocv.NewMatWithSize(Height, Width, gocv.MatTypeCV8UC3)
	mat.SetTo(courtColor)
	if p != nil {
		center := image.Pt(int(p.X*Width), int(p.Y*Height))
		gocv.Circle(&mat, center, Radius, shuttleColor, -1)
	}
	return &mat
}

// LoadSequence draws one frame per position.
func LoadSequence(positions []*match.Point) []*gocv.Mat {
	frames := make([]*gocv.Mat, len(positions))
	for i, p := range positions {
		frames[i] = LoadFrame(p)
	}
	return frames
}

// CloseAll releases every frame of a sequence.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

// WriteVideo encodes frames into an MJPG AVI file at path.
func WriteVideo(path string, frames []*gocv.Mat, fps float64) error {
	writer, err := gocv.VideoWriterFile(path, "MJPG", fps, Width, Height, true)
	if err != nil {
		return fmt.Errorf("create video %s: %w", path, err)
	}
	defer writer.Close()

	for i, f := range frames {
		if err := writer.Write(*f); err != nil {
			return fmt.Errorf("write frame %d: %w", i, err)
		}
	}
	return nil
}

// Parabola returns n positions of a shuttle flying left to right along a
// high arc, preceded and followed by still frames.
func Parabola(n, still int) []*match.Point {
	var positions []*match.Point
	start := &match.Point{X: 0.2, Y: 0.7}
	for i := 0; i < still; i++ {
		positions = append(positions, start)
	}
	var last *match.Point
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		last = &match.Point{X: 0.2 + 0.6*t, Y: 0.7 - 1.6*t*(1-t)}
		positions = append(positions, last)
	}
	for i := 0; i < still; i++ {
		positions = append(positions, last)
	}
	return positions
}

// NetServe returns the positions of a serve from the near back court that
// rises into the net, drops back a little and rests at the tape.
func NetServe() []*match.Point {
	ys := []float64{0.8}
	for i := 1; i <= 15; i++ {
		ys = append(ys, 0.8-0.02*float64(i))
	}
	top := ys[len(ys)-1]
	for i := 1; i <= 2; i++ {
		ys = append(ys, top+0.015*float64(i))
	}
	rest := ys[len(ys)-1]
	for i := 0; i < 10; i++ {
		ys = append(ys, rest)
	}

	positions := make([]*match.Point, len(ys))
	for i, y := range ys {
		positions[i] = &match.Point{X: 0.5, Y: y}
	}
	return positions
}
