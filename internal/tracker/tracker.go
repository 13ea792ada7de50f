// Package tracker turns per-frame shuttlecock candidates into a continuous
// trajectory with exactly one point per frame.
package tracker

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/shuttlescope/internal/calibration"
	"github.com/ayusman/shuttlescope/internal/match"
)

// ErrFrameOrder is returned when frames are not fed in strictly increasing order.
var ErrFrameOrder = errors.New("frame index out of order")

// State is the tracker memory carried from one frame to the next.
type State struct {
	Started   bool
	Anchored  bool
	LastFrame int
	Last      match.TrajectoryPoint
	// Misses counts consecutive frames without a detection.
	Misses int
}

// Lost reports whether the trajectory is currently lost.
func (s State) Lost() bool { return !s.Anchored || s.Last.Lost }

// Predicted returns the constant-velocity extrapolation of the last point.
func (s State) Predicted() match.Point {
	return s.Last.Position.Add(s.Last.Velocity)
}

// Step consumes the detections of one frame and returns the new state and the
// trajectory point for that frame. It does not modify st.
func Step(cfg calibration.TrackerConfig, st State, frameIndex int, detections []match.Detection) (State, match.TrajectoryPoint, error) {
	if st.Started && frameIndex <= st.LastFrame {
		return st, match.TrajectoryPoint{}, fmt.Errorf("%w: got %d after %d", ErrFrameOrder, frameIndex, st.LastFrame)
	}

	next := st
	next.Started = true
	next.LastFrame = frameIndex

	var pt match.TrajectoryPoint
	pt.FrameIndex = frameIndex

	if len(detections) > 0 {
		chosen := selectCandidate(st, detections)
		pt.Position = chosen.Position
		if !st.Lost() {
			pt.Velocity = chosen.Position.Sub(st.Last.Position)
		}
		next.Anchored = true
		next.Misses = 0
	} else {
		next.Misses = st.Misses + 1
		pt.Interpolated = true
		switch {
		case st.Lost():
			// Nothing to extrapolate from.
			pt.Position = st.Last.Position
			pt.Lost = true
		case next.Misses >= cfg.LostAfter:
			pt.Position = st.Last.Position
			pt.Lost = true
		default:
			pt.Position = st.Predicted()
			pt.Velocity = st.Last.Velocity
		}
	}

	next.Last = pt
	return next, pt, nil
}

// selectCandidate picks one detection. With a live track the candidate
// closest to the predicted position wins; otherwise the most confident one.
func selectCandidate(st State, detections []match.Detection) match.Detection {
	if len(detections) == 1 {
		return detections[0]
	}

	best := 0
	if st.Lost() {
		for i, d := range detections {
			if d.Confidence > detections[best].Confidence {
				best = i
			}
		}
		return detections[best]
	}

	predicted := st.Predicted()
	bestDist := math.Inf(1)
	for i, d := range detections {
		if dist := d.Position.Distance(predicted); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return detections[best]
}

// Tracker wraps Step with its own state for sequential callers.
type Tracker struct {
	cfg   calibration.TrackerConfig
	state State
}

// New creates a Tracker.
func New(cfg calibration.TrackerConfig) *Tracker {
	return &Tracker{cfg: cfg}
}

// Update feeds one frame and returns its trajectory point.
func (t *Tracker) Update(frameIndex int, detections []match.Detection) (match.TrajectoryPoint, error) {
	next, pt, err := Step(t.cfg, t.state, frameIndex, detections)
	if err != nil {
		return pt, err
	}
	t.state = next
	return pt, nil
}

// State returns the current tracker state.
func (t *Tracker) State() State {
	return t.state
}

// Reset forgets the trajectory.
func (t *Tracker) Reset() {
	t.state = State{}
}
