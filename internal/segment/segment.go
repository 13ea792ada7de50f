// Package segment implements the rally state machine. It consumes one
// trajectory point per frame, opens a rally on sustained movement, emits hit
// points on direction reversals and closes the rally on stillness or
// trajectory loss.
package segment

import (
	"math"

	"github.com/ayusman/shuttlescope/internal/calibration"
	"github.com/ayusman/shuttlescope/internal/match"
)

// Phase is the state machine position.
type Phase int

const (
	// Idle waits for a serve.
	Idle Phase = iota
	// InRally tracks an active exchange.
	InRally
)

func (p Phase) String() string {
	if p == InRally {
		return "in_rally"
	}
	return "idle"
}

// Segment is the raw trajectory of a closed rally.
type Segment struct {
	StartFrame  int
	EndFrame    int
	Points      []match.TrajectoryPoint
	Hits        []match.HitPoint
	Termination match.Termination
}

// Frames returns the number of frames the segment spans.
func (s *Segment) Frames() int { return s.EndFrame - s.StartFrame + 1 }

// State is the state machine memory. Step consumes it: the slices of a state
// passed to Step may be reused by the returned state, so callers keep only the
// returned value.
type State struct {
	Phase Phase

	// run holds the current movement run while idle.
	run []match.TrajectoryPoint

	startFrame   int
	points       []match.TrajectoryPoint
	hits         []match.HitPoint
	lastHitFrame int
	hasHit       bool
	signs        [2]int
	lostRun      int
	window       []float64
}

// Output is what a single Step produced.
type Output struct {
	// Started is set on the frame a rally opened; StartFrame is then valid.
	Started    bool
	StartFrame int
	Hits       []match.HitPoint
	Closed     *Segment
}

// Step advances the state machine by one trajectory point.
func Step(cfg calibration.SegmentationConfig, st State, pt match.TrajectoryPoint) (State, Output) {
	var out Output

	if st.Phase == Idle {
		if !pt.Lost && pt.Speed() > cfg.MovementThreshold {
			st.run = append(st.run, pt)
		} else {
			st.run = st.run[:0]
		}
		if len(st.run) < cfg.MinMovementFrames {
			return st, out
		}

		run := append([]match.TrajectoryPoint(nil), st.run...)
		st = State{Phase: InRally, startFrame: run[0].FrameIndex}
		out.Started = true
		out.StartFrame = st.startFrame
		for _, p := range run {
			if hit, ok := st.observe(cfg, p); ok {
				out.Hits = append(out.Hits, hit)
			}
		}
		// No end check on the opening frame, so a rally always ends after it starts.
		return st, out
	}

	if hit, ok := st.observe(cfg, pt); ok {
		out.Hits = append(out.Hits, hit)
	}

	if st.lostRun > cfg.LostTrackLimit {
		return st.close(match.TerminationTrackLost, &out)
	}
	// A lost track ends through the lost-track limit only; its frozen
	// points are not stillness.
	if st.lostRun == 0 && len(st.window) >= cfg.StillnessWindow && sum(st.window) < cfg.StillnessThreshold {
		return st.close(match.TerminationStillness, &out)
	}
	return st, out
}

// Flush closes an open rally at the end of the stream. It returns nil when no
// rally was open or the open rally has not advanced past its first frame.
func Flush(st State) (State, *Segment) {
	if st.Phase != InRally || len(st.points) == 0 {
		return State{}, nil
	}
	var out Output
	next, _ := st.close(match.TerminationStreamEnd, &out)
	if out.Closed.EndFrame <= out.Closed.StartFrame {
		return next, nil
	}
	return next, out.Closed
}

// observe appends pt to the open rally and reports a hit point when the
// dominant velocity axis reverses sign.
func (st *State) observe(cfg calibration.SegmentationConfig, pt match.TrajectoryPoint) (match.HitPoint, bool) {
	st.points = append(st.points, pt)

	if pt.Lost {
		st.lostRun++
	} else {
		st.lostRun = 0
	}

	if !pt.Lost {
		st.window = append(st.window, pt.Speed())
		if len(st.window) > cfg.StillnessWindow {
			st.window = st.window[len(st.window)-cfg.StillnessWindow:]
		}
	}

	v := [2]float64{pt.Velocity.X, pt.Velocity.Y}
	axis := 0
	if math.Abs(v[1]) > math.Abs(v[0]) {
		axis = 1
	}

	var hit match.HitPoint
	found := false
	s := sign(v[axis], cfg.HitDeadband)
	if s != 0 && st.signs[axis] != 0 && s != st.signs[axis] &&
		(!st.hasHit || pt.FrameIndex-st.lastHitFrame >= cfg.MinHitGap) {
		hit = match.HitPoint{FrameIndex: pt.FrameIndex, Position: pt.Position}
		st.hits = append(st.hits, hit)
		st.hasHit = true
		st.lastHitFrame = pt.FrameIndex
		found = true
	}

	for i := range v {
		if s := sign(v[i], cfg.HitDeadband); s != 0 {
			st.signs[i] = s
		}
	}
	return hit, found
}

func (st State) close(term match.Termination, out *Output) (State, Output) {
	seg := &Segment{
		StartFrame:  st.startFrame,
		EndFrame:    st.points[len(st.points)-1].FrameIndex,
		Points:      st.points,
		Hits:        st.hits,
		Termination: term,
	}
	out.Closed = seg
	return State{}, *out
}

// Discard reports whether a closed segment is too short to be a rally.
func Discard(cfg calibration.SegmentationConfig, seg *Segment) bool {
	return seg.Frames() < cfg.MinRallyFrames
}

func sign(v, deadband float64) int {
	switch {
	case v > deadband:
		return 1
	case v < -deadband:
		return -1
	}
	return 0
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// Machine wraps Step for sequential callers.
type Machine struct {
	cfg   calibration.SegmentationConfig
	state State
}

// NewMachine creates an idle state machine.
func NewMachine(cfg calibration.SegmentationConfig) *Machine {
	return &Machine{cfg: cfg}
}

// Push feeds one trajectory point.
func (m *Machine) Push(pt match.TrajectoryPoint) Output {
	var out Output
	m.state, out = Step(m.cfg, m.state, pt)
	return out
}

// Flush closes any open rally at end of stream.
func (m *Machine) Flush() *Segment {
	var seg *Segment
	m.state, seg = Flush(m.state)
	return seg
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.state.Phase
}
