package analysis

import (
	"sort"

	"github.com/ayusman/shuttlescope/internal/calibration"
	"github.com/ayusman/shuttlescope/internal/match"
)

// ZoneOf buckets a position by its vertical coordinate.
func ZoneOf(court calibration.CourtConfig, p match.Point) match.Zone {
	switch {
	case p.Y < court.FrontLine:
		return match.ZoneFront
	case p.Y > court.BackLine:
		return match.ZoneBack
	}
	return match.ZoneMid
}

// SideOf returns the player whose half contains p.
func SideOf(court calibration.CourtConfig, p match.Point) match.Player {
	if p.Y > court.NetLine {
		return match.PlayerA
	}
	return match.PlayerB
}

// span is a frame range of a segment's trajectory.
type span struct {
	points []match.TrajectoryPoint
}

// between returns the points with from <= frame < to. Points must be sorted.
func between(points []match.TrajectoryPoint, from, to int) span {
	lo := sort.Search(len(points), func(i int) bool { return points[i].FrameIndex >= from })
	hi := sort.Search(len(points), func(i int) bool { return points[i].FrameIndex >= to })
	return span{points: points[lo:hi]}
}

// peakSpeed is the largest measured speed in the span. When every point was
// interpolated it falls back to displacement over frame count.
func (s span) peakSpeed() float64 {
	peak := 0.0
	measured := false
	for _, p := range s.points {
		if p.Interpolated {
			continue
		}
		measured = true
		if v := p.Speed(); v > peak {
			peak = v
		}
	}
	if measured || len(s.points) < 2 {
		return peak
	}
	first, last := s.points[0], s.points[len(s.points)-1]
	return last.Position.Distance(first.Position) / float64(last.FrameIndex-first.FrameIndex)
}

// moving counts non-lost points faster than threshold.
func (s span) moving(threshold float64) int {
	n := 0
	for _, p := range s.points {
		if !p.Lost && p.Speed() > threshold {
			n++
		}
	}
	return n
}

// lastMeasured returns the last non-interpolated point.
func lastMeasured(points []match.TrajectoryPoint) (match.TrajectoryPoint, bool) {
	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].Interpolated {
			return points[i], true
		}
	}
	return match.TrajectoryPoint{}, false
}
