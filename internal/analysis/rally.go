package analysis

import (
	"github.com/ayusman/shuttlescope/internal/calibration"
	"github.com/ayusman/shuttlescope/internal/match"
	"github.com/ayusman/shuttlescope/internal/segment"
)

// Builder turns closed segments into finalized rallies.
type Builder struct {
	cfg calibration.Config
	fps float64
}

// NewBuilder creates a Builder. fps converts frame indices to seconds; a
// non-positive value falls back to 30.
func NewBuilder(cfg calibration.Config, fps float64) *Builder {
	if fps <= 0 {
		fps = 30
	}
	return &Builder{cfg: cfg, fps: fps}
}

func (b *Builder) seconds(frame int) float64 {
	return float64(frame) / b.fps
}

// Shots splits a segment at its hit points and classifies each flight. The
// serve runs from the rally start to the first hit. The flight after the last
// hit becomes a shot only when it carries sustained movement; otherwise that
// hit was the shuttle meeting the net or the floor.
func (b *Builder) Shots(seg *segment.Segment) []match.Shot {
	if len(seg.Hits) == 0 || len(seg.Points) == 0 {
		return nil
	}

	type boundary struct {
		frame int
		pos   match.Point
	}
	bounds := []boundary{{frame: seg.StartFrame, pos: seg.Points[0].Position}}
	for _, h := range seg.Hits {
		bounds = append(bounds, boundary{frame: h.FrameIndex, pos: h.Position})
	}

	seg2 := b.cfg.Segmentation
	last := bounds[len(bounds)-1]
	tail := between(seg.Points, last.frame, seg.EndFrame+1)
	if tail.moving(seg2.MovementThreshold) >= seg2.MinMovementFrames {
		end := last.pos
		if p, ok := lastMeasured(tail.points); ok {
			end = p.Position
		}
		bounds = append(bounds, boundary{frame: seg.EndFrame + 1, pos: end})
	}

	shots := make([]match.Shot, 0, len(bounds)-1)
	prev := ""
	for i := 0; i+1 < len(bounds); i++ {
		from, to := bounds[i], bounds[i+1]
		speed := between(seg.Points, from.frame, to.frame).peakSpeed()
		player := SideOf(b.cfg.Court, from.pos)

		ctx := ShotContext{
			First:     i == 0,
			StartZone: ZoneOf(b.cfg.Court, from.pos),
			EndZone:   ZoneOf(b.cfg.Court, to.pos),
			Speed:     speed,
			Prev:      prev,
		}
		shotType := Classify(b.cfg.Speed, ctx)
		info := Info(shotType)

		endFrame := to.frame
		if endFrame > seg.EndFrame {
			endFrame = seg.EndFrame
		}
		shots = append(shots, match.Shot{
			Number:        i + 1,
			HitFrame:      from.frame,
			EndFrame:      endFrame,
			Seconds:       b.seconds(from.frame),
			Player:        player,
			StartZone:     ctx.StartZone,
			EndZone:       ctx.EndZone,
			Type:          shotType,
			NameZH:        info.NameZH,
			Category:      info.Category,
			Description:   Describe(shotType, player),
			SpeedEstimate: speed,
			Position:      from.pos,
		})
		prev = shotType
	}
	return shots
}

// Build finalizes a rally from a closed segment. It reports false when the
// rally has hit points but fewer shots than the configured minimum.
func (b *Builder) Build(number int, seg *segment.Segment) (match.Rally, bool) {
	shots := b.Shots(seg)
	if len(seg.Hits) > 0 && len(shots) < b.cfg.Segmentation.MinShots {
		return match.Rally{}, false
	}

	rally := match.Rally{
		Number:       number,
		StartFrame:   seg.StartFrame,
		EndFrame:     seg.EndFrame,
		StartSeconds: b.seconds(seg.StartFrame),
		EndSeconds:   b.seconds(seg.EndFrame),
		Shots:        shots,
		HitPoints:    append([]match.HitPoint(nil), seg.Hits...),
		Termination:  seg.Termination,
	}

	if len(seg.Hits) == 0 {
		rally.DataQuality = append(rally.DataQuality, match.FlagNoHitPoints)
	}
	if seg.Termination == match.TerminationTrackLost {
		rally.DataQuality = append(rally.DataQuality, match.FlagTrackLost)
	}

	server := match.PlayerA
	if len(seg.Points) > 0 {
		server = SideOf(b.cfg.Court, seg.Points[0].Position)
	}

	landingPoint, ok := lastMeasured(seg.Points)
	if !ok {
		// Nothing measured to land on: credit the terminal hitter.
		rally.DataQuality = append(rally.DataQuality, match.FlagNoLanding)
		rally.EndReason = match.EndWinner
		rally.Winner = server
		if len(shots) > 0 {
			rally.Winner = shots[len(shots)-1].Player
		}
		return rally, true
	}

	landing := landingPoint.Position
	rally.Landing = &landing
	out := Attribute(b.cfg, number, shots, server, Landing{Position: landing, Speed: landingPoint.Speed()})
	rally.EndReason = out.EndReason
	rally.Winner = out.Winner
	if out.Mistake != nil {
		out.Mistake.Frame = seg.EndFrame
		out.Mistake.Seconds = b.seconds(seg.EndFrame)
		rally.Mistake = out.Mistake
	}
	return rally, true
}
