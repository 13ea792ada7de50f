package match

import (
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a session's rallies.
type Summary struct {
	TotalRallies       int     `json:"total_rallies"`
	TotalMistakes      int     `json:"total_mistakes"`
	DiscardedRallies   int     `json:"discarded_rallies"`
	PlayerAWins        int     `json:"player_a_wins"`
	PlayerBWins        int     `json:"player_b_wins"`
	TotalShots         int     `json:"total_shots"`
	MeanShotsPerRally  float64 `json:"mean_shots_per_rally"`
	StdDevShots        float64 `json:"stddev_shots_per_rally"`
	FramesProcessed    int     `json:"frames_processed"`
	InterpolatedFrames int     `json:"interpolated_frames"`
	FPS                float64 `json:"fps"`
}

// Result is the output of one analysis session.
type Result struct {
	Rallies []Rally `json:"rallies"`
	Summary Summary `json:"summary"`
}

// Counters are the pipeline totals folded into a Summary.
type Counters struct {
	Discarded    int
	Frames       int
	Interpolated int
	FPS          float64
}

// Summarize builds the session summary for the given rallies.
func Summarize(rallies []Rally, c Counters) Summary {
	s := Summary{
		TotalRallies:       len(rallies),
		DiscardedRallies:   c.Discarded,
		FramesProcessed:    c.Frames,
		InterpolatedFrames: c.Interpolated,
		FPS:                c.FPS,
	}

	shots := make([]float64, 0, len(rallies))
	for _, r := range rallies {
		if r.Mistake != nil {
			s.TotalMistakes++
		}
		switch r.Winner {
		case PlayerA:
			s.PlayerAWins++
		case PlayerB:
			s.PlayerBWins++
		}
		s.TotalShots += len(r.Shots)
		shots = append(shots, float64(len(r.Shots)))
	}

	if len(shots) > 0 {
		s.MeanShotsPerRally, s.StdDevShots = stat.MeanStdDev(shots, nil)
	}
	if len(shots) < 2 {
		s.StdDevShots = 0
	}
	return s
}
