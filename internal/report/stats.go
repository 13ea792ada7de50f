// Package report derives match statistics from finalized rallies and renders
// them as charts.
package report

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/shuttlescope/internal/analysis"
	"github.com/ayusman/shuttlescope/internal/match"
)

// Stats is the full statistics document of a session.
type Stats struct {
	Summary          MatchSummary                           `json:"summary"`
	RallyDurations   []RallyDuration                        `json:"rally_durations"`
	ShotDistribution ShotDistribution                       `json:"shot_distribution"`
	ShotsByPlayer    map[match.Player]map[string]int        `json:"shots_by_player"`
	Landings         map[match.Player][]match.Point         `json:"landing_positions"`
	WinLoss          WinLoss                                `json:"win_loss"`
	Errors           map[match.Player]ErrorStats            `json:"error_stats"`
	Comparison       map[match.Player]PlayerProfile         `json:"player_comparison"`
	RallyLengths     RallyLengthStats                       `json:"rally_length_stats"`
	Momentum         []MomentumPoint                        `json:"momentum"`
	Weaknesses       map[match.Player]analysis.PlayerSummary `json:"weaknesses"`
}

// MatchSummary holds headline numbers.
type MatchSummary struct {
	TotalRallies         int     `json:"total_rallies"`
	PlayerAWins          int     `json:"player_a_wins"`
	PlayerBWins          int     `json:"player_b_wins"`
	TotalShots           int     `json:"total_shots"`
	AverageShotsPerRally float64 `json:"average_shots_per_rally"`
	AverageRallyDuration float64 `json:"average_rally_duration"`
}

// RallyDuration is one bar of the rally duration chart.
type RallyDuration struct {
	RallyNumber int          `json:"rally_number"`
	Duration    float64      `json:"duration"`
	Winner      match.Player `json:"winner"`
	Shots       int          `json:"shots"`
}

// ShotDistribution counts shot types over the match.
type ShotDistribution struct {
	Counts      map[string]int     `json:"counts"`
	Percentages map[string]float64 `json:"percentages"`
	ByCategory  map[string]int     `json:"by_category"`
	Total       int                `json:"total"`
}

// WinLoss splits rally outcomes by end reason. For net and out endings the
// count goes to the player at fault; for winners to the player who hit it.
type WinLoss struct {
	PlayerAWins int                                      `json:"player_a_wins"`
	PlayerBWins int                                      `json:"player_b_wins"`
	ByReason    map[match.EndReason]map[match.Player]int `json:"by_reason"`
}

// ErrorStats buckets a player's mistakes.
type ErrorStats struct {
	Net      int `json:"net"`
	Out      int `json:"out"`
	Tactical int `json:"tactical"`
}

// PlayerProfile is the radar chart profile of a player, each axis in 0..100.
type PlayerProfile struct {
	Attack      int `json:"attack"`
	Defense     int `json:"defense"`
	NetPlay     int `json:"net_play"`
	Power       int `json:"power"`
	Consistency int `json:"consistency"`
}

// RallyLengthStats describes shots per rally.
type RallyLengthStats struct {
	ShotCounts []int   `json:"shot_counts"`
	Min        int     `json:"min"`
	Max        int     `json:"max"`
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	StdDev     float64 `json:"std_dev"`
}

// MomentumPoint is the running score after a rally. Diff is positive when
// player A leads.
type MomentumPoint struct {
	Rally  int `json:"rally"`
	ScoreA int `json:"score_a"`
	ScoreB int `json:"score_b"`
	Diff   int `json:"diff"`
}

var (
	attackProfile  = []string{analysis.Smash, analysis.WristSmash, analysis.Rush, analysis.Drop}
	defenseProfile = []string{analysis.Lob, analysis.DefensiveLob, analysis.DefensiveDrive}
	netProfile     = []string{analysis.NetShot, analysis.ReturnNet, analysis.CrossCourtNet, analysis.Push}
	powerProfile   = []string{analysis.Smash, analysis.Clear, analysis.Drive}
)

var players = []match.Player{match.PlayerA, match.PlayerB}

// Compute derives every statistic from the rallies of a session.
func Compute(rallies []match.Rally) Stats {
	s := Stats{
		RallyDurations: make([]RallyDuration, 0, len(rallies)),
		ShotDistribution: ShotDistribution{
			Counts:      make(map[string]int),
			Percentages: make(map[string]float64),
			ByCategory:  make(map[string]int),
		},
		ShotsByPlayer: make(map[match.Player]map[string]int),
		Landings:      make(map[match.Player][]match.Point),
		WinLoss:       WinLoss{ByReason: make(map[match.EndReason]map[match.Player]int)},
		Errors:        make(map[match.Player]ErrorStats),
		Comparison:    make(map[match.Player]PlayerProfile),
		Momentum:      make([]MomentumPoint, 0, len(rallies)),
		Weaknesses:    make(map[match.Player]analysis.PlayerSummary),
	}
	for _, p := range players {
		s.ShotsByPlayer[p] = make(map[string]int)
		s.Landings[p] = []match.Point{}
		s.Weaknesses[p] = analysis.SummarizePlayer(rallies, p)
	}
	for _, reason := range []match.EndReason{match.EndNet, match.EndOut, match.EndWinner} {
		s.WinLoss.ByReason[reason] = map[match.Player]int{match.PlayerA: 0, match.PlayerB: 0}
	}

	shotsOf := make(map[match.Player][]string)
	mistakesOf := make(map[match.Player]int)
	var scoreA, scoreB int
	durations := make([]float64, 0, len(rallies))

	for _, r := range rallies {
		s.RallyDurations = append(s.RallyDurations, RallyDuration{
			RallyNumber: r.Number,
			Duration:    r.Duration(),
			Winner:      r.Winner,
			Shots:       len(r.Shots),
		})
		durations = append(durations, r.Duration())

		for _, shot := range r.Shots {
			s.ShotDistribution.Counts[shot.Type]++
			s.ShotDistribution.ByCategory[shot.Category]++
			s.ShotDistribution.Total++
			s.ShotsByPlayer[shot.Player][shot.Type]++
			shotsOf[shot.Player] = append(shotsOf[shot.Player], shot.Type)
		}

		if r.Landing != nil && len(r.Shots) > 0 {
			hitter := r.Shots[len(r.Shots)-1].Player
			s.Landings[hitter] = append(s.Landings[hitter], *r.Landing)
		}

		switch r.Winner {
		case match.PlayerA:
			scoreA++
		case match.PlayerB:
			scoreB++
		}
		credited := r.Winner
		if r.EndReason != match.EndWinner {
			credited = r.Winner.Opponent()
		}
		if byReason, ok := s.WinLoss.ByReason[r.EndReason]; ok && r.Winner != "" {
			byReason[credited]++
		}
		s.Momentum = append(s.Momentum, MomentumPoint{Rally: r.Number, ScoreA: scoreA, ScoreB: scoreB, Diff: scoreA - scoreB})

		if m := r.Mistake; m != nil {
			e := s.Errors[m.Player]
			switch m.Type {
			case analysis.NetError:
				e.Net++
			case analysis.OutLong, analysis.OutWide:
				e.Out++
			default:
				e.Tactical++
			}
			s.Errors[m.Player] = e
			mistakesOf[m.Player]++
		}
	}
	s.WinLoss.PlayerAWins, s.WinLoss.PlayerBWins = scoreA, scoreB

	for _, t := range sortedKeys(s.ShotDistribution.Counts) {
		s.ShotDistribution.Percentages[t] = round1(float64(s.ShotDistribution.Counts[t]) / float64(s.ShotDistribution.Total) * 100)
	}

	for _, p := range players {
		if _, ok := s.Errors[p]; !ok {
			s.Errors[p] = ErrorStats{}
		}
		shots := shotsOf[p]
		s.Comparison[p] = PlayerProfile{
			Attack:      profileScore(shots, attackProfile),
			Defense:     profileScore(shots, defenseProfile),
			NetPlay:     profileScore(shots, netProfile),
			Power:       profileScore(shots, powerProfile),
			Consistency: max(0, 100-2*mistakesOf[p]),
		}
	}

	s.Summary = MatchSummary{
		TotalRallies: len(rallies),
		PlayerAWins:  scoreA,
		PlayerBWins:  scoreB,
		TotalShots:   s.ShotDistribution.Total,
	}
	if len(rallies) > 0 {
		s.Summary.AverageShotsPerRally = round1(float64(s.ShotDistribution.Total) / float64(len(rallies)))
		s.Summary.AverageRallyDuration = math.Round(stat.Mean(durations, nil)*100) / 100
	}
	s.RallyLengths = rallyLengths(rallies)
	return s
}

// profileScore maps the share of targeted shots onto 30..100; 50 without data.
func profileScore(shots []string, targets []string) int {
	if len(shots) == 0 {
		return 50
	}
	n := 0
	for _, s := range shots {
		for _, t := range targets {
			if s == t {
				n++
				break
			}
		}
	}
	return min(100, int(float64(n)/float64(len(shots))*300+30))
}

func rallyLengths(rallies []match.Rally) RallyLengthStats {
	out := RallyLengthStats{ShotCounts: make([]int, 0, len(rallies))}
	if len(rallies) == 0 {
		return out
	}

	counts := make([]float64, len(rallies))
	for i, r := range rallies {
		out.ShotCounts = append(out.ShotCounts, len(r.Shots))
		counts[i] = float64(len(r.Shots))
	}
	out.Min = int(floats.Min(counts))
	out.Max = int(floats.Max(counts))

	sorted := append([]float64(nil), counts...)
	sort.Float64s(sorted)
	out.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if len(counts) > 1 {
		out.Mean, out.StdDev = stat.MeanStdDev(counts, nil)
	} else {
		out.Mean = counts[0]
	}
	out.Mean = round1(out.Mean)
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
