package analysis

import (
	"fmt"
	"math"

	"github.com/ayusman/shuttlescope/internal/calibration"
	"github.com/ayusman/shuttlescope/internal/match"
)

// Mistake types.
const (
	NetError          = "net_error"
	OutLong           = "out_long"
	OutWide           = "out_wide"
	PoorShotSelection = "poor_shot_selection"
	WeakReturn        = "weak_return"
)

// MistakeInfo is the canned text attached to a mistake type.
type MistakeInfo struct {
	Category    match.MistakeCategory
	Description string
	Explanation string
	Suggestion  string
}

var mistakeCatalog = map[string]MistakeInfo{
	NetError: {
		Category:    match.CategoryUnforced,
		Description: "Shot hit the net",
		Explanation: "The trajectory was too low. This often happens when rushing the shot without proper preparation.",
		Suggestion:  "Adjust trajectory slightly higher to clear the net consistently.",
	},
	OutLong: {
		Category:    match.CategoryUnforced,
		Description: "Shot went out at the back",
		Explanation: "Excessive power was applied to the shot without adjusting the angle.",
		Suggestion:  "Reduce power or adjust angle to keep shots in court.",
	},
	OutWide: {
		Category:    match.CategoryUnforced,
		Description: "Shot went out on the sides",
		Explanation: "Lateral control needs adjustment - the shot drifted wide.",
		Suggestion:  "Focus on keeping the shuttle within the sidelines.",
	},
	PoorShotSelection: {
		Category:    match.CategoryTactical,
		Description: "Wrong shot choice for the situation",
		Explanation: "The chosen shot type wasn't ideal for the rally situation and court position.",
		Suggestion:  "Consider court position and opponent location before choosing a shot.",
	},
	WeakReturn: {
		Category:    match.CategoryTactical,
		Description: "Return was too weak",
		Explanation: "The shot sat up in mid-court allowing an easy attacking opportunity.",
		Suggestion:  "Even under pressure, aim for depth or tight net shots.",
	},
}

// MistakeTypes lists every mistake type the analyzer can produce.
func MistakeTypes() []string {
	return []string{NetError, OutLong, OutWide, PoorShotSelection, WeakReturn}
}

// MistakeCatalog returns the canned text for a mistake type.
func MistakeCatalog(mistakeType string) (MistakeInfo, bool) {
	info, ok := mistakeCatalog[mistakeType]
	return info, ok
}

// Landing is the terminal position of a rally's trajectory.
type Landing struct {
	Position match.Point
	Speed    float64
	// Hitter is the side the terminal shot was played from. When set, a
	// shuttle at rest near the net counts as a net error only if it did not
	// get past the net line.
	Hitter match.Player
}

// Outcome is the result of mistake attribution for one rally.
type Outcome struct {
	EndReason match.EndReason
	Winner    match.Player
	Mistake   *match.Mistake
}

// EndReasonOf decides Net, Out or Winner from the landing, plus the mistake
// type for Net and Out.
func EndReasonOf(court calibration.CourtConfig, speed calibration.SpeedConfig, l Landing) (match.EndReason, string) {
	p := l.Position
	if math.Abs(p.Y-court.NetLine) <= court.NetBand && l.Speed <= speed.NetStopSpeed && !pastNet(court, l.Hitter, p) {
		return match.EndNet, NetError
	}

	wide := math.Max(court.Left-p.X, p.X-court.Right)
	long := math.Max(court.Far-p.Y, p.Y-court.Near)
	switch {
	case wide > 0 && wide >= long:
		return match.EndOut, OutWide
	case long > 0:
		return match.EndOut, OutLong
	}
	return match.EndWinner, ""
}

// pastNet reports whether p lies strictly on the far side of the net for a
// shot played by hitter. Player A's half is y > net_line.
func pastNet(court calibration.CourtConfig, hitter match.Player, p match.Point) bool {
	switch hitter {
	case match.PlayerA:
		return p.Y < court.NetLine
	case match.PlayerB:
		return p.Y > court.NetLine
	}
	return false
}

// Attribute decides how the rally ended and who is to blame. server stands in
// for the terminal hitter when no shot was reconstructed; such rallies get no
// mistake record.
func Attribute(cfg calibration.Config, rallyNumber int, shots []match.Shot, server match.Player, l Landing) Outcome {
	hitter := server
	if len(shots) > 0 {
		hitter = shots[len(shots)-1].Player
	}
	if l.Hitter == "" {
		l.Hitter = hitter
	}
	reason, mistakeType := EndReasonOf(cfg.Court, cfg.Speed, l)

	out := Outcome{EndReason: reason}
	switch reason {
	case match.EndNet, match.EndOut:
		out.Winner = hitter.Opponent()
		if len(shots) == 0 {
			return out
		}
		category := mistakeCatalog[mistakeType].Category
		if len(shots) > 1 && IsAttack(shots[len(shots)-2].Type) {
			category = match.CategoryForced
		}
		out.Mistake = newMistake(cfg, rallyNumber, shots, hitter, mistakeType, category)

	default:
		out.Winner = hitter
		if len(shots) == 0 {
			return out
		}
		if mistakeType, loser, ok := tacticalPattern(cfg, shots); ok {
			out.Mistake = newMistake(cfg, rallyNumber, shots, loser, mistakeType, mistakeCatalog[mistakeType].Category)
		}
	}
	return out
}

// tacticalPattern looks for a known poor decision by the losing side in the
// shots leading up to a winner.
func tacticalPattern(cfg calibration.Config, shots []match.Shot) (string, match.Player, bool) {
	n := len(shots)
	terminal := shots[n-1]

	if n >= 3 {
		setup, attempt := shots[n-3], shots[n-2]
		pushedBack := (setup.Type == Push || setup.Type == Lob) && setup.EndZone.Outer() &&
			setup.SpeedEstimate < cfg.Speed.SmashSpeed
		if pushedBack && (attempt.Type == Smash || attempt.Type == WristSmash) && attempt.StartZone.Outer() {
			return PoorShotSelection, attempt.Player, true
		}
	}

	if n >= 2 {
		lift := shots[n-2]
		if high[lift.Type] && lift.EndZone == match.ZoneMid && IsAttack(terminal.Type) {
			return WeakReturn, lift.Player, true
		}
	}
	return "", "", false
}

func newMistake(cfg calibration.Config, rallyNumber int, shots []match.Shot, player match.Player, mistakeType string, category match.MistakeCategory) *match.Mistake {
	info := mistakeCatalog[mistakeType]
	terminal := shots[len(shots)-1]
	return &match.Mistake{
		ID:                    fmt.Sprintf("R%d_end", rallyNumber),
		RallyNumber:           rallyNumber,
		ShotNumber:            terminal.Number,
		Player:                player,
		Type:                  mistakeType,
		Category:              category,
		Severity:              SeverityOf(cfg.Severity, category, len(shots), terminal.Type),
		ShotType:              terminal.Type,
		Description:           info.Description,
		Explanation:           info.Explanation,
		ImprovementSuggestion: info.Suggestion,
	}
}

// SeverityOf grades a mistake from its category, the rally length and the
// terminal shot type.
func SeverityOf(cfg calibration.SeverityConfig, category match.MistakeCategory, rallyLength int, shotType string) match.Severity {
	switch {
	case category == match.CategoryUnforced && simple[shotType]:
		return match.SeverityMajor
	case rallyLength >= cfg.PressureRallyLength:
		return match.SeverityModerate
	}
	return match.SeverityMinor
}
