package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ayusman/shuttlescope/internal/match"
)

// maxWeaknesses caps the weaknesses listed per player.
const maxWeaknesses = 3

// Weakness is a recurring mistake type of one player.
type Weakness struct {
	Type        string         `json:"type"`
	Count       int            `json:"count"`
	Description string         `json:"description"`
	Severity    match.Severity `json:"severity"`
}

// PlayerSummary condenses a player's mistakes into a coaching summary.
type PlayerSummary struct {
	Player            match.Player   `json:"player"`
	TotalMistakes     int            `json:"total_mistakes"`
	MistakeBreakdown  map[string]int `json:"mistake_breakdown"`
	CategoryBreakdown map[string]int `json:"category_breakdown"`
	Weaknesses        []Weakness     `json:"weaknesses"`
	Improvements      []string       `json:"improvements"`
	Summary           string         `json:"summary"`
}

// SummarizePlayer builds the weakness summary of player over a set of rallies.
func SummarizePlayer(rallies []match.Rally, player match.Player) PlayerSummary {
	out := PlayerSummary{
		Player:            player,
		MistakeBreakdown:  make(map[string]int),
		CategoryBreakdown: make(map[string]int),
		Weaknesses:        []Weakness{},
		Improvements:      []string{},
	}
	for _, r := range rallies {
		if r.Mistake == nil || r.Mistake.Player != player {
			continue
		}
		out.TotalMistakes++
		out.MistakeBreakdown[r.Mistake.Type]++
		out.CategoryBreakdown[string(r.Mistake.Category)]++
	}

	label := "Player " + string(player)
	if out.TotalMistakes == 0 {
		out.Summary = label + " showed solid performance with no significant errors."
		return out
	}

	types := make([]string, 0, len(out.MistakeBreakdown))
	for t := range out.MistakeBreakdown {
		types = append(types, t)
	}
	// Most frequent first; ties broken by name so output is stable.
	sort.Slice(types, func(i, j int) bool {
		ci, cj := out.MistakeBreakdown[types[i]], out.MistakeBreakdown[types[j]]
		if ci != cj {
			return ci > cj
		}
		return types[i] < types[j]
	})
	if len(types) > maxWeaknesses {
		types = types[:maxWeaknesses]
	}

	for _, t := range types {
		count := out.MistakeBreakdown[t]
		info := mistakeCatalog[t]
		out.Weaknesses = append(out.Weaknesses, Weakness{
			Type:        t,
			Count:       count,
			Description: info.Description,
			Severity:    weaknessSeverity(count),
		})
		if info.Suggestion != "" {
			out.Improvements = append(out.Improvements, info.Suggestion)
		}
	}

	cats := make([]string, 0, len(out.CategoryBreakdown))
	for c, n := range out.CategoryBreakdown {
		cats = append(cats, fmt.Sprintf("%s (%d)", c, n))
	}
	sort.Strings(cats)
	out.Summary = fmt.Sprintf("%s should focus on improving %s. Total mistakes: %d. Main categories: %s.",
		label, strings.ReplaceAll(types[0], "_", " "), out.TotalMistakes, strings.Join(cats, ", "))
	return out
}

func weaknessSeverity(count int) match.Severity {
	switch {
	case count > 3:
		return match.SeverityMajor
	case count > 1:
		return match.SeverityModerate
	}
	return match.SeverityMinor
}
