// Package analysis turns closed rally segments into typed shots and the
// mistake that ended each rally.
package analysis

import (
	"fmt"

	"github.com/ayusman/shuttlescope/internal/calibration"
	"github.com/ayusman/shuttlescope/internal/match"
)

// Shot types, following the ShuttleSet taxonomy.
const (
	ShortService   = "short_service"
	LongService    = "long_service"
	NetShot        = "net_shot"
	ReturnNet      = "return_net"
	CrossCourtNet  = "cross_court_net"
	Smash          = "smash"
	WristSmash     = "wrist_smash"
	Rush           = "rush"
	Push           = "push"
	Drop           = "drop"
	PassiveDrop    = "passive_drop"
	Clear          = "clear"
	Lob            = "lob"
	DefensiveLob   = "defensive_lob"
	DefensiveDrive = "defensive_drive"
	Drive          = "drive"
	DrivenFlight   = "driven_flight"
	BackCourtDrive = "back_court_drive"
	Unclassified   = "unclassified"
)

// ShotInfo describes a shot type.
type ShotInfo struct {
	NameZH   string
	Category string
	// Description is a format string taking the player label.
	Description string
}

var shotCatalog = map[string]ShotInfo{
	ShortService:   {"發短球", "service", "%s starts with a short service."},
	LongService:    {"發長球", "service", "%s performs a long service to the back court."},
	NetShot:        {"放小球", "net", "%s plays a delicate net shot."},
	ReturnNet:      {"擋小球", "net", "%s returns at the net."},
	CrossCourtNet:  {"勾球", "net", "%s plays a cross-court net shot."},
	Smash:          {"殺球", "attack", "%s executes a powerful smash!"},
	WristSmash:     {"點扣", "attack", "%s performs a quick wrist smash."},
	Rush:           {"撲球", "attack", "%s rushes forward at the net."},
	Push:           {"推球", "attack", "%s pushes to mid-court."},
	Drop:           {"切球", "attack", "%s plays a drop shot."},
	PassiveDrop:    {"過渡切球", "transition", "%s plays a passive drop."},
	Clear:          {"長球", "clear", "%s clears to the back court."},
	Lob:            {"挑球", "defense", "%s lifts to the back court."},
	DefensiveLob:   {"防守回挑", "defense", "%s desperately lifts the shuttle."},
	DefensiveDrive: {"防守回抽", "defense", "%s drives defensively."},
	Drive:          {"平球", "drive", "%s drives it flat."},
	DrivenFlight:   {"小平球", "drive", "%s hits a short drive."},
	BackCourtDrive: {"後場抽平球", "drive", "%s drives from the back."},
	Unclassified:   {"未分類", "unclassified", "%s plays a shot."},
}

// ShotTypes returns every shot type in table order, ending with Unclassified.
func ShotTypes() []string {
	types := make([]string, 0, len(rules)+1)
	seen := make(map[string]bool)
	for _, r := range rules {
		if !seen[r.shotType] {
			seen[r.shotType] = true
			types = append(types, r.shotType)
		}
	}
	return append(types, Unclassified)
}

// Info returns the catalog entry for a shot type.
func Info(shotType string) ShotInfo {
	if info, ok := shotCatalog[shotType]; ok {
		return info
	}
	return shotCatalog[Unclassified]
}

// Describe renders the one-line description of a shot by a player.
func Describe(shotType string, p match.Player) string {
	return fmt.Sprintf(Info(shotType).Description, "Player "+string(p))
}

var (
	netPlay = set(ShortService, NetShot, ReturnNet, CrossCourtNet)
	attacks = set(Smash, WristSmash, Rush)
	high    = set(LongService, Clear, Lob, DefensiveLob)
	simple  = set(ShortService, LongService, NetShot, Clear, Lob, Push)
)

func set(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

// IsAttack reports whether the shot type is an attacking shot.
func IsAttack(shotType string) bool { return attacks[shotType] }

// ShotContext is everything the classifier looks at.
type ShotContext struct {
	First     bool
	StartZone match.Zone
	EndZone   match.Zone
	Speed     float64
	// Prev is the type of the preceding shot, empty for the serve.
	Prev string
}

type speedBand int

const (
	slow speedBand = iota
	medium
	fast
)

type features struct {
	ShotContext
	band speedBand
}

func (f features) cross() bool {
	return f.StartZone.Outer() && f.EndZone.Outer() && f.StartZone != f.EndZone
}

type rule struct {
	shotType string
	match    func(f features) bool
}

// rules is evaluated top to bottom; the first match wins.
var rules = []rule{
	{ShortService, func(f features) bool { return f.First && f.EndZone == match.ZoneMid }},
	{LongService, func(f features) bool { return f.First }},
	{ReturnNet, func(f features) bool {
		return f.band == slow && f.EndZone == match.ZoneMid && attacks[f.Prev]
	}},
	{CrossCourtNet, func(f features) bool {
		return f.band == slow && f.StartZone == match.ZoneMid && f.EndZone == match.ZoneMid && netPlay[f.Prev]
	}},
	{NetShot, func(f features) bool {
		return f.band == slow && f.StartZone == match.ZoneMid && f.EndZone == match.ZoneMid
	}},
	{Rush, func(f features) bool {
		return f.band == fast && f.StartZone == match.ZoneMid && netPlay[f.Prev]
	}},
	{Smash, func(f features) bool {
		return f.band == fast && (f.cross() || (f.StartZone == match.ZoneMid && f.EndZone.Outer()))
	}},
	{WristSmash, func(f features) bool { return f.band == fast && f.EndZone == match.ZoneMid }},
	{DefensiveDrive, func(f features) bool {
		return f.band == medium && attacks[f.Prev] && f.EndZone == match.ZoneMid
	}},
	{DefensiveLob, func(f features) bool {
		return f.band != fast && f.EndZone.Outer() && attacks[f.Prev]
	}},
	{Drop, func(f features) bool {
		return f.band == slow && f.StartZone.Outer() && f.EndZone == match.ZoneMid && high[f.Prev]
	}},
	{PassiveDrop, func(f features) bool {
		return f.band == slow && f.StartZone.Outer() && f.EndZone == match.ZoneMid
	}},
	{Lob, func(f features) bool {
		return f.band == slow && f.StartZone == match.ZoneMid && f.EndZone.Outer()
	}},
	{Push, func(f features) bool {
		return f.band == medium && f.StartZone == match.ZoneMid && f.EndZone.Outer()
	}},
	{Clear, func(f features) bool { return f.band != fast && f.cross() }},
	{BackCourtDrive, func(f features) bool {
		return f.band == medium && f.StartZone.Outer() && f.EndZone == match.ZoneMid
	}},
	{Drive, func(f features) bool {
		return f.band == medium && f.StartZone == match.ZoneMid && f.EndZone == match.ZoneMid
	}},
	{DrivenFlight, func(f features) bool {
		return f.band == fast && f.EndZone.Outer() && !f.cross()
	}},
}

// Classify returns the shot type for a context. Unmatched shots are
// Unclassified, never an error.
func Classify(cfg calibration.SpeedConfig, c ShotContext) string {
	f := features{ShotContext: c, band: bandOf(cfg, c.Speed)}
	for _, r := range rules {
		if r.match(f) {
			return r.shotType
		}
	}
	return Unclassified
}

func bandOf(cfg calibration.SpeedConfig, speed float64) speedBand {
	switch {
	case speed >= cfg.SmashSpeed:
		return fast
	case speed < cfg.SoftSpeed:
		return slow
	}
	return medium
}
