// Package match defines the records produced by rally reconstruction:
// trajectory samples, hit points, rallies with their shots and the mistake
// that ended each rally.
package match

import "math"

// Point is a position or velocity in normalized image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Norm returns the Euclidean length of p.
func (p Point) Norm() float64 { return math.Hypot(p.X, p.Y) }

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 { return p.Sub(q).Norm() }

// Detection is one shuttlecock candidate found in a frame.
type Detection struct {
	FrameIndex int     `json:"frame_index"`
	Position   Point   `json:"position"`
	Confidence float64 `json:"confidence"`
	Area       float64 `json:"area"`
}

// TrajectoryPoint is the tracker's single output for a frame.
type TrajectoryPoint struct {
	FrameIndex   int   `json:"frame_index"`
	Position     Point `json:"position"`
	Velocity     Point `json:"velocity"`
	Interpolated bool  `json:"interpolated"`
	Lost         bool  `json:"lost"`
}

// Speed returns the velocity magnitude.
func (p TrajectoryPoint) Speed() float64 { return p.Velocity.Norm() }

// HitPoint is a reversal of shuttle travel, taken as a contact event.
type HitPoint struct {
	FrameIndex int   `json:"frame_index"`
	Position   Point `json:"position"`
}

// Player identifies a side of the court. A is the near side (bottom of the
// frame), B the far side.
type Player string

const (
	PlayerA Player = "A"
	PlayerB Player = "B"
)

// Opponent returns the other player.
func (p Player) Opponent() Player {
	if p == PlayerA {
		return PlayerB
	}
	return PlayerA
}

// Zone is the coarse court depth band of a position.
type Zone string

const (
	ZoneFront Zone = "front"
	ZoneMid   Zone = "mid"
	ZoneBack  Zone = "back"
)

// Outer reports whether z is the front or back band.
func (z Zone) Outer() bool { return z == ZoneFront || z == ZoneBack }

// EndReason is how a rally finished.
type EndReason string

const (
	EndNet    EndReason = "net"
	EndOut    EndReason = "out"
	EndWinner EndReason = "winner"
)

// Termination is the segmentation condition that closed a rally.
type Termination string

const (
	TerminationStillness Termination = "stillness"
	TerminationTrackLost Termination = "track_lost"
	TerminationStreamEnd Termination = "stream_end"
)

// Data-quality flags attached to rallies.
const (
	FlagNoHitPoints   = "no_hit_points"
	FlagTrackLost     = "track_lost"
	FlagCorruptFrames = "corrupt_frames"
	FlagNoLanding     = "no_landing"
)

// MistakeCategory classifies who caused a mistake.
type MistakeCategory string

const (
	CategoryUnforced MistakeCategory = "unforced"
	CategoryForced   MistakeCategory = "forced"
	CategoryTactical MistakeCategory = "tactical"
)

// Severity grades a mistake.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
)

// Shot is one flight of the shuttle between two contacts.
type Shot struct {
	Number        int     `json:"shot_number"`
	HitFrame      int     `json:"hit_frame"`
	EndFrame      int     `json:"end_frame"`
	Seconds       float64 `json:"seconds"`
	Player        Player  `json:"player"`
	StartZone     Zone    `json:"start_zone"`
	EndZone       Zone    `json:"end_zone"`
	Type          string  `json:"shot_type"`
	NameZH        string  `json:"shot_type_zh"`
	Category      string  `json:"category"`
	Description   string  `json:"description"`
	SpeedEstimate float64 `json:"speed_estimate"`
	Position      Point   `json:"position"`
}

// Mistake is the error that ended a rally. ShotNumber refers to a shot of
// the same rally.
type Mistake struct {
	ID                    string          `json:"mistake_id"`
	RallyNumber           int             `json:"rally_number"`
	ShotNumber            int             `json:"shot_number"`
	Frame                 int             `json:"frame"`
	Seconds               float64         `json:"seconds"`
	Player                Player          `json:"player"`
	Type                  string          `json:"mistake_type"`
	Category              MistakeCategory `json:"category"`
	Severity              Severity        `json:"severity"`
	ShotType              string          `json:"shot_type"`
	Description           string          `json:"description"`
	Explanation           string          `json:"explanation"`
	ImprovementSuggestion string          `json:"improvement_suggestion"`
}

// Rally is a finalized exchange from serve to point conclusion.
type Rally struct {
	Number       int         `json:"rally_number"`
	StartFrame   int         `json:"start_frame"`
	EndFrame     int         `json:"end_frame"`
	StartSeconds float64     `json:"start_seconds"`
	EndSeconds   float64     `json:"end_seconds"`
	Shots        []Shot      `json:"shots"`
	HitPoints    []HitPoint  `json:"hit_points"`
	EndReason    EndReason   `json:"end_reason"`
	Winner       Player      `json:"winner"`
	Termination  Termination `json:"termination"`
	Landing      *Point      `json:"landing,omitempty"`
	DataQuality  []string    `json:"data_quality,omitempty"`
	Mistake      *Mistake    `json:"mistake,omitempty"`
}

// Duration returns the rally length in seconds.
func (r Rally) Duration() float64 { return r.EndSeconds - r.StartSeconds }

// HasFlag reports whether the rally carries the given data-quality flag.
func (r Rally) HasFlag(flag string) bool {
	for _, f := range r.DataQuality {
		if f == flag {
			return true
		}
	}
	return false
}
