// Package calibration holds the per-session tuning of the rally reconstruction
// pipeline: detector masks, tracker and segmentation thresholds, court lines
// and speed cutoffs. Positions and speeds are expressed in normalized image
// coordinates (0..1 on both axes, y growing downwards) per frame.
package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Combine modes for the foreground and color masks.
const (
	CombineAnd        = "and"
	CombineWeightedOr = "weighted_or"
)

// maxFileSize bounds calibration files read from disk.
const maxFileSize = 1 * 1024 * 1024

// Config is the root calibration document.
type Config struct {
	Background   BackgroundConfig   `json:"background"`
	Color        ColorConfig        `json:"color"`
	Detection    DetectionConfig    `json:"detection"`
	Tracker      TrackerConfig      `json:"tracker"`
	Segmentation SegmentationConfig `json:"segmentation"`
	Court        CourtConfig        `json:"court"`
	Speed        SpeedConfig        `json:"speed"`
	Severity     SeverityConfig     `json:"severity"`
}

// BackgroundConfig configures the per-pixel background model.
type BackgroundConfig struct {
	History       int     `json:"history"`
	VarThreshold  float64 `json:"var_threshold"`
	DetectShadows bool    `json:"detect_shadows"`
	// MorphKernel is the size of the opening kernel applied to the combined
	// mask. Zero disables the opening.
	MorphKernel int `json:"morph_kernel"`
}

// HSV is a color bound in OpenCV HSV units (H 0..180, S and V 0..255).
type HSV struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

// ColorConfig bounds the near-white shuttlecock color.
type ColorConfig struct {
	Lower HSV `json:"lower"`
	Upper HSV `json:"upper"`
}

// DetectionConfig controls mask combination and the component area band.
type DetectionConfig struct {
	MinArea          float64 `json:"min_area"`
	MaxArea          float64 `json:"max_area"`
	CombineMode      string  `json:"combine_mode"`
	ForegroundWeight float64 `json:"foreground_weight"`
	ColorWeight      float64 `json:"color_weight"`
	CombineThreshold float64 `json:"combine_threshold"`
}

// TrackerConfig controls trajectory loss.
type TrackerConfig struct {
	// LostAfter is the number of consecutive frames without a detection after
	// which the trajectory is considered lost.
	LostAfter int `json:"lost_after"`
}

// SegmentationConfig drives the rally state machine.
type SegmentationConfig struct {
	MovementThreshold  float64 `json:"movement_threshold"`
	MinMovementFrames  int     `json:"min_movement_frames"`
	StillnessWindow    int     `json:"stillness_window"`
	StillnessThreshold float64 `json:"stillness_threshold"`
	HitDeadband        float64 `json:"hit_deadband"`
	MinHitGap          int     `json:"min_hit_gap"`
	LostTrackLimit     int     `json:"lost_track_limit"`
	MinShots           int     `json:"min_shots"`
	MinRallyFrames     int     `json:"min_rally_frames"`
}

// CourtConfig places the court lines in normalized image coordinates.
// Far is the baseline at the top of the frame, Near the one at the bottom.
type CourtConfig struct {
	FrontLine float64 `json:"front_line"`
	BackLine  float64 `json:"back_line"`
	NetLine   float64 `json:"net_line"`
	NetBand   float64 `json:"net_band"`
	Left      float64 `json:"left"`
	Right     float64 `json:"right"`
	Far       float64 `json:"far"`
	Near      float64 `json:"near"`
}

// SpeedConfig holds the shot speed cutoffs.
type SpeedConfig struct {
	SoftSpeed    float64 `json:"soft_speed"`
	SmashSpeed   float64 `json:"smash_speed"`
	NetStopSpeed float64 `json:"net_stop_speed"`
}

// SeverityConfig feeds the mistake severity lookup.
type SeverityConfig struct {
	PressureRallyLength int `json:"pressure_rally_length"`
}

// Default returns the calibration used when none is supplied.
func Default() Config {
	return Config{
		Background: BackgroundConfig{
			History:      500,
			VarThreshold: 16,
			MorphKernel:  3,
		},
		Color: ColorConfig{
			Lower: HSV{H: 0, S: 0, V: 180},
			Upper: HSV{H: 180, S: 60, V: 255},
		},
		Detection: DetectionConfig{
			MinArea:          4,
			MaxArea:          400,
			CombineMode:      CombineAnd,
			ForegroundWeight: 0.5,
			ColorWeight:      0.5,
			CombineThreshold: 0.75,
		},
		Tracker: TrackerConfig{
			LostAfter: 5,
		},
		Segmentation: SegmentationConfig{
			MovementThreshold:  0.004,
			MinMovementFrames:  3,
			StillnessWindow:    5,
			StillnessThreshold: 0.01,
			HitDeadband:        0.001,
			MinHitGap:          8,
			LostTrackLimit:     0,
			MinShots:           1,
			MinRallyFrames:     10,
		},
		Court: CourtConfig{
			FrontLine: 0.35,
			BackLine:  0.65,
			NetLine:   0.5,
			NetBand:   0.04,
			Left:      0.1,
			Right:     0.9,
			Far:       0.05,
			Near:      0.95,
		},
		Speed: SpeedConfig{
			SoftSpeed:    0.02,
			SmashSpeed:   0.05,
			NetStopSpeed: 0.01,
		},
		Severity: SeverityConfig{
			PressureRallyLength: 8,
		},
	}
}

// Load reads a calibration file. Fields omitted from the file keep their
// default values, so partial files are safe. The result is validated.
func Load(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("calibration file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to stat calibration file: %w", err)
	}
	if info.Size() > maxFileSize {
		return Config{}, fmt.Errorf("calibration file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read calibration file: %w", err)
	}

	cfg, err := Default().Merge(data)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Merge overlays a JSON document onto a copy of c and validates the result.
// An empty document returns c unchanged.
func (c Config) Merge(data json.RawMessage) (Config, error) {
	merged := c
	if len(data) > 0 {
		if err := json.Unmarshal(data, &merged); err != nil {
			return Config{}, fmt.Errorf("failed to parse calibration: %w", err)
		}
	}
	if err := merged.Validate(); err != nil {
		return Config{}, err
	}
	return merged, nil
}

// Validate reports every invalid value in the calibration.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	b := c.Background
	check(b.History > 0, "background.history must be positive, got %d", b.History)
	check(b.VarThreshold > 0, "background.var_threshold must be positive, got %g", b.VarThreshold)
	check(b.MorphKernel == 0 || (b.MorphKernel > 0 && b.MorphKernel%2 == 1),
		"background.morph_kernel must be 0 or a positive odd number, got %d", b.MorphKernel)

	col := c.Color
	check(col.Lower.H >= 0 && col.Upper.H <= 180 && col.Lower.H <= col.Upper.H,
		"color hue bounds must satisfy 0 <= lower <= upper <= 180")
	check(col.Lower.S >= 0 && col.Upper.S <= 255 && col.Lower.S <= col.Upper.S,
		"color saturation bounds must satisfy 0 <= lower <= upper <= 255")
	check(col.Lower.V >= 0 && col.Upper.V <= 255 && col.Lower.V <= col.Upper.V,
		"color value bounds must satisfy 0 <= lower <= upper <= 255")

	d := c.Detection
	check(d.MinArea > 0, "detection.min_area must be positive, got %g", d.MinArea)
	check(d.MaxArea > d.MinArea, "detection.max_area (%g) must exceed min_area (%g)", d.MaxArea, d.MinArea)
	switch d.CombineMode {
	case CombineAnd:
	case CombineWeightedOr:
		check(d.ForegroundWeight >= 0 && d.ColorWeight >= 0 && d.ForegroundWeight+d.ColorWeight > 0,
			"detection weights must be non-negative with a positive sum")
		check(d.CombineThreshold > 0 && d.CombineThreshold <= 1,
			"detection.combine_threshold must be in (0, 1], got %g", d.CombineThreshold)
	default:
		errs = append(errs, fmt.Errorf("detection.combine_mode must be %q or %q, got %q",
			CombineAnd, CombineWeightedOr, d.CombineMode))
	}

	check(c.Tracker.LostAfter >= 1, "tracker.lost_after must be at least 1, got %d", c.Tracker.LostAfter)

	s := c.Segmentation
	check(s.MovementThreshold > 0, "segmentation.movement_threshold must be positive, got %g", s.MovementThreshold)
	check(s.MinMovementFrames >= 1, "segmentation.min_movement_frames must be at least 1, got %d", s.MinMovementFrames)
	check(s.StillnessWindow >= 1, "segmentation.stillness_window must be at least 1, got %d", s.StillnessWindow)
	check(s.StillnessThreshold > 0, "segmentation.stillness_threshold must be positive, got %g", s.StillnessThreshold)
	check(s.HitDeadband >= 0, "segmentation.hit_deadband must not be negative, got %g", s.HitDeadband)
	check(s.MinHitGap >= 1, "segmentation.min_hit_gap must be at least 1, got %d", s.MinHitGap)
	check(s.LostTrackLimit >= 0, "segmentation.lost_track_limit must not be negative, got %d", s.LostTrackLimit)
	check(s.MinShots >= 0, "segmentation.min_shots must not be negative, got %d", s.MinShots)
	check(s.MinRallyFrames >= 0, "segmentation.min_rally_frames must not be negative, got %d", s.MinRallyFrames)

	ct := c.Court
	check(ct.FrontLine < ct.BackLine, "court.front_line (%g) must be below back_line (%g)", ct.FrontLine, ct.BackLine)
	check(ct.Far < ct.NetLine && ct.NetLine < ct.Near,
		"court lines must satisfy far < net_line < near, got %g, %g, %g", ct.Far, ct.NetLine, ct.Near)
	check(ct.Left < ct.Right, "court.left (%g) must be below right (%g)", ct.Left, ct.Right)
	check(ct.NetBand > 0, "court.net_band must be positive, got %g", ct.NetBand)

	sp := c.Speed
	check(sp.SoftSpeed > 0 && sp.SoftSpeed < sp.SmashSpeed,
		"speed cutoffs must satisfy 0 < soft_speed < smash_speed, got %g, %g", sp.SoftSpeed, sp.SmashSpeed)
	check(sp.NetStopSpeed >= 0, "speed.net_stop_speed must not be negative, got %g", sp.NetStopSpeed)

	check(c.Severity.PressureRallyLength >= 1,
		"severity.pressure_rally_length must be at least 1, got %d", c.Severity.PressureRallyLength)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid calibration: %w", errors.Join(errs...))
}
