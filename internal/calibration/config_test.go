package calibration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}

	if cfg.Tracker.LostAfter != 5 {
		t.Errorf("Tracker.LostAfter = %d, want 5", cfg.Tracker.LostAfter)
	}
	if cfg.Segmentation.StillnessWindow != 5 {
		t.Errorf("Segmentation.StillnessWindow = %d, want 5", cfg.Segmentation.StillnessWindow)
	}
	if cfg.Court.FrontLine != 0.35 || cfg.Court.BackLine != 0.65 {
		t.Errorf("court zone lines = %g/%g, want 0.35/0.65", cfg.Court.FrontLine, cfg.Court.BackLine)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "court.json")
	doc := `{
  "court": {"net_line": 0.48},
  "speed": {"smash_speed": 0.07},
  "tracker": {"lost_after": 8}
}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Court.NetLine != 0.48 {
		t.Errorf("Court.NetLine = %g, want 0.48", cfg.Court.NetLine)
	}
	if cfg.Speed.SmashSpeed != 0.07 {
		t.Errorf("Speed.SmashSpeed = %g, want 0.07", cfg.Speed.SmashSpeed)
	}
	if cfg.Tracker.LostAfter != 8 {
		t.Errorf("Tracker.LostAfter = %d, want 8", cfg.Tracker.LostAfter)
	}

	def := Default()
	if cfg.Court.FrontLine != def.Court.FrontLine {
		t.Errorf("Court.FrontLine = %g, want default %g", cfg.Court.FrontLine, def.Court.FrontLine)
	}
	if cfg.Speed.SoftSpeed != def.Speed.SoftSpeed {
		t.Errorf("Speed.SoftSpeed = %g, want default %g", cfg.Speed.SoftSpeed, def.Speed.SoftSpeed)
	}
	if cfg.Detection.CombineMode != CombineAnd {
		t.Errorf("Detection.CombineMode = %q, want %q", cfg.Detection.CombineMode, CombineAnd)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "court.yaml")
	if err := os.WriteFile(yamlPath, []byte("court: {}"), 0644); err != nil {
		t.Fatal(err)
	}
	badJSON := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(badJSON, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	invalid := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(invalid, []byte(`{"speed": {"soft_speed": 0.1, "smash_speed": 0.05}}`), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", yamlPath, ".json extension"},
		{"missing file", filepath.Join(dir, "missing.json"), "failed to stat"},
		{"malformed json", badJSON, "failed to parse"},
		{"invalid values", invalid, "soft_speed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.Background.History = 0
	cfg.Detection.MaxArea = 1
	cfg.Detection.CombineMode = "xor"
	cfg.Tracker.LostAfter = 0
	cfg.Segmentation.StillnessThreshold = 0
	cfg.Court.FrontLine = 0.8

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}

	for _, field := range []string{
		"background.history",
		"detection.max_area",
		"detection.combine_mode",
		"tracker.lost_after",
		"segmentation.stillness_threshold",
		"court.front_line",
	} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("Validate() error missing %q: %v", field, err)
		}
	}
}

func TestMerge(t *testing.T) {
	base := Default()

	t.Run("empty override returns base", func(t *testing.T) {
		got, err := base.Merge(nil)
		if err != nil {
			t.Fatalf("Merge(nil) error = %v", err)
		}
		if got != base {
			t.Errorf("Merge(nil) = %+v, want %+v", got, base)
		}
	})

	t.Run("override does not mutate base", func(t *testing.T) {
		got, err := base.Merge(json.RawMessage(`{"segmentation": {"min_hit_gap": 3}}`))
		if err != nil {
			t.Fatalf("Merge() error = %v", err)
		}
		if got.Segmentation.MinHitGap != 3 {
			t.Errorf("MinHitGap = %d, want 3", got.Segmentation.MinHitGap)
		}
		if base.Segmentation.MinHitGap != Default().Segmentation.MinHitGap {
			t.Errorf("base was mutated: MinHitGap = %d", base.Segmentation.MinHitGap)
		}
	})

	t.Run("weighted or needs a positive weight", func(t *testing.T) {
		_, err := base.Merge(json.RawMessage(
			`{"detection": {"combine_mode": "weighted_or", "foreground_weight": 0, "color_weight": 0}}`))
		if err == nil {
			t.Fatal("Merge() expected error for zero weights")
		}
	})
}
