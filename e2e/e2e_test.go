package e2e

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/shuttlescope/internal/app"
	"github.com/ayusman/shuttlescope/internal/calibration"
	"github.com/ayusman/shuttlescope/internal/capture"
	"github.com/ayusman/shuttlescope/internal/detector"
	"github.com/ayusman/shuttlescope/internal/metrics"
	"github.com/ayusman/shuttlescope/internal/monitoring"
	"github.com/ayusman/shuttlescope/internal/progress"
	"github.com/ayusman/shuttlescope/internal/server"
	"github.com/ayusman/shuttlescope/internal/store"
	"github.com/ayusman/shuttlescope/testdata"
)

func init() {
	monitoring.SetLogger(nil)
}

// writeClip encodes a synthetic high clear into an AVI file.
func writeClip(t *testing.T, dir string) (string, int) {
	t.Helper()

	frames := testdata.LoadSequence(testdata.Parabola(40, 15))
	defer testdata.CloseAll(frames)

	path := filepath.Join(dir, "clear.avi")
	if err := testdata.WriteVideo(path, frames, 30); err != nil {
		t.Skipf("skipping test - video encoding not available: %v", err)
	}
	return path, len(frames)
}

func TestE2E_VideoSessionOverHTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	video, frames := writeClip(t, tmpDir)

	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	application := app.New(app.Config{
		Store:       s,
		Calibration: calibration.Default(),
		PluginDir:   filepath.Join(tmpDir, "plugins"),
		PlotDir:     filepath.Join(tmpDir, "plots"),
	})
	defer application.Close()

	srv := server.New(server.Config{App: application})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	var id string
	t.Run("StartSession", func(t *testing.T) {
		body := `{"video": "` + filepath.ToSlash(video) + `", "calibration": {"tracker": {"lost_after": 8}}}`
		resp, err := client.Post(ts.URL+"/api/sessions", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("start session error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
		}

		var created struct {
			ID string `json:"id"`
		}
		json.NewDecoder(resp.Body).Decode(&created)
		id = created.ID
	})
	if id == "" {
		t.Fatal("no session started")
	}

	t.Run("StreamProgress", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + id + "/progress"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial error = %v", err)
		}
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		var last progress.Event
		for {
			var e progress.Event
			if err := conn.ReadJSON(&e); err != nil {
				break
			}
			last = e
		}
		if last.Status != progress.StatusCompleted {
			t.Fatalf("terminal status = %s (%s), want completed", last.Status, last.Error)
		}
	})

	application.Wait()

	t.Run("FetchResult", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/sessions/" + id + "/results")
		if err != nil {
			t.Fatalf("get results error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var result struct {
			Summary struct {
				FramesProcessed int     `json:"frames_processed"`
				FPS             float64 `json:"fps"`
			} `json:"summary"`
		}
		json.NewDecoder(resp.Body).Decode(&result)

		if result.Summary.FramesProcessed != frames {
			t.Errorf("frames_processed = %d, want %d", result.Summary.FramesProcessed, frames)
		}
		if math.Abs(result.Summary.FPS-30) > 1 {
			t.Errorf("fps = %f, want about 30", result.Summary.FPS)
		}
	})

	t.Run("StoredCalibration", func(t *testing.T) {
		sess, err := application.Session(id)
		if err != nil {
			t.Fatalf("Session() error = %v", err)
		}
		if !strings.Contains(string(sess.Calibration), `"lost_after": 8`) {
			t.Errorf("calibration overrides not stored: %s", sess.Calibration)
		}
	})

	t.Run("APIStillWorks", func(t *testing.T) {
		resp, _ := client.Get(ts.URL + "/api/health")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("health check failed after session")
		}
		resp.Body.Close()
	})
}

func TestE2E_OfflinePipelineFindsShuttle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	positions := testdata.Parabola(40, 15)
	frames := testdata.LoadSequence(positions)
	defer testdata.CloseAll(frames)

	cfg := calibration.Default()
	det, err := detector.NewShuttleDetector(cfg)
	if err != nil {
		t.Fatalf("NewShuttleDetector() error = %v", err)
	}
	defer det.Close()

	m := metrics.New()
	p := app.NewPipeline(cfg, det, nil, m, app.Options{Workers: 2, KeepTrajectories: true})
	out, err := p.Run(context.Background(), "offline", capture.NewMockSource(frames, 30))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if out.Result.Summary.FramesProcessed != len(frames) {
		t.Errorf("frames_processed = %d, want %d", out.Result.Summary.FramesProcessed, len(frames))
	}
	if m.Detections.Load() == 0 {
		t.Error("the shuttle should be detected in some frames")
	}

	final := p.Finish("offline", out, nil)
	if final.Status != progress.StatusCompleted {
		t.Errorf("Finish() status = %s, want completed", final.Status)
	}
}
