package store

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ayusman/shuttlescope/internal/match"
	"github.com/ayusman/shuttlescope/internal/progress"
)

func TestSessionRepository_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	session := &Session{
		ID:          "session-1",
		VideoPath:   "/videos/final.mp4",
		Calibration: json.RawMessage(`{"tracker":{"lost_after":8}}`),
	}
	if err := repo.Create(session); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	if session.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set after create")
	}
	if session.Status != progress.StatusQueued {
		t.Errorf("Status = %q, want %q", session.Status, progress.StatusQueued)
	}

	got, err := repo.GetByID("session-1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.VideoPath != session.VideoPath {
		t.Errorf("VideoPath mismatch: got %q, want %q", got.VideoPath, session.VideoPath)
	}
	if string(got.Calibration) != string(session.Calibration) {
		t.Errorf("Calibration mismatch: got %s, want %s", got.Calibration, session.Calibration)
	}
	if got.Status != progress.StatusQueued {
		t.Errorf("Status mismatch: got %q", got.Status)
	}
}

func TestSessionRepository_EmptyCalibration(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	if err := repo.Create(&Session{ID: "s", VideoPath: "a.mp4"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := repo.GetByID("s")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Calibration != nil {
		t.Errorf("Calibration = %s, want nil", got.Calibration)
	}
}

func TestSessionRepository_GetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Sessions().GetByID("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_Apply(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	if err := repo.Create(&Session{ID: "s1", VideoPath: "a.mp4"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := repo.Apply(progress.Event{
		SessionID:        "s1",
		Status:           progress.StatusProcessing,
		Percent:          42,
		Stage:            "tracking shuttlecock",
		RalliesFound:     3,
		MistakesDetected: 2,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := repo.GetByID("s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != progress.StatusProcessing || got.Progress != 42 || got.Stage != "tracking shuttlecock" {
		t.Errorf("unexpected session state: %+v", got)
	}
	if got.RalliesFound != 3 || got.MistakesDetected != 2 {
		t.Errorf("unexpected counters: rallies=%d mistakes=%d", got.RalliesFound, got.MistakesDetected)
	}

	err = repo.Apply(progress.Event{SessionID: "missing", Status: progress.StatusFailed})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown session, got %v", err)
	}
}

func TestSessionRepository_List(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.Create(&Session{ID: id, VideoPath: id + ".mp4"}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	sessions, err := repo.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
}

func TestSessionRepository_DeleteCascades(t *testing.T) {
	s := newTestStore(t)

	if err := s.Sessions().Create(&Session{ID: "s1", VideoPath: "a.mp4"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	res := match.Result{Rallies: []match.Rally{{Number: 1, EndReason: match.EndWinner, Winner: match.PlayerA}}}
	if err := s.Results().Save("s1", res); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.Sessions().Delete("s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.Results().Get("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("result should be deleted with its session, got %v", err)
	}
	rows, err := s.Results().Rallies("s1")
	if err != nil {
		t.Fatalf("rallies: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rally rows, got %d", len(rows))
	}

	if err := s.Sessions().Delete("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should return ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_FailInterrupted(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	sessions := []*Session{
		{ID: "queued", VideoPath: "a.mp4"},
		{ID: "running", VideoPath: "b.mp4", Status: progress.StatusProcessing},
		{ID: "done", VideoPath: "c.mp4", Status: progress.StatusCompleted},
	}
	for _, sess := range sessions {
		if err := repo.Create(sess); err != nil {
			t.Fatalf("create %s: %v", sess.ID, err)
		}
	}

	n, err := repo.FailInterrupted()
	if err != nil {
		t.Fatalf("fail interrupted: %v", err)
	}
	if n != 2 {
		t.Errorf("updated %d sessions, want 2", n)
	}

	done, err := repo.GetByID("done")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.Status != progress.StatusCompleted {
		t.Errorf("completed session changed to %q", done.Status)
	}
	running, err := repo.GetByID("running")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if running.Status != progress.StatusFailed || running.Error == "" {
		t.Errorf("interrupted session not failed: %+v", running)
	}
}
