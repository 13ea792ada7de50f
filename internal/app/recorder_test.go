package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/shuttlescope/internal/progress"
	"github.com/ayusman/shuttlescope/internal/store"
)

func newRecorderStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Sessions().Create(&store.Session{ID: "s1", VideoPath: "a.mp4"}))
	return s
}

func TestRecorder_FinishWritesTerminalLast(t *testing.T) {
	s := newRecorderStore(t)
	rec := newRecorder(s.Sessions())

	for pct := 5; pct <= 90; pct += 5 {
		rec.Publish(progress.Event{SessionID: "s1", Status: progress.StatusProcessing, Percent: pct, Stage: StageTracking})
	}
	rec.Finish(progress.Event{SessionID: "s1", Status: progress.StatusFailed, Stage: StageFailed, Error: "decode error"})

	got, err := s.Sessions().GetByID("s1")
	require.NoError(t, err)
	assert.Equal(t, progress.StatusFailed, got.Status)
	assert.Equal(t, 90, got.Progress, "a failed session keeps the progress it reached")
	assert.Equal(t, "decode error", got.Error)

	rec.Publish(progress.Event{SessionID: "s1", Status: progress.StatusProcessing, Percent: 95})
	rec.Finish(progress.Event{SessionID: "s1", Status: progress.StatusCompleted})
	rec.Stop()

	got, err = s.Sessions().GetByID("s1")
	require.NoError(t, err)
	assert.Equal(t, progress.StatusFailed, got.Status, "events after the terminal one are ignored")
}

func TestRecorder_CompletedIsFullProgress(t *testing.T) {
	s := newRecorderStore(t)
	rec := newRecorder(s.Sessions())

	rec.Publish(progress.Event{SessionID: "s1", Status: progress.StatusProcessing, Percent: 40})
	rec.Finish(progress.Event{SessionID: "s1", Status: progress.StatusCompleted, Stage: StageCompleted, RalliesFound: 3})

	got, err := s.Sessions().GetByID("s1")
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 3, got.RalliesFound)
}

func TestRecorder_PublishDoesNotWaitForStore(t *testing.T) {
	s := newRecorderStore(t)

	// The store has a single connection; holding it in a transaction blocks
	// every write.
	tx, err := s.DB().Begin()
	require.NoError(t, err)

	rec := newRecorder(s.Sessions())
	for pct := 1; pct <= 100; pct++ {
		rec.Publish(progress.Event{SessionID: "s1", Status: progress.StatusProcessing, Percent: pct})
	}

	require.NoError(t, tx.Rollback())
	rec.Finish(progress.Event{SessionID: "s1", Status: progress.StatusCanceled, Stage: StageCanceled})

	got, err := s.Sessions().GetByID("s1")
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCanceled, got.Status)
	assert.Equal(t, 100, got.Progress)
}
