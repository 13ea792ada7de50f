package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// newTestStore opens a store in a temp dir that is closed with the test.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sqliteObject(t *testing.T, s *Store, kind, name string) bool {
	t.Helper()

	var n int
	err := s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name).Scan(&n)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}

func TestNew_Schema(t *testing.T) {
	s := newTestStore(t)

	v, err := s.Version()
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != SchemaVersion {
		t.Errorf("Version() = %d, want %d", v, SchemaVersion)
	}

	objects := []struct{ kind, name string }{
		{"table", "sessions"},
		{"table", "results"},
		{"table", "rallies"},
		{"index", "idx_sessions_created_at"},
		{"index", "idx_rallies_session_id"},
	}
	for _, o := range objects {
		if !sqliteObject(t, s, o.kind, o.name) {
			t.Errorf("%s %q missing after migrations", o.kind, o.name)
		}
	}
}

func TestNew_Pragmas(t *testing.T) {
	s := newTestStore(t)

	pragmas := map[string]int{
		"foreign_keys": 1,
		"busy_timeout": busyTimeoutMs,
	}
	for pragma, want := range pragmas {
		var got int
		if err := s.DB().QueryRow("PRAGMA " + pragma).Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", pragma, err)
		}
		if got != want {
			t.Errorf("PRAGMA %s = %d, want %d", pragma, got, want)
		}
	}
}

func TestNew_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
	if err := s.Sessions().Create(&Session{ID: "kept", VideoPath: "final.mp4"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	if _, err := s.Sessions().GetByID("kept"); err != nil {
		t.Errorf("session lost across reopen: %v", err)
	}
}

func TestNew_RejectsNewerSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "future.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := s.DB().Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion+1)); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	s.Close()

	if s, err := New(dbPath); err == nil {
		s.Close()
		t.Fatal("New() should refuse a schema it does not know")
	}
}

func TestNew_InMemory(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:) error = %v", err)
	}
	defer s.Close()

	if err := s.Sessions().Create(&Session{ID: "m", VideoPath: "a.mp4"}); err != nil {
		t.Errorf("Create() error = %v", err)
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("queries should fail after Close")
	}
}
