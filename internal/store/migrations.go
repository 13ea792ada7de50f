package store

import "fmt"

// migrations are applied in order; migrations[i] moves the schema from
// version i to i+1. Append only.
var migrations = []string{
	`CREATE TABLE sessions (
		id TEXT PRIMARY KEY,
		video_path TEXT NOT NULL,
		calibration TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL CHECK(status IN ('queued', 'processing', 'completed', 'failed', 'canceled')),
		progress INTEGER NOT NULL DEFAULT 0,
		stage TEXT NOT NULL DEFAULT '',
		rallies_found INTEGER NOT NULL DEFAULT 0,
		mistakes_detected INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX idx_sessions_created_at ON sessions(created_at);`,

	// Full result document of a completed session.
	`CREATE TABLE results (
		session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
		data TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,

	// One queryable row per finalized rally.
	`CREATE TABLE rallies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		rally_number INTEGER NOT NULL,
		start_frame INTEGER NOT NULL,
		end_frame INTEGER NOT NULL,
		shots INTEGER NOT NULL,
		end_reason TEXT NOT NULL,
		winner TEXT NOT NULL,
		mistake_type TEXT NOT NULL DEFAULT '',
		mistake_player TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX idx_rallies_session_id ON rallies(session_id);`,
}

// SchemaVersion is the schema version New migrates to.
var SchemaVersion = len(migrations)

// Version returns the schema version recorded in the database.
func (s *Store) Version() (int, error) {
	var v int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&v)
	return v, err
}

// migrate applies the migrations the database has not seen yet, each in its
// own transaction together with the version bump.
func (s *Store) migrate() error {
	current, err := s.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > len(migrations) {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, len(migrations))
	}

	for v := current; v < len(migrations); v++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
	}
	return nil
}
