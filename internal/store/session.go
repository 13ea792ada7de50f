package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ayusman/shuttlescope/internal/progress"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Session is the persisted state of one analysis request.
type Session struct {
	ID               string          `json:"session_id"`
	VideoPath        string          `json:"video_path"`
	Calibration      json.RawMessage `json:"calibration,omitempty"`
	Status           progress.Status `json:"status"`
	Progress         int             `json:"progress"`
	Stage            string          `json:"stage"`
	RalliesFound     int             `json:"rallies_found"`
	MistakesDetected int             `json:"mistakes_detected"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// SessionRepository provides CRUD operations for sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

const sessionColumns = `id, video_path, calibration, status, progress, stage,
	rallies_found, mistakes_detected, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	s := &Session{}
	var calibration, status string
	err := row.Scan(&s.ID, &s.VideoPath, &calibration, &status, &s.Progress, &s.Stage,
		&s.RalliesFound, &s.MistakesDetected, &s.Error, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = progress.Status(status)
	if calibration != "{}" {
		s.Calibration = json.RawMessage(calibration)
	}
	return s, nil
}

// Create inserts a new session. An empty status is stored as queued.
func (r *SessionRepository) Create(s *Session) error {
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Status == "" {
		s.Status = progress.StatusQueued
	}

	calibration := s.Calibration
	if len(calibration) == 0 {
		calibration = json.RawMessage("{}")
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, video_path, calibration, status, progress, stage,
			rallies_found, mistakes_detected, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.VideoPath, string(calibration), string(s.Status), s.Progress, s.Stage,
		s.RalliesFound, s.MistakesDetected, s.Error, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	s, err := scanSession(r.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// List retrieves all sessions, newest first.
func (r *SessionRepository) List() ([]*Session, error) {
	rows, err := r.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Apply records a progress event on its session.
func (r *SessionRepository) Apply(e progress.Event) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET status = ?, progress = ?, stage = ?, rallies_found = ?,
			mistakes_detected = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		string(e.Status), e.Percent, e.Stage, e.RalliesFound, e.MistakesDetected, e.Error, time.Now(), e.SessionID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a session and its results.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// FailInterrupted marks sessions left queued or processing by a previous
// run as failed. It returns the number of sessions updated.
func (r *SessionRepository) FailInterrupted() (int64, error) {
	result, err := r.db.Exec(
		`UPDATE sessions SET status = ?, error = ?, updated_at = ?
		 WHERE status IN (?, ?)`,
		string(progress.StatusFailed), "interrupted by restart", time.Now(),
		string(progress.StatusQueued), string(progress.StatusProcessing),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
