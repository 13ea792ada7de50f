package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/shuttlescope/internal/match"
)

// RallyRow is the queryable summary of a stored rally.
type RallyRow struct {
	SessionID     string          `json:"session_id"`
	RallyNumber   int             `json:"rally_number"`
	StartFrame    int             `json:"start_frame"`
	EndFrame      int             `json:"end_frame"`
	Shots         int             `json:"shots"`
	EndReason     match.EndReason `json:"end_reason"`
	Winner        match.Player    `json:"winner"`
	MistakeType   string          `json:"mistake_type,omitempty"`
	MistakePlayer match.Player    `json:"mistake_player,omitempty"`
}

// ResultRepository stores session results.
type ResultRepository struct {
	db *sql.DB
}

// Results returns the result repository for this store.
func (s *Store) Results() *ResultRepository {
	return &ResultRepository{db: s.db}
}

// Save stores the result of a session in a single transaction, replacing
// any earlier result.
func (r *ResultRepository) Save(sessionID string, res match.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM rallies WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO results (session_id, data) VALUES (?, ?)`,
		sessionID, string(data),
	); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO rallies (session_id, rally_number, start_frame, end_frame, shots,
			end_reason, winner, mistake_type, mistake_player)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rally := range res.Rallies {
		var mistakeType, mistakePlayer string
		if m := rally.Mistake; m != nil {
			mistakeType, mistakePlayer = m.Type, string(m.Player)
		}
		if _, err := stmt.Exec(sessionID, rally.Number, rally.StartFrame, rally.EndFrame, len(rally.Shots),
			string(rally.EndReason), string(rally.Winner), mistakeType, mistakePlayer); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Get retrieves the result of a session.
func (r *ResultRepository) Get(sessionID string) (*match.Result, error) {
	var data string
	err := r.db.QueryRow(`SELECT data FROM results WHERE session_id = ?`, sessionID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var res match.Result
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &res, nil
}

// Rallies lists the rally rows of a session in rally order.
func (r *ResultRepository) Rallies(sessionID string) ([]RallyRow, error) {
	rows, err := r.db.Query(
		`SELECT session_id, rally_number, start_frame, end_frame, shots, end_reason, winner,
			mistake_type, mistake_player
		 FROM rallies
		 WHERE session_id = ?
		 ORDER BY rally_number`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RallyRow
	for rows.Next() {
		var row RallyRow
		var endReason, winner, mistakePlayer string
		if err := rows.Scan(&row.SessionID, &row.RallyNumber, &row.StartFrame, &row.EndFrame, &row.Shots,
			&endReason, &winner, &row.MistakeType, &mistakePlayer); err != nil {
			return nil, err
		}
		row.EndReason = match.EndReason(endReason)
		row.Winner = match.Player(winner)
		row.MistakePlayer = match.Player(mistakePlayer)
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// MistakeCounts tallies stored mistakes by player and type across all
// sessions.
func (r *ResultRepository) MistakeCounts() (map[match.Player]map[string]int, error) {
	rows, err := r.db.Query(
		`SELECT mistake_player, mistake_type, COUNT(*)
		 FROM rallies
		 WHERE mistake_type != ''
		 GROUP BY mistake_player, mistake_type`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[match.Player]map[string]int)
	for rows.Next() {
		var player, mistakeType string
		var n int
		if err := rows.Scan(&player, &mistakeType, &n); err != nil {
			return nil, err
		}
		p := match.Player(player)
		if out[p] == nil {
			out[p] = make(map[string]int)
		}
		out[p][mistakeType] = n
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
