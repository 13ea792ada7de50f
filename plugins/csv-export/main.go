// Package main provides an exporter plugin that writes a session result as
// CSV files: one row per rally, per shot and per mistake.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ayusman/shuttlescope/internal/match"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action  string          `json:"action"`
	Session string          `json:"session"`
	Config  json.RawMessage `json:"config"`
	Params  json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config selects where the files go. Relative paths resolve against the
// plugin directory.
type Config struct {
	OutputDir string `json:"output_dir"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Action != "export" {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	files, err := handleExport(req)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("export failed: %v", err))
		return
	}

	data, _ := json.Marshal(map[string][]string{"files": files})
	writeSuccessResponse(data)
}

// handleExport decodes the result and writes the CSV files, returning their
// paths.
func handleExport(req Request) ([]string, error) {
	if req.Session == "" {
		return nil, fmt.Errorf("session is required")
	}

	cfg := Config{OutputDir: "exports"}
	if len(req.Config) > 0 && string(req.Config) != "null" {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	var result match.Result
	if err := json.Unmarshal(req.Params, &result); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}

	dir := filepath.Join(cfg.OutputDir, filepath.Base(req.Session))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	tables := []struct {
		name string
		rows [][]string
	}{
		{"rallies.csv", rallyRows(result.Rallies)},
		{"shots.csv", shotRows(result.Rallies)},
		{"mistakes.csv", mistakeRows(result.Rallies)},
	}

	files := make([]string, 0, len(tables))
	for _, t := range tables {
		path := filepath.Join(dir, t.name)
		if err := writeCSV(path, t.rows); err != nil {
			return nil, fmt.Errorf("%s: %w", t.name, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func rallyRows(rallies []match.Rally) [][]string {
	rows := [][]string{{"rally_number", "start_seconds", "end_seconds", "shots", "end_reason", "winner", "termination"}}
	for _, r := range rallies {
		rows = append(rows, []string{
			strconv.Itoa(r.Number),
			formatFloat(r.StartSeconds),
			formatFloat(r.EndSeconds),
			strconv.Itoa(len(r.Shots)),
			string(r.EndReason),
			string(r.Winner),
			string(r.Termination),
		})
	}
	return rows
}

func shotRows(rallies []match.Rally) [][]string {
	rows := [][]string{{"rally_number", "shot_number", "seconds", "player", "shot_type", "shot_type_zh", "start_zone", "end_zone", "speed"}}
	for _, r := range rallies {
		for _, s := range r.Shots {
			rows = append(rows, []string{
				strconv.Itoa(r.Number),
				strconv.Itoa(s.Number),
				formatFloat(s.Seconds),
				string(s.Player),
				s.Type,
				s.NameZH,
				string(s.StartZone),
				string(s.EndZone),
				strconv.FormatFloat(s.SpeedEstimate, 'f', 4, 64),
			})
		}
	}
	return rows
}

func mistakeRows(rallies []match.Rally) [][]string {
	rows := [][]string{{"mistake_id", "rally_number", "shot_number", "seconds", "player", "mistake_type", "category", "severity"}}
	for _, r := range rallies {
		m := r.Mistake
		if m == nil {
			continue
		}
		rows = append(rows, []string{
			m.ID,
			strconv.Itoa(m.RallyNumber),
			strconv.Itoa(m.ShotNumber),
			formatFloat(m.Seconds),
			string(m.Player),
			m.Type,
			string(m.Category),
			string(m.Severity),
		})
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// writeCSV writes rows to path, replacing any existing file.
func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(data json.RawMessage) {
	resp := Response{
		Success: true,
		Data:    data,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
