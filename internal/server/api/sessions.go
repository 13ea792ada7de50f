// Package api provides HTTP API handlers for the shuttlescope analysis service.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/ayusman/shuttlescope/internal/app"
	"github.com/ayusman/shuttlescope/internal/progress"
	"github.com/ayusman/shuttlescope/internal/report"
	"github.com/ayusman/shuttlescope/internal/store"
)

// SessionHandler handles HTTP requests for analysis sessions.
type SessionHandler struct {
	app *app.App
}

// NewSessionHandler creates a new SessionHandler backed by the given App.
func NewSessionHandler(a *app.App) *SessionHandler {
	return &SessionHandler{app: a}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/sessions, /api/sessions/{id} and
	// /api/sessions/{id}/{view}
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id, view, _ := strings.Cut(path, "/")
	if view == "" {
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodDelete:
			h.delete(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch view {
	case "results":
		h.results(w, r, id)
	case "rallies":
		h.rallies(w, r, id)
	case "stats":
		h.stats(w, r, id)
	case "charts":
		h.charts(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "Unknown session view")
	}
}

// Request and response types

type createSessionRequest struct {
	Video       string          `json:"video"`
	Calibration json.RawMessage `json:"calibration,omitempty"`
}

type createSessionResponse struct {
	ID     string          `json:"id"`
	Status progress.Status `json:"status"`
}

type listSessionsResponse struct {
	Sessions []*store.Session `json:"sessions"`
}

type cancelSessionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ralliesResponse struct {
	Rallies []store.RallyRow `json:"rallies"`
}

// list handles GET /api/sessions and returns all sessions, newest first.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.app.Sessions()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

// create handles POST /api/sessions and queues an analysis.
func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Video == "" {
		writeError(w, http.StatusBadRequest, "Video path is required")
		return
	}
	if string(req.Calibration) == "null" {
		req.Calibration = nil
	}

	sess, err := h.app.StartSession(req.Video, req.Calibration)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, createSessionResponse{ID: sess.ID, Status: sess.Status})
}

// get handles GET /api/sessions/{id} and returns the session status.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.app.Session(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// delete handles DELETE /api/sessions/{id}. A running session is canceled;
// a finished one is removed with its result.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	err := h.app.Cancel(id)
	if err == nil {
		writeJSON(w, http.StatusAccepted, cancelSessionResponse{ID: id, Status: "canceling"})
		return
	}
	if !errors.Is(err, app.ErrSessionFinished) {
		writeAppError(w, err)
		return
	}

	if err := h.app.Delete(id); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// results handles GET /api/sessions/{id}/results.
func (h *SessionHandler) results(w http.ResponseWriter, r *http.Request, id string) {
	res, err := h.app.Result(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// rallies handles GET /api/sessions/{id}/rallies.
func (h *SessionHandler) rallies(w http.ResponseWriter, r *http.Request, id string) {
	rows, err := h.app.Rallies(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ralliesResponse{Rallies: rows})
}

// stats handles GET /api/sessions/{id}/stats.
func (h *SessionHandler) stats(w http.ResponseWriter, r *http.Request, id string) {
	stats, err := h.app.Stats(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// charts handles GET /api/sessions/{id}/charts and renders an HTML page.
func (h *SessionHandler) charts(w http.ResponseWriter, r *http.Request, id string) {
	stats, err := h.app.Stats(id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderCharts(w, stats, "Session "+id); err != nil {
		log.Printf("Session %s: render charts: %v", id, err)
	}
}
