package server

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/shuttlescope/internal/app"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// ProgressHandler streams the progress events of one session over a
// WebSocket. The latest known event is sent first and the connection is
// closed after the terminal event.
type ProgressHandler struct {
	app *app.App
}

// NewProgressHandler creates a new ProgressHandler backed by the given App.
func NewProgressHandler(a *app.App) *ProgressHandler {
	return &ProgressHandler{app: a}
}

// ServeHTTP handles WebSocket upgrade requests on
// /api/sessions/{id}/progress.
func (h *ProgressHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	id = strings.TrimSuffix(id, "/progress")
	if _, err := h.app.Session(id); err != nil {
		if errors.Is(err, app.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub := h.app.Hub().Subscribe(id)
	defer h.app.Hub().Unsubscribe(sub)

	// Drop the subscription when the client goes away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.app.Hub().Unsubscribe(sub)
				return
			}
		}
	}()

	for e := range sub.Events() {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
}
