package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func request(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	rec := request(s, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var health struct {
		Status string  `json:"status"`
		Uptime *string `json:"uptime"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Status != "ok" || health.Uptime == nil {
		t.Errorf("unexpected health response: %+v", health)
	}
}

func TestServer_Routes(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"index.html": "<html><body>rallies</body></html>",
		"app.js":     "console.log('shuttlescope')",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	withStatic := New(Config{StaticDir: dir})
	bare := New(Config{})

	tests := []struct {
		name     string
		server   *Server
		method   string
		path     string
		want     int
		wantBody string
	}{
		{"index at root", withStatic, http.MethodGet, "/", http.StatusOK, files["index.html"]},
		{"static asset", withStatic, http.MethodGet, "/app.js", http.StatusOK, files["app.js"]},
		{"missing asset", withStatic, http.MethodGet, "/replay.html", http.StatusNotFound, ""},
		{"root without static dir", bare, http.MethodGet, "/", http.StatusNotFound, ""},
		{"unknown api path", bare, http.MethodGet, "/api/nonexistent", http.StatusNotFound, ""},
		{"health post", bare, http.MethodPost, "/api/health", http.StatusMethodNotAllowed, ""},
		{"health delete", bare, http.MethodDelete, "/api/health", http.StatusMethodNotAllowed, ""},
		{"sessions without app", bare, http.MethodGet, "/api/sessions", http.StatusNotFound, ""},
		{"metrics without app", bare, http.MethodGet, "/metrics", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := request(tt.server, tt.method, tt.path)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestServer_Handler(t *testing.T) {
	s := New(Config{StaticDir: "/srv/web"})
	hs := s.Handler(":0")

	if s.config.StaticDir != "/srv/web" {
		t.Errorf("expected StaticDir /srv/web, got %s", s.config.StaticDir)
	}
	if hs.Addr != ":0" {
		t.Errorf("expected Addr :0, got %s", hs.Addr)
	}
	if hs.Handler != s {
		t.Error("expected the server to be the handler")
	}
	if hs.ReadHeaderTimeout <= 0 {
		t.Error("expected a read header timeout")
	}
}
