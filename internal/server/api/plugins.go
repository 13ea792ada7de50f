package api

import (
	"net/http"

	"github.com/ayusman/shuttlescope/internal/app"
	"github.com/ayusman/shuttlescope/internal/match"
	"github.com/ayusman/shuttlescope/internal/plugin"
)

// PluginHandler lists the discovered exporter plugins.
type PluginHandler struct {
	manager *plugin.Manager
}

// NewPluginHandler creates a new PluginHandler with the given manager.
func NewPluginHandler(m *plugin.Manager) *PluginHandler {
	return &PluginHandler{manager: m}
}

type pluginResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
}

type listPluginsResponse struct {
	Plugins []pluginResponse `json:"plugins"`
}

// ServeHTTP handles GET /api/plugins.
func (h *PluginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	plugins := h.manager.List()
	response := listPluginsResponse{Plugins: make([]pluginResponse, 0, len(plugins))}
	for _, p := range plugins {
		response.Plugins = append(response.Plugins, pluginResponse{
			Name:        p.Manifest.Name,
			Version:     p.Manifest.Version,
			Description: p.Manifest.Description,
			Actions:     p.Manifest.Actions,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// MistakeHandler reports mistake counts across every stored session.
type MistakeHandler struct {
	app *app.App
}

// NewMistakeHandler creates a new MistakeHandler backed by the given App.
func NewMistakeHandler(a *app.App) *MistakeHandler {
	return &MistakeHandler{app: a}
}

type mistakeHistoryResponse struct {
	Players map[match.Player]map[string]int `json:"players"`
}

// ServeHTTP handles GET /api/mistakes.
func (h *MistakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	history, err := h.app.MistakeHistory()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mistakeHistoryResponse{Players: history})
}
