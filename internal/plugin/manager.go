package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ayusman/shuttlescope/internal/monitoring"
)

// ManifestFile is the manifest name looked up in every plugin directory.
const ManifestFile = "plugin.json"

var (
	// ErrPluginNotFound is returned when a requested plugin cannot be found.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrInvalidManifest is returned for manifests that cannot be run.
	ErrInvalidManifest = errors.New("invalid plugin manifest")
)

// Manager discovers exporter plugins below a directory.
type Manager struct {
	pluginDir string
	plugins   map[string]*Plugin
	mu        sync.RWMutex
}

// NewManager creates a new plugin Manager with the given plugin directory.
func NewManager(pluginDir string) *Manager {
	return &Manager{
		pluginDir: pluginDir,
		plugins:   make(map[string]*Plugin),
	}
}

// Discover replaces the known plugins with those found in the immediate
// subdirectories of the plugin directory. A missing directory yields no
// plugins. Subdirectories without a usable manifest are skipped and logged.
func (m *Manager) Discover() error {
	entries, err := os.ReadDir(m.pluginDir)
	if errors.Is(err, os.ErrNotExist) {
		m.replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read plugin dir: %w", err)
	}

	found := make(map[string]*Plugin)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.pluginDir, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, ManifestFile)); errors.Is(err, os.ErrNotExist) {
			continue
		}

		p, err := Load(dir)
		if err != nil {
			monitoring.Logf("plugin %s skipped: %v", entry.Name(), err)
			continue
		}
		if prev, ok := found[p.Manifest.Name]; ok {
			monitoring.Logf("plugin %s skipped: name %q already used by %s", entry.Name(), p.Manifest.Name, prev.Path)
			continue
		}
		found[p.Manifest.Name] = p
	}

	m.replace(found)
	return nil
}

func (m *Manager) replace(plugins map[string]*Plugin) {
	if plugins == nil {
		plugins = make(map[string]*Plugin)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = plugins
}

// Load reads and checks the manifest of the plugin in dir. The executable
// must be a regular file inside dir.
func Load(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	switch {
	case manifest.Name == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidManifest)
	case manifest.Executable == "":
		return nil, fmt.Errorf("%w: executable is required", ErrInvalidManifest)
	case !filepath.IsLocal(manifest.Executable):
		return nil, fmt.Errorf("%w: executable %q escapes the plugin directory", ErrInvalidManifest, manifest.Executable)
	case len(manifest.Actions) == 0:
		return nil, fmt.Errorf("%w: no actions declared", ErrInvalidManifest)
	}

	executable := filepath.Join(dir, manifest.Executable)
	info, err := os.Stat(executable)
	if err != nil {
		return nil, fmt.Errorf("%w: executable: %v", ErrInvalidManifest, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: executable %q is not a regular file", ErrInvalidManifest, manifest.Executable)
	}

	return &Plugin{Manifest: manifest, Path: dir, Executable: executable}, nil
}

// Get returns a plugin by name.
// Returns ErrPluginNotFound if the plugin does not exist.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugin, ok := m.plugins[name]
	if !ok {
		return nil, ErrPluginNotFound
	}

	return plugin, nil
}

// List returns all discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, plugin := range m.plugins {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})

	return plugins
}

// Exporters returns the plugins that declare the export action, sorted by
// name.
func (m *Manager) Exporters() []*Plugin {
	var out []*Plugin
	for _, p := range m.List() {
		if p.Manifest.Supports(ActionExport) {
			out = append(out, p)
		}
	}
	return out
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}
