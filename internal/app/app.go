// Package app runs analysis sessions: it owns the session lifecycle, wires
// the pipeline to progress listeners and persists results.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/shuttlescope/internal/calibration"
	"github.com/ayusman/shuttlescope/internal/capture"
	"github.com/ayusman/shuttlescope/internal/detector"
	"github.com/ayusman/shuttlescope/internal/match"
	"github.com/ayusman/shuttlescope/internal/metrics"
	"github.com/ayusman/shuttlescope/internal/plugin"
	"github.com/ayusman/shuttlescope/internal/progress"
	"github.com/ayusman/shuttlescope/internal/report"
	"github.com/ayusman/shuttlescope/internal/store"
)

const (
	// DefaultPluginTimeout bounds a single exporter run.
	DefaultPluginTimeout = 30 * time.Second
	// progressBuffer is the per-listener progress channel capacity.
	progressBuffer = 64
)

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFinished is returned when canceling a session that already ended.
	ErrSessionFinished = errors.New("session already finished")
	// ErrResultNotReady is returned for results of sessions that did not complete.
	ErrResultNotReady = errors.New("result not ready")
	// ErrInvalidRequest is returned for malformed session requests.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrClosed is returned when starting a session on a closed App.
	ErrClosed = errors.New("app closed")
)

// Config holds configuration options for the application.
type Config struct {
	// Store persists sessions and results. It is required.
	Store *store.Store
	// Calibration is the base calibration sessions override.
	Calibration calibration.Config
	PluginDir   string
	Workers     int
	// PlotDir receives per-rally trajectory plots when set.
	PlotDir       string
	PluginTimeout time.Duration
	// OpenSource and NewDetector default to video files and the shuttle
	// detector.
	OpenSource  func(path string) capture.Source
	NewDetector func(cfg calibration.Config) (detector.Detector, error)
}

// App is the session manager.
type App struct {
	config     Config
	hub        *progress.Hub
	metrics    *metrics.Metrics
	pluginMgr  *plugin.Manager
	pluginExec *plugin.Executor

	mu      sync.Mutex
	running map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.OpenSource == nil {
		config.OpenSource = func(path string) capture.Source { return capture.NewVideoFile(path) }
	}
	if config.NewDetector == nil {
		config.NewDetector = func(cfg calibration.Config) (detector.Detector, error) {
			return detector.NewShuttleDetector(cfg)
		}
	}
	if config.PluginTimeout <= 0 {
		config.PluginTimeout = DefaultPluginTimeout
	}

	a := &App{
		config:     config,
		hub:        progress.NewHub(progressBuffer),
		metrics:    metrics.New(),
		pluginMgr:  plugin.NewManager(config.PluginDir),
		pluginExec: plugin.NewExecutor(config.PluginTimeout),
		running:    make(map[string]context.CancelFunc),
	}
	a.hub.OnDrop(func() { a.metrics.ProgressDropped.Add(1) })

	if n, err := config.Store.Sessions().FailInterrupted(); err != nil {
		log.Printf("Failed to recover interrupted sessions: %v", err)
	} else if n > 0 {
		log.Printf("Marked %d interrupted sessions as failed", n)
	}

	return a
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	return a.pluginMgr.Discover()
}

// StartSession queues an analysis of the video at videoPath. overrides is an
// optional partial calibration document merged over the base calibration.
// Malformed overrides are rejected; well-formed but invalid values fail the
// session with a single failed event.
func (a *App) StartSession(videoPath string, overrides json.RawMessage) (*store.Session, error) {
	if videoPath == "" {
		return nil, fmt.Errorf("%w: video path is required", ErrInvalidRequest)
	}

	cfg := a.config.Calibration
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &cfg); err != nil {
			return nil, fmt.Errorf("%w: calibration: %v", ErrInvalidRequest, err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}

	sess := &store.Session{
		ID:          uuid.NewString(),
		VideoPath:   videoPath,
		Calibration: overrides,
	}
	if err := a.config.Store.Sessions().Create(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.running[sess.ID] = cancel
	a.wg.Add(1)
	go a.run(ctx, sess, cfg)

	log.Printf("Session %s started for %s", sess.ID, videoPath)
	return sess, nil
}

// run executes one session to its terminal event.
func (a *App) run(ctx context.Context, sess *store.Session, cfg calibration.Config) {
	defer a.wg.Done()
	defer a.release(sess.ID)

	rec := newRecorder(a.config.Store.Sessions())
	defer rec.Stop()

	sink := progress.SinkFunc(func(e progress.Event) {
		if e.Status.Terminal() {
			// Stored before listeners see it, so a client reacting to the
			// terminal event reads the final state.
			rec.Finish(e)
			a.hub.Publish(e)
			return
		}
		a.hub.Publish(e)
		if last, ok := a.hub.Last(e.SessionID); ok {
			rec.Publish(last)
		}
	})

	if err := cfg.Validate(); err != nil {
		NewPipeline(cfg, nil, sink, a.metrics, Options{}).Finish(sess.ID, nil, err)
		return
	}
	det, err := a.config.NewDetector(cfg)
	if err != nil {
		NewPipeline(cfg, nil, sink, a.metrics, Options{}).Finish(sess.ID, nil, fmt.Errorf("create detector: %w", err))
		return
	}
	defer det.Close()

	p := NewPipeline(cfg, det, sink, a.metrics, Options{
		Workers:          a.config.Workers,
		KeepTrajectories: a.config.PlotDir != "",
	})
	analysis, err := p.Run(ctx, sess.ID, a.config.OpenSource(sess.VideoPath))
	if err == nil {
		err = a.persist(sess.ID, analysis)
	}
	final := p.Finish(sess.ID, analysis, err)
	log.Printf("Session %s %s", sess.ID, final.Status)
	a.release(sess.ID)

	if final.Status == progress.StatusCompleted {
		a.export(sess.ID, analysis.Result)
	}
}

// release forgets the cancel function of a session that has ended.
func (a *App) release(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cancel, ok := a.running[id]; ok {
		cancel()
		delete(a.running, id)
	}
}

// persist stores the result and writes trajectory plots.
func (a *App) persist(sessionID string, analysis *Analysis) error {
	if err := a.config.Store.Results().Save(sessionID, analysis.Result); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if a.config.PlotDir == "" {
		return nil
	}

	dir := filepath.Join(a.config.PlotDir, sessionID)
	for _, tr := range analysis.Trajectories {
		if _, err := report.PlotRally(dir, tr.RallyNumber, tr.Points, tr.Hits); err != nil {
			log.Printf("Session %s: rally %d plot: %v", sessionID, tr.RallyNumber, err)
		}
	}
	return nil
}

// export hands the result to every exporter plugin.
func (a *App) export(sessionID string, result match.Result) {
	exporters := a.pluginMgr.Exporters()
	if len(exporters) == 0 {
		return
	}

	params, err := json.Marshal(result)
	if err != nil {
		log.Printf("Session %s: failed to encode result for export: %v", sessionID, err)
		return
	}

	for _, p := range exporters {
		resp, err := a.pluginExec.Execute(context.Background(), p, &plugin.Request{
			Action:  plugin.ActionExport,
			Session: sessionID,
			Params:  params,
		})
		switch {
		case err != nil:
			log.Printf("Session %s: exporter %s: %v", sessionID, p.Manifest.Name, err)
		case !resp.Success:
			log.Printf("Session %s: exporter %s failed: %s", sessionID, p.Manifest.Name, resp.Error)
		default:
			log.Printf("Session %s: exported via %s", sessionID, p.Manifest.Name)
		}
	}
}

// Cancel stops a running session. The session ends with a canceled event.
func (a *App) Cancel(id string) error {
	a.mu.Lock()
	cancel, ok := a.running[id]
	a.mu.Unlock()
	if ok {
		cancel()
		return nil
	}

	if _, err := a.Session(id); err != nil {
		return err
	}
	return ErrSessionFinished
}

// Session returns the stored state of a session.
func (a *App) Session(id string) (*store.Session, error) {
	sess, err := a.config.Store.Sessions().GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// Sessions lists all sessions, newest first.
func (a *App) Sessions() ([]*store.Session, error) {
	sessions, err := a.config.Store.Sessions().List()
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	return sessions, nil
}

// Result returns the result of a completed session.
func (a *App) Result(id string) (*match.Result, error) {
	sess, err := a.Session(id)
	if err != nil {
		return nil, err
	}
	if sess.Status != progress.StatusCompleted {
		return nil, ErrResultNotReady
	}
	res, err := a.config.Store.Results().Get(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrResultNotReady
	}
	return res, err
}

// Stats computes the statistics of a completed session.
func (a *App) Stats(id string) (report.Stats, error) {
	res, err := a.Result(id)
	if err != nil {
		return report.Stats{}, err
	}
	return report.Compute(res.Rallies), nil
}

// Rallies lists the stored rally rows of a completed session.
func (a *App) Rallies(id string) ([]store.RallyRow, error) {
	if _, err := a.Result(id); err != nil {
		return nil, err
	}
	rows, err := a.config.Store.Results().Rallies(id)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []store.RallyRow{}
	}
	return rows, nil
}

// MistakeHistory tallies stored mistakes by player and type over every
// session.
func (a *App) MistakeHistory() (map[match.Player]map[string]int, error) {
	return a.config.Store.Results().MistakeCounts()
}

// Delete removes a finished session and its result.
func (a *App) Delete(id string) error {
	a.mu.Lock()
	_, running := a.running[id]
	a.mu.Unlock()
	if running {
		return fmt.Errorf("%w: session %s is running", ErrInvalidRequest, id)
	}

	err := a.config.Store.Sessions().Delete(id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err == nil {
		a.hub.Forget(id)
	}
	return err
}

// Hub returns the progress hub.
func (a *App) Hub() *progress.Hub {
	return a.hub
}

// Metrics returns the service metrics.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// Wait blocks until every started session has ended.
func (a *App) Wait() {
	a.wg.Wait()
}

// Close cancels running sessions, refuses new ones and waits for all
// sessions to end.
func (a *App) Close() {
	a.mu.Lock()
	a.closed = true
	for _, cancel := range a.running {
		cancel()
	}
	a.mu.Unlock()

	a.wg.Wait()
	log.Println("Session manager stopped")
}
