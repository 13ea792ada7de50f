package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ayusman/shuttlescope/internal/app"
	"github.com/ayusman/shuttlescope/internal/calibration"
	"github.com/ayusman/shuttlescope/internal/capture"
	"github.com/ayusman/shuttlescope/internal/detector"
	"github.com/ayusman/shuttlescope/internal/progress"
	"github.com/ayusman/shuttlescope/internal/report"
	"github.com/ayusman/shuttlescope/internal/server"
	"github.com/ayusman/shuttlescope/internal/store"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dataDir := flag.String("data", "", "data directory (default ~/.shuttlescope)")
	calibrationPath := flag.String("calibration", "", "calibration JSON file")
	pluginDir := flag.String("plugins", "", "exporter plugin directory (default <data>/plugins)")
	workers := flag.Int("workers", app.DefaultWorkers, "parallel extraction workers")
	video := flag.String("video", "", "analyze one video offline and exit")
	out := flag.String("out", "", "offline result file (default stdout)")
	plots := flag.String("plots", "", "directory for per-rally trajectory plots")
	flag.Parse()

	fmt.Println("Shuttlescope - Badminton Rally Analysis")

	cfg := calibration.Default()
	if *calibrationPath != "" {
		loaded, err := calibration.Load(*calibrationPath)
		if err != nil {
			log.Fatalf("Failed to load calibration: %v", err)
		}
		cfg = loaded
	}

	if *video != "" {
		if err := analyze(cfg, *video, *out, *plots, *workers); err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}
		return
	}

	// Initialize the store
	if *dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		*dataDir = filepath.Join(homeDir, ".shuttlescope")
	}
	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	if *pluginDir == "" {
		*pluginDir = filepath.Join(*dataDir, "plugins")
	}

	st, err := store.New(filepath.Join(*dataDir, "shuttlescope.db"))
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	application := app.New(app.Config{
		Store:       st,
		Calibration: cfg,
		PluginDir:   *pluginDir,
		Workers:     *workers,
		PlotDir:     *plots,
	})
	if err := application.DiscoverPlugins(); err != nil {
		log.Printf("Failed to discover plugins: %v", err)
	}
	for _, p := range application.PluginManager().Exporters() {
		log.Printf("Loaded exporter plugin %s %s", p.Manifest.Name, p.Manifest.Version)
	}

	// Find web directory
	webDir := findWebDir(*dataDir)
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		App:       application,
	}).Handler(*addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		fmt.Printf("Starting server on %s\n", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	application.Close()
}

// analyze runs one video through the pipeline and writes the result JSON.
func analyze(cfg calibration.Config, video, out, plots string, workers int) error {
	det, err := detector.NewShuttleDetector(cfg)
	if err != nil {
		return err
	}
	defer det.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := progress.SinkFunc(func(e progress.Event) {
		log.Printf("%3d%% %s (rallies %d)", e.Percent, e.Stage, e.RalliesFound)
	})
	p := app.NewPipeline(cfg, det, sink, nil, app.Options{
		Workers:          workers,
		KeepTrajectories: plots != "",
	})

	analysis, err := p.Run(ctx, "offline", capture.NewVideoFile(video))
	p.Finish("offline", analysis, err)
	if err != nil {
		return err
	}

	for _, tr := range analysis.Trajectories {
		if _, err := report.PlotRally(plots, tr.RallyNumber, tr.Points, tr.Hits); err != nil {
			log.Printf("Rally %d plot: %v", tr.RallyNumber, err)
		}
	}

	data, err := json.MarshalIndent(analysis.Result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if out == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(out, data, 0644)
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <data>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	// Check relative paths from current working directory
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}
