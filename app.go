package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"trackgate/vio"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *vio.Config
	StateTracker *vio.StateTracker
	MQTTClient   *vio.MQTTClient
	Publisher    *vio.Publisher

	// One estimator per camera. The estimator reuses its trial storage
	// across frames and is not safe for concurrent use, so each camera
	// serializes refinement behind its own lock.
	estimators map[string]*cameraEstimator
	estMu      sync.Mutex

	// CLI Flags (effectively dependencies)
	ConfigFile   string
	ReplayDir    string
	RenderDir    string
	RenderFormat string
	HttpPort     int
	MqttMode     bool
	HttpMode     bool
}

type cameraEstimator struct {
	mu     sync.Mutex
	ransac *vio.Ransac
}

// AppOptions carries parsed CLI options into the App
type AppOptions struct {
	ConfigFile   string
	ReplayDir    string
	RenderDir    string
	RenderFormat string
	HttpPort     int
	MqttMode     bool
	HttpMode     bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: vio.NewStateTracker(),
		estimators:   make(map[string]*cameraEstimator),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.ReplayDir = opts.ReplayDir
	a.RenderDir = opts.RenderDir
	a.RenderFormat = opts.RenderFormat
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// LoadConfig loads the YAML configuration from the configured path
func (a *App) LoadConfig() error {
	config, err := vio.LoadConfig(a.ConfigFile)
	if err != nil {
		return err
	}
	a.Config = config
	return nil
}

// ransacConfig returns the estimator tuning, from the config file when one
// was loaded and the defaults otherwise (replay mode runs without a config).
func (a *App) ransacConfig() vio.RansacConfig {
	if a.Config != nil {
		return a.Config.RansacConfig()
	}
	return vio.DefaultRansacConfig()
}

// estimatorFor returns the camera's estimator, creating it on first use
func (a *App) estimatorFor(cameraID string) *cameraEstimator {
	a.estMu.Lock()
	defer a.estMu.Unlock()

	est, ok := a.estimators[cameraID]
	if !ok {
		est = &cameraEstimator{ransac: vio.NewRansac(a.ransacConfig())}
		a.estimators[cameraID] = est
	}
	return est
}

// RefineTrackSet runs one frame pair through the camera's estimator.
// The track set's flags are updated in place.
func (a *App) RefineTrackSet(ts *vio.TrackSet) (*vio.Verdict, error) {
	est := a.estimatorFor(ts.Camera)
	est.mu.Lock()
	defer est.mu.Unlock()
	return est.ransac.Refine(ts)
}

// HandleTrack is the MQTT message handler: it refines each incoming track
// set, records the verdict, and republishes it for the downstream filter.
func (a *App) HandleTrack(cameraID string, payload []byte, ts *vio.TrackSet, err error) {
	if err != nil {
		log.Printf("Dropping undecodable frame for %s: %v", cameraID, err)
		return
	}

	v, err := a.RefineTrackSet(ts)
	if err != nil {
		if errors.Is(err, vio.ErrTooFewCandidates) {
			a.StateTracker.RecordDegenerate(cameraID)
			log.Printf("%s seq=%d: %v, frame dropped", cameraID, ts.Seq, err)
			return
		}
		log.Printf("Error refining tracks for %s seq=%d: %v", cameraID, ts.Seq, err)
		return
	}

	a.StateTracker.RecordVerdict(v, ts)
	log.Printf("%s seq=%d: kept %d of %d tracks", cameraID, ts.Seq, v.Inliers, v.Candidates)

	if a.Publisher != nil {
		if err := a.Publisher.PublishVerdict(v); err != nil {
			log.Printf("Error publishing verdict for %s: %v", cameraID, err)
		}
	}
}

// RunReplay refines recorded track exports offline and prints per-frame stats
func (a *App) RunReplay() error {
	if a.RenderFormat != "raster" && a.RenderFormat != "vector" && a.RenderFormat != "both" {
		return fmt.Errorf("invalid format: %s (must be raster, vector, or both)", a.RenderFormat)
	}

	// Config is optional for replay; it only supplies estimator tuning.
	if _, err := os.Stat(a.ConfigFile); err == nil {
		if err := a.LoadConfig(); err != nil {
			log.Printf("Warning: ignoring config %s: %v", a.ConfigFile, err)
		}
	}

	pattern := filepath.Join(a.ReplayDir, "tracklog-*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("finding track exports: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no tracklog-*.json files found in %s", a.ReplayDir)
	}

	fmt.Printf("Found %d track export(s)\n\n", len(files))

	frames, degenerate := 0, 0
	for _, file := range files {
		ts, err := vio.DecodeTrackFile(file)
		if err != nil {
			fmt.Printf("%s: ERROR: %v\n", filepath.Base(file), err)
			continue
		}
		frames++

		v, err := a.RefineTrackSet(ts)
		if err != nil {
			if errors.Is(err, vio.ErrTooFewCandidates) {
				degenerate++
				a.StateTracker.RecordDegenerate(ts.Camera)
				fmt.Printf("%s seq=%d: skipped (%v)\n", ts.Camera, ts.Seq, err)
				continue
			}
			return fmt.Errorf("refining %s: %w", filepath.Base(file), err)
		}

		a.StateTracker.RecordVerdict(v, ts)
		fmt.Printf("%s seq=%d: kept %d of %d tracks (%.1f%%)\n",
			ts.Camera, ts.Seq, v.Inliers, v.Candidates, v.InlierRatio()*100)

		if a.RenderDir != "" {
			if err := a.renderOverlay(ts, v); err != nil {
				log.Printf("Warning: rendering overlay for %s seq=%d: %v", ts.Camera, ts.Seq, err)
			}
		}
	}

	fmt.Printf("\nReplay complete: %d frames, %d degenerate\n", frames, degenerate)
	for id, cs := range a.StateTracker.Snapshot() {
		fmt.Printf("  %s: %d frames, rolling inlier ratio %.1f%%\n", id, cs.Frames, cs.InlierRatio*100)
	}
	return nil
}

// renderOverlay writes the flow overlay for one refined frame pair
func (a *App) renderOverlay(ts *vio.TrackSet, v *vio.Verdict) error {
	if err := os.MkdirAll(a.RenderDir, 0755); err != nil {
		return err
	}

	if a.RenderFormat == "raster" || a.RenderFormat == "both" {
		path := filepath.Join(a.RenderDir, fmt.Sprintf("flow_%s_%06d.png", ts.Camera, ts.Seq))
		if err := vio.NewFlowRenderer().SavePNG(ts, v, path); err != nil {
			return err
		}
		fmt.Printf("  wrote %s\n", path)
	}

	if a.RenderFormat == "vector" || a.RenderFormat == "both" {
		path := filepath.Join(a.RenderDir, fmt.Sprintf("flow_%s_%06d.svg", ts.Camera, ts.Seq))
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		renderErr := vio.NewVectorFlowRenderer().RenderToSVG(ts, v, f)
		if closeErr := f.Close(); renderErr == nil {
			renderErr = closeErr
		}
		if renderErr != nil {
			return renderErr
		}
		fmt.Printf("  wrote %s\n", path)
	}

	return nil
}

// RunService starts the combined MQTT and/or HTTP service
func (a *App) RunService() error {
	fmt.Println("Starting trackgate service...")

	if err := a.LoadConfig(); err != nil {
		return fmt.Errorf("loading config: %w (looked at %s)", err, a.ConfigFile)
	}
	log.Printf("Loaded config from %s", a.ConfigFile)

	if a.MqttMode {
		mqttClient, err := vio.InitMQTT(a.Config, a.HandleTrack)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if mqttClient == nil {
			return fmt.Errorf("MQTT broker not configured in %s", a.ConfigFile)
		}
		a.MQTTClient = mqttClient

		a.Publisher = vio.NewPublisher(mqttClient.GetClient())
		a.Publisher.SetPrefix(a.Config.MQTT.PublishPrefix)
		fmt.Println("MQTT verdict publisher initialized")
	}

	if a.HttpMode {
		server := newHTTPServer(a)
		go func() {
			addr := fmt.Sprintf(":%d", a.HttpPort)
			fmt.Printf("HTTP server starting on %s\n", addr)
			if err := http.ListenAndServe(addr, server); err != nil {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed topics:")
		for _, cc := range a.Config.Cameras {
			fmt.Printf("    - %s (%s)\n", cc.Topic, cc.ID)
		}
		prefix := a.Config.MQTT.PublishPrefix
		if prefix == "" {
			prefix = "trackgate"
		}
		fmt.Printf("  Publishing to: %s/{cameraID}\n", prefix)
		fmt.Printf("  Combined verdicts: %s/verdicts\n", prefix)
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET /health               - Health check")
		fmt.Println("  GET /stats                - Per-camera refinement statistics")
		fmt.Println("  GET /tracks.svg?camera=ID - Flow overlay of the last frame (SVG)")
		fmt.Println("  GET /tracks.png?camera=ID - Flow overlay of the last frame (PNG)")
	}

	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
	return nil
}
