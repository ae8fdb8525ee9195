package main

import (
	"flag"
	"fmt"
	"log"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile   = flag.String("config", "config.yaml", "Path to configuration file")
	replayDir    = flag.String("replay", "", "Replay tracklog-*.json exports from this directory and exit")
	renderDir    = flag.String("render", "", "Write flow overlays to this directory during replay")
	renderFormat = flag.String("format", "raster", "Overlay format: raster, vector, or both")
	mqttMode     = flag.Bool("mqtt", false, "Run MQTT service mode for live track refinement")
	httpMode     = flag.Bool("http", false, "Enable HTTP server for stats and overlays")
	httpPort     = flag.Int("http-port", 8080, "HTTP server port (default 8080)")
)

func main() {
	flag.Parse()
	fmt.Printf("trackgate version: %s\n", Version)

	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:   *configFile,
		ReplayDir:    *replayDir,
		RenderDir:    *renderDir,
		RenderFormat: *renderFormat,
		HttpPort:     *httpPort,
		MqttMode:     *mqttMode,
		HttpMode:     *httpMode,
	})

	if *replayDir != "" {
		if err := app.RunReplay(); err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
		return
	}

	if *mqttMode || *httpMode {
		if err := app.RunService(); err != nil {
			log.Fatalf("Service failed: %v", err)
		}
		return
	}

	fmt.Println("trackgate: two-point RANSAC outlier rejection for feature tracks")
	fmt.Println("Use --replay=DIR to refine recorded tracklog-*.json exports")
	fmt.Println("Use --replay=DIR --render=OUT to also write flow overlays")
	fmt.Println("Use --mqtt to refine live tracks from the broker")
	fmt.Println("Use --http to serve stats and overlays")
	fmt.Println("Use --mqtt --http to run both together")
	fmt.Println("\nConfiguration:")
	fmt.Println("  config.yaml - MQTT settings, camera topics, and RANSAC tuning")
}
