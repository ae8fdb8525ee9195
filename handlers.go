package main

import (
	"encoding/json"
	"image/png"
	"log"
	"net/http"
	"time"

	"trackgate/vio"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(app *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status      string    `json:"status"`
			Timestamp   time.Time `json:"timestamp"`
			HasVerdicts bool      `json:"hasVerdicts"`
		}{
			Status:      "ok",
			Timestamp:   time.Now(),
			HasVerdicts: app.StateTracker.HasVerdicts(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Per-camera refinement statistics
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(app.StateTracker.Snapshot()); err != nil {
			log.Printf("Error encoding stats: %v", err)
		}
	})

	// Flow overlay of a camera's last refined frame as SVG
	mux.HandleFunc("/tracks.svg", func(w http.ResponseWriter, r *http.Request) {
		ts, v, ok := lastFrame(app, w, r)
		if !ok {
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := vio.NewVectorFlowRenderer().RenderToSVG(ts, v, w); err != nil {
			log.Printf("Error encoding tracks SVG: %v", err)
		}
	})

	// Flow overlay of a camera's last refined frame as PNG
	mux.HandleFunc("/tracks.png", func(w http.ResponseWriter, r *http.Request) {
		ts, v, ok := lastFrame(app, w, r)
		if !ok {
			return
		}

		img := vio.NewFlowRenderer().Render(ts, v)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := png.Encode(w, img); err != nil {
			log.Printf("Error encoding tracks PNG: %v", err)
		}
	})

	return mux
}

// lastFrame resolves the camera query parameter to its most recent refined
// frame. When the parameter is missing and exactly one camera has been seen,
// that camera is used.
func lastFrame(app *App, w http.ResponseWriter, r *http.Request) (*vio.TrackSet, *vio.Verdict, bool) {
	cameraID := r.URL.Query().Get("camera")
	if cameraID == "" {
		snapshot := app.StateTracker.Snapshot()
		if len(snapshot) != 1 {
			http.Error(w, "camera query parameter required", http.StatusBadRequest)
			return nil, nil, false
		}
		for id := range snapshot {
			cameraID = id
		}
	}

	ts, v, ok := app.StateTracker.LastFrame(cameraID)
	if !ok {
		http.Error(w, "no refined frames for camera", http.StatusNotFound)
		return nil, nil, false
	}
	return ts, v, true
}
