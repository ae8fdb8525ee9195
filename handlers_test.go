package main

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackgate/vio"
)

func appWithRefinedFrame(t *testing.T, cameras ...string) *App {
	t.Helper()
	app := NewApp()
	for _, camera := range cameras {
		ts := makeRadialTrackSet(camera, 11, 20, 6)
		v, err := app.RefineTrackSet(ts)
		require.NoError(t, err)
		app.StateTracker.RecordVerdict(v, ts)
	}
	return app
}

func TestHealthEndpoint(t *testing.T) {
	server := newHTTPServer(NewApp())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status struct {
		Status      string    `json:"status"`
		Timestamp   time.Time `json:"timestamp"`
		HasVerdicts bool      `json:"hasVerdicts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.False(t, status.HasVerdicts)
	assert.False(t, status.Timestamp.IsZero())
}

func TestStatsEndpoint(t *testing.T) {
	app := appWithRefinedFrame(t, "cam0")
	server := newHTTPServer(app)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]vio.CameraStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Contains(t, stats, "cam0")
	assert.Equal(t, 19, stats["cam0"].Inliers)
	assert.Equal(t, 20, stats["cam0"].Candidates)
}

func TestTracksSVGEndpoint(t *testing.T) {
	app := appWithRefinedFrame(t, "cam0")
	server := newHTTPServer(app)

	req := httptest.NewRequest(http.MethodGet, "/tracks.svg?camera=cam0", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(rec.Body.String(), "<svg"))
}

func TestTracksSVGEndpoint_DefaultsToOnlyCamera(t *testing.T) {
	app := appWithRefinedFrame(t, "cam0")
	server := newHTTPServer(app)

	req := httptest.NewRequest(http.MethodGet, "/tracks.svg", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTracksSVGEndpoint_AmbiguousCamera(t *testing.T) {
	app := appWithRefinedFrame(t, "cam0", "cam1")
	server := newHTTPServer(app)

	req := httptest.NewRequest(http.MethodGet, "/tracks.svg", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTracksSVGEndpoint_UnknownCamera(t *testing.T) {
	app := appWithRefinedFrame(t, "cam0")
	server := newHTTPServer(app)

	req := httptest.NewRequest(http.MethodGet, "/tracks.svg?camera=cam9", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTracksSVGEndpoint_NoFrames(t *testing.T) {
	server := newHTTPServer(NewApp())

	req := httptest.NewRequest(http.MethodGet, "/tracks.svg", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTracksPNGEndpoint(t *testing.T) {
	app := appWithRefinedFrame(t, "cam0")
	server := newHTTPServer(app)

	req := httptest.NewRequest(http.MethodGet, "/tracks.png?camera=cam0", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())
}
