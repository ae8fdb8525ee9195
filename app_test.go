package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackgate/vio"
)

// makeRadialTrackSet builds a frame pair from pure forward motion: every
// inlier's second observation is the first scaled radially outward, which is
// consistent with a translation along the optical axis under identity
// rotation. Outlier indices get displaced off that field.
func makeRadialTrackSet(camera string, seq uint64, n int, outliers ...int) *vio.TrackSet {
	pts1 := make([]vio.Point, n)
	pts2 := make([]vio.Point, n)
	flags := make([]uint8, n)

	for i := 0; i < n; i++ {
		angle := 2*math.Pi*float64(i)/float64(n) + 0.1
		radius := 0.2 + 0.02*float64(i)
		pts1[i] = vio.Point{X: radius * math.Cos(angle), Y: radius * math.Sin(angle)}
		pts2[i] = vio.Point{X: pts1[i].X * 1.1, Y: pts1[i].Y * 1.1}
		flags[i] = 1
	}
	for _, i := range outliers {
		pts2[i].X += 0.4
		pts2[i].Y -= 0.3
	}

	return &vio.TrackSet{
		Camera:    camera,
		Seq:       seq,
		Timestamp: float64(seq) * 0.05,
		Rotation:  vio.Quaternion{W: 1},
		Points1:   pts1,
		Points2:   pts2,
		Flags:     flags,
	}
}

func TestApp_RefineTrackSet(t *testing.T) {
	app := NewApp()
	ts := makeRadialTrackSet("cam0", 1, 20, 4, 12)

	v, err := app.RefineTrackSet(ts)
	require.NoError(t, err)

	assert.Equal(t, 20, v.Candidates)
	assert.Equal(t, 18, v.Inliers)
	assert.Equal(t, uint8(0), ts.Flags[4])
	assert.Equal(t, uint8(0), ts.Flags[12])
}

func TestApp_EstimatorPerCamera(t *testing.T) {
	app := NewApp()

	a := app.estimatorFor("cam0")
	b := app.estimatorFor("cam0")
	c := app.estimatorFor("cam1")

	assert.Same(t, a, b, "same camera must reuse its estimator")
	assert.NotSame(t, a, c, "different cameras get separate estimators")
}

func TestApp_HandleTrack(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	mock := vio.NewMockClient()
	mock.SetConnected(true)

	app := NewApp()
	app.Publisher = vio.NewPublisher(mock)

	ts := makeRadialTrackSet("cam0", 7, 20, 3)
	app.HandleTrack("cam0", nil, ts, nil)

	v, ok := app.StateTracker.GetVerdict("cam0")
	require.True(t, ok)
	assert.Equal(t, uint64(7), v.Seq)
	assert.Equal(t, 19, v.Inliers)

	msgs := mock.GetPublishedMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "trackgate/cam0", msgs[0].Topic)
	assert.Equal(t, "trackgate/verdicts", msgs[1].Topic)
}

func TestApp_HandleTrack_DecodeError(t *testing.T) {
	app := NewApp()
	app.HandleTrack("cam0", []byte("junk"), nil, errors.New("parsing track JSON"))

	_, ok := app.StateTracker.GetVerdict("cam0")
	assert.False(t, ok)
	assert.Empty(t, app.StateTracker.Snapshot())
}

func TestApp_HandleTrack_Degenerate(t *testing.T) {
	app := NewApp()

	ts := makeRadialTrackSet("cam0", 3, 5)
	for i := 1; i < len(ts.Flags); i++ {
		ts.Flags[i] = 0
	}
	app.HandleTrack("cam0", nil, ts, nil)

	_, ok := app.StateTracker.GetVerdict("cam0")
	assert.False(t, ok)

	cs, ok := app.StateTracker.Snapshot()["cam0"]
	require.True(t, ok)
	assert.Equal(t, uint64(1), cs.Degenerate)
	assert.Equal(t, uint8(1), ts.Flags[0], "degenerate frames must not mutate flags")
}

func TestApp_RunReplay(t *testing.T) {
	replayDir := t.TempDir()
	renderOut := filepath.Join(t.TempDir(), "overlays")

	for seq := 1; seq <= 2; seq++ {
		ts := makeRadialTrackSet("cam0", uint64(seq), 20, 5)
		data, err := json.Marshal(ts)
		require.NoError(t, err)
		path := filepath.Join(replayDir, fmt.Sprintf("tracklog-cam0-%06d.json", seq))
		require.NoError(t, os.WriteFile(path, data, 0644))
	}

	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:   filepath.Join(replayDir, "config.yaml"), // absent, replay runs on defaults
		ReplayDir:    replayDir,
		RenderDir:    renderOut,
		RenderFormat: "both",
	})

	require.NoError(t, app.RunReplay())

	cs, ok := app.StateTracker.Snapshot()["cam0"]
	require.True(t, ok)
	assert.Equal(t, uint64(2), cs.Frames)
	assert.InDelta(t, 19.0/20.0, cs.InlierRatio, 1e-9)

	for _, name := range []string{"flow_cam0_000001.png", "flow_cam0_000001.svg", "flow_cam0_000002.png"} {
		_, err := os.Stat(filepath.Join(renderOut, name))
		assert.NoError(t, err, "missing overlay %s", name)
	}
}

func TestApp_RunReplay_NoFiles(t *testing.T) {
	app := NewApp()
	app.ApplyOptions(AppOptions{ReplayDir: t.TempDir(), RenderFormat: "raster"})

	err := app.RunReplay()
	assert.ErrorContains(t, err, "no tracklog")
}

func TestApp_RunReplay_InvalidFormat(t *testing.T) {
	app := NewApp()
	app.ApplyOptions(AppOptions{ReplayDir: t.TempDir(), RenderFormat: "ascii"})

	err := app.RunReplay()
	assert.ErrorContains(t, err, "invalid format")
}

func TestApp_ApplyOptions(t *testing.T) {
	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:   "c.yaml",
		ReplayDir:    "replay",
		RenderDir:    "out",
		RenderFormat: "vector",
		HttpPort:     9090,
		MqttMode:     true,
		HttpMode:     true,
	})

	assert.Equal(t, "c.yaml", app.ConfigFile)
	assert.Equal(t, "replay", app.ReplayDir)
	assert.Equal(t, "out", app.RenderDir)
	assert.Equal(t, "vector", app.RenderFormat)
	assert.Equal(t, 9090, app.HttpPort)
	assert.True(t, app.MqttMode)
	assert.True(t, app.HttpMode)
}
