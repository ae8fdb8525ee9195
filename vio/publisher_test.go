package vio

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVerdict(camera string, seq uint64) *Verdict {
	return &Verdict{
		Camera:     camera,
		Seq:        seq,
		Timestamp:  12.5,
		Candidates: 20,
		Inliers:    18,
		Flags:      []uint8{1, 1, 0, 1},
	}
}

func TestNewPublisher_Defaults(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	p := NewPublisher(nil)
	assert.Equal(t, "trackgate", p.publishPrefix)
	assert.Equal(t, byte(0), p.qos)
	assert.True(t, p.retain)
}

func TestNewPublisher_EnvPrefix(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "custom/prefix")

	p := NewPublisher(nil)
	assert.Equal(t, "custom/prefix", p.publishPrefix)
}

func TestPublisher_SetPrefix(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	p := NewPublisher(nil)
	p.SetPrefix("vio")
	assert.Equal(t, "vio", p.publishPrefix)

	// Empty prefix is ignored, the current one stays.
	p.SetPrefix("")
	assert.Equal(t, "vio", p.publishPrefix)
}

func TestPublishVerdict_NotConnected(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	p := NewPublisher(nil)
	assert.Error(t, p.PublishVerdict(testVerdict("cam0", 1)))

	mock := NewMockClient()
	p = NewPublisher(mock)
	assert.Error(t, p.PublishVerdict(testVerdict("cam0", 1)))
}

func TestPublishVerdict_Topics(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	mock := NewMockClient()
	mock.SetConnected(true)
	p := NewPublisher(mock)

	require.NoError(t, p.PublishVerdict(testVerdict("cam0", 7)))

	msgs := mock.GetPublishedMessages()
	require.Len(t, msgs, 2)

	assert.Equal(t, "trackgate/cam0", msgs[0].Topic)
	assert.Equal(t, byte(0), msgs[0].QoS)
	assert.True(t, msgs[0].Retain)

	var v Verdict
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &v))
	assert.Equal(t, uint64(7), v.Seq)
	assert.Equal(t, 18, v.Inliers)

	assert.Equal(t, "trackgate/verdicts", msgs[1].Topic)
	var combined struct {
		Cameras   []Verdict `json:"cameras"`
		Timestamp int64     `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &combined))
	require.Len(t, combined.Cameras, 1)
	assert.Equal(t, "cam0", combined.Cameras[0].Camera)
	assert.NotZero(t, combined.Timestamp)
}

func TestPublishVerdict_CombinedCoversAllCameras(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	mock := NewMockClient()
	mock.SetConnected(true)
	p := NewPublisher(mock)

	require.NoError(t, p.PublishVerdict(testVerdict("cam0", 1)))
	require.NoError(t, p.PublishVerdict(testVerdict("cam1", 2)))

	msgs := mock.GetPublishedMessages()
	require.Len(t, msgs, 4)

	var combined struct {
		Cameras []Verdict `json:"cameras"`
	}
	require.NoError(t, json.Unmarshal(msgs[3].Payload, &combined))
	assert.Len(t, combined.Cameras, 2)
}

func TestPublisher_VerdictCache(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	mock := NewMockClient()
	mock.SetConnected(true)
	p := NewPublisher(mock)

	require.NoError(t, p.PublishVerdict(testVerdict("cam0", 3)))

	v, ok := p.GetVerdict("cam0")
	require.True(t, ok)
	assert.Equal(t, uint64(3), v.Seq)

	_, ok = p.GetVerdict("cam9")
	assert.False(t, ok)

	all := p.GetAllVerdicts()
	require.Len(t, all, 1)
	// The returned map holds copies; mutating one must not touch the cache.
	all["cam0"].Seq = 999
	v, _ = p.GetVerdict("cam0")
	assert.Equal(t, uint64(3), v.Seq)

	p.ClearVerdict("cam0")
	_, ok = p.GetVerdict("cam0")
	assert.False(t, ok)
}

func TestPublisher_QoSAndRetain(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	p := NewPublisher(nil)

	p.SetQoS(2)
	assert.Equal(t, byte(2), p.qos)

	p.SetQoS(3) // invalid, ignored
	assert.Equal(t, byte(2), p.qos)

	p.SetRetain(false)
	assert.False(t, p.retain)
}
