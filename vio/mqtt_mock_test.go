package vio

import (
	"errors"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClient_ConnectDisconnect(t *testing.T) {
	c := NewMockClient()
	assert.False(t, c.IsConnected())

	token := c.Connect()
	assert.True(t, token.Wait())
	assert.NoError(t, token.Error())
	assert.True(t, c.IsConnected())
	assert.True(t, c.IsConnectionOpen())

	c.Disconnect(0)
	assert.False(t, c.IsConnected())
}

func TestMockClient_ConnectError(t *testing.T) {
	c := NewMockClient()
	wantErr := errors.New("broker unreachable")
	c.SetConnectError(wantErr)

	token := c.Connect()
	assert.ErrorIs(t, token.Error(), wantErr)
	assert.False(t, c.IsConnected())
}

func TestMockClient_PublishRequiresConnection(t *testing.T) {
	c := NewMockClient()

	token := c.Publish("vio/cam0/tracks", 0, false, []byte("x"))
	assert.ErrorIs(t, token.Error(), mqtt.ErrNotConnected)
	assert.Empty(t, c.GetPublishedMessages())
}

func TestMockClient_PublishRecordsMessages(t *testing.T) {
	c := NewMockClient()
	c.SetConnected(true)

	c.Publish("a/b", 1, true, []byte("bytes"))
	c.Publish("a/c", 0, false, "string payload")

	msgs := c.GetPublishedMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a/b", msgs[0].Topic)
	assert.Equal(t, byte(1), msgs[0].QoS)
	assert.True(t, msgs[0].Retain)
	assert.Equal(t, []byte("bytes"), msgs[0].Payload)
	assert.Equal(t, []byte("string payload"), msgs[1].Payload)
}

func TestMockClient_PublishError(t *testing.T) {
	c := NewMockClient()
	c.SetConnected(true)
	wantErr := errors.New("publish refused")
	c.SetPublishError(wantErr)

	token := c.Publish("a/b", 0, false, []byte("x"))
	assert.ErrorIs(t, token.Error(), wantErr)
}

func TestMockClient_SubscribeAndSimulate(t *testing.T) {
	c := NewMockClient()
	c.SetConnected(true)

	var got []byte
	token := c.Subscribe("vio/cam0/tracks", 0, func(client mqtt.Client, msg mqtt.Message) {
		got = msg.Payload()
		assert.Equal(t, "vio/cam0/tracks", msg.Topic())
	})
	require.NoError(t, token.Error())

	c.SimulateMessage("vio/cam0/tracks", []byte("payload"))
	assert.Equal(t, []byte("payload"), got)

	// Messages on other topics go nowhere.
	got = nil
	c.SimulateMessage("vio/cam1/tracks", []byte("other"))
	assert.Nil(t, got)
}

func TestMockClient_SubscribeError(t *testing.T) {
	c := NewMockClient()
	c.SetConnected(true)
	wantErr := errors.New("subscribe refused")
	c.SetSubscribeError(wantErr)

	token := c.Subscribe("a/b", 0, nil)
	assert.ErrorIs(t, token.Error(), wantErr)
}

func TestMockClient_SubscribeMultipleAndUnsubscribe(t *testing.T) {
	c := NewMockClient()
	c.SetConnected(true)

	count := 0
	c.SubscribeMultiple(map[string]byte{"a/b": 0, "a/c": 0}, func(client mqtt.Client, msg mqtt.Message) {
		count++
	})

	c.SimulateMessage("a/b", []byte("1"))
	c.SimulateMessage("a/c", []byte("2"))
	assert.Equal(t, 2, count)

	c.Unsubscribe("a/b")
	c.SimulateMessage("a/b", []byte("3"))
	assert.Equal(t, 2, count)
}
