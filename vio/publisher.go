package vio

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher pushes refined track verdicts back onto the broker for the
// downstream filter stage.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	verdicts      map[string]*Verdict
	mu            sync.RWMutex
}

// NewPublisher creates a new verdict publisher.
// If client is nil, publishing is disabled (for testing).
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = "trackgate"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // Fire and forget; the next frame supersedes anyway
		retain:        true, // Late subscribers get the latest verdict
		verdicts:      make(map[string]*Verdict),
	}
}

// SetPrefix overrides the publish topic prefix (config beats env default)
func (p *Publisher) SetPrefix(prefix string) {
	if prefix != "" {
		p.publishPrefix = prefix
	}
}

// PublishVerdict publishes a camera's refined verdict to MQTT.
// Publishes to both the individual camera topic and the combined topic.
func (p *Publisher) PublishVerdict(v *Verdict) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	p.mu.Lock()
	p.verdicts[v.Camera] = v
	p.mu.Unlock()

	// Publish to individual topic: trackgate/{camera}
	if err := p.publishIndividual(v); err != nil {
		log.Printf("Error publishing verdict for %s: %v", v.Camera, err)
		return err
	}

	// Publish to combined topic: trackgate/verdicts
	if err := p.publishCombined(); err != nil {
		log.Printf("Error publishing combined verdicts: %v", err)
		return err
	}

	return nil
}

// publishIndividual publishes a single camera's verdict to its own topic
func (p *Publisher) publishIndividual(v *Verdict) error {
	topic := fmt.Sprintf("%s/%s", p.publishPrefix, v.Camera)

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling verdict: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	log.Printf("Published verdict for %s: seq=%d inliers=%d/%d",
		v.Camera, v.Seq, v.Inliers, v.Candidates)
	return nil
}

// publishCombined publishes the latest verdict of every camera to the combined topic
func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	verdicts := make([]*Verdict, 0, len(p.verdicts))
	for _, v := range p.verdicts {
		verdicts = append(verdicts, v)
	}
	p.mu.RUnlock()

	if len(verdicts) == 0 {
		return nil
	}

	topic := fmt.Sprintf("%s/verdicts", p.publishPrefix)

	message := map[string]interface{}{
		"cameras":   verdicts,
		"timestamp": time.Now().Unix(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling combined verdicts: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// GetVerdict returns the last published verdict for a camera
func (p *Publisher) GetVerdict(cameraID string) (*Verdict, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.verdicts[cameraID]
	return v, ok
}

// GetAllVerdicts returns the last published verdict of every camera
func (p *Publisher) GetAllVerdicts() map[string]*Verdict {
	p.mu.RLock()
	defer p.mu.RUnlock()

	verdicts := make(map[string]*Verdict, len(p.verdicts))
	for id, v := range p.verdicts {
		vCopy := *v
		verdicts[id] = &vCopy
	}
	return verdicts
}

// ClearVerdict removes a camera's cached verdict (e.g., when offline)
func (p *Publisher) ClearVerdict(cameraID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.verdicts, cameraID)
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
