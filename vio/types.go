package vio

// Point is a feature location on the normalized image plane. The homogeneous
// third coordinate is always 1 and is added where the epipolar algebra needs it.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TrackSet is one frame pair's worth of feature correspondences as published
// by the tracker front end. Points1 holds the feature positions in the earlier
// frame, Points2 the matched positions in the later frame. Flags mirrors the
// tracker's status vector: a non-zero entry means the match survived tracking
// and is a candidate for geometric verification.
type TrackSet struct {
	Camera    string     `json:"camera"`
	Seq       uint64     `json:"seq"`
	Timestamp float64    `json:"timestamp"`
	Rotation  Quaternion `json:"rotation"`
	Points1   []Point    `json:"points1"`
	Points2   []Point    `json:"points2"`
	Flags     []uint8    `json:"flags"`
}

// Candidates returns the number of tracks still flagged as valid.
func (ts *TrackSet) Candidates() int {
	n := 0
	for _, f := range ts.Flags {
		if f != 0 {
			n++
		}
	}
	return n
}

// Verdict is the published result of refining one TrackSet.
type Verdict struct {
	Camera     string  `json:"camera"`
	Seq        uint64  `json:"seq"`
	Timestamp  float64 `json:"timestamp"`
	Candidates int     `json:"candidates"`
	Inliers    int     `json:"inliers"`
	Flags      []uint8 `json:"flags"`
}

// InlierRatio returns the fraction of candidates kept, or 0 when there were none.
func (v *Verdict) InlierRatio() float64 {
	if v.Candidates == 0 {
		return 0
	}
	return float64(v.Inliers) / float64(v.Candidates)
}

// CameraConfig defines a camera feed from the config file
type CameraConfig struct {
	ID    string `yaml:"id" json:"id"`
	Topic string `yaml:"topic" json:"topic"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// RansacSettings holds the estimator tuning from the config file.
// Metric selects the scoring function: "sampson" (default) or "algebraic".
type RansacSettings struct {
	Iterations      int     `yaml:"iterations,omitempty" json:"iterations,omitempty"`
	Metric          string  `yaml:"metric,omitempty" json:"metric,omitempty"`
	InlierThreshold float64 `yaml:"inlierThreshold,omitempty" json:"inlierThreshold,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	MQTT    MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Cameras []CameraConfig `yaml:"cameras" json:"cameras"`
	Ransac  RansacSettings `yaml:"ransac,omitempty" json:"ransac,omitempty"`
}

// GetCameraByID returns the camera config for the given ID
func (c *Config) GetCameraByID(id string) *CameraConfig {
	for i := range c.Cameras {
		if c.Cameras[i].ID == id {
			return &c.Cameras[i]
		}
	}
	return nil
}
