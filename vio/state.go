package vio

import (
	"sync"
	"time"
)

// inlierRatioAlpha is the smoothing factor for the rolling inlier ratio.
const inlierRatioAlpha = 0.2

// CameraStatus is a snapshot of one camera's processing state for the HTTP
// endpoints.
type CameraStatus struct {
	Camera      string    `json:"camera"`
	Seq         uint64    `json:"seq"`
	LastSeen    time.Time `json:"lastSeen"`
	Frames      uint64    `json:"frames"`
	Degenerate  uint64    `json:"degenerate"`
	Inliers     int       `json:"inliers"`
	Candidates  int       `json:"candidates"`
	InlierRatio float64   `json:"inlierRatio"`
}

type cameraStats struct {
	frames      uint64
	degenerate  uint64
	inlierRatio float64
	seen        bool
}

// StateTracker tracks per-camera verdicts and rolling statistics for the
// HTTP endpoints and the renderers.
type StateTracker struct {
	mu       sync.RWMutex
	verdicts map[string]*Verdict
	tracks   map[string]*TrackSet
	stats    map[string]*cameraStats
	lastSeen map[string]time.Time
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{
		verdicts: make(map[string]*Verdict),
		tracks:   make(map[string]*TrackSet),
		stats:    make(map[string]*cameraStats),
		lastSeen: make(map[string]time.Time),
	}
}

// RecordVerdict stores a camera's latest verdict and the track set it was
// computed from, and folds the inlier ratio into the rolling statistic.
func (st *StateTracker) RecordVerdict(v *Verdict, ts *TrackSet) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.verdicts[v.Camera] = v
	if ts != nil {
		st.tracks[v.Camera] = ts
	}
	st.lastSeen[v.Camera] = time.Now()

	s := st.stats[v.Camera]
	if s == nil {
		s = &cameraStats{}
		st.stats[v.Camera] = s
	}
	s.frames++
	ratio := v.InlierRatio()
	if !s.seen {
		s.inlierRatio = ratio
		s.seen = true
	} else {
		s.inlierRatio = inlierRatioAlpha*ratio + (1-inlierRatioAlpha)*s.inlierRatio
	}
}

// RecordDegenerate counts a frame that was dropped because too few tracks
// survived to run the estimator.
func (st *StateTracker) RecordDegenerate(cameraID string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.lastSeen[cameraID] = time.Now()
	s := st.stats[cameraID]
	if s == nil {
		s = &cameraStats{}
		st.stats[cameraID] = s
	}
	s.frames++
	s.degenerate++
}

// GetVerdict returns the last verdict recorded for a camera
func (st *StateTracker) GetVerdict(cameraID string) (*Verdict, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	v, ok := st.verdicts[cameraID]
	return v, ok
}

// LastFrame returns the most recent track set and verdict for a camera, for
// the render endpoints.
func (st *StateTracker) LastFrame(cameraID string) (*TrackSet, *Verdict, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ts, ok1 := st.tracks[cameraID]
	v, ok2 := st.verdicts[cameraID]
	return ts, v, ok1 && ok2
}

// HasVerdicts returns true if at least one verdict has been recorded
func (st *StateTracker) HasVerdicts() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.verdicts) > 0
}

// Snapshot returns the current status of every camera seen so far
func (st *StateTracker) Snapshot() map[string]CameraStatus {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[string]CameraStatus, len(st.stats))
	for id, s := range st.stats {
		cs := CameraStatus{
			Camera:      id,
			LastSeen:    st.lastSeen[id],
			Frames:      s.frames,
			Degenerate:  s.degenerate,
			InlierRatio: s.inlierRatio,
		}
		if v, ok := st.verdicts[id]; ok {
			cs.Seq = v.Seq
			cs.Inliers = v.Inliers
			cs.Candidates = v.Candidates
		}
		result[id] = cs
	}
	return result
}
