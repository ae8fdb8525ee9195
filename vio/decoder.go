package vio

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// DecodeTrackData decodes a feature-track payload from the wire:
// - Raw JSON (starts with '{')
// - Gzip-compressed JSON (tracker front ends on constrained links)
func DecodeTrackData(data []byte) (*TrackSet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	var jsonBytes []byte
	var err error

	if data[0] == '{' {
		jsonBytes = data
	} else if isGzip(data) {
		jsonBytes, err = inflateGzip(data)
		if err != nil {
			return nil, fmt.Errorf("decompressing track data: %w", err)
		}
	} else {
		return nil, fmt.Errorf("unknown format: not JSON or gzip-compressed JSON")
	}

	var ts TrackSet
	if err := json.Unmarshal(jsonBytes, &ts); err != nil {
		return nil, fmt.Errorf("parsing track JSON: %w", err)
	}

	if err := validateTrackSet(&ts); err != nil {
		return nil, err
	}
	return &ts, nil
}

// validateTrackSet checks the structural invariants the estimator relies on.
func validateTrackSet(ts *TrackSet) error {
	if ts.Camera == "" {
		return fmt.Errorf("track set has no camera id")
	}
	if len(ts.Points1) != len(ts.Points2) {
		return fmt.Errorf("point arrays differ in length: %d vs %d", len(ts.Points1), len(ts.Points2))
	}
	if len(ts.Flags) != len(ts.Points1) {
		return fmt.Errorf("flag array length %d does not match %d points", len(ts.Flags), len(ts.Points1))
	}
	if ts.Rotation.IsZero() {
		return fmt.Errorf("track set for %s carries a zero rotation quaternion", ts.Camera)
	}
	return nil
}

// isGzip checks for the gzip magic bytes
func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// inflateGzip decompresses gzip-compressed data
func inflateGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing gzip data: %w", err)
	}

	return decompressed, nil
}

// DecodeTrackFile reads and decodes a track log export from disk.
// Replay mode feeds recorded frames through the estimator with this.
func DecodeTrackFile(path string) (*TrackSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return DecodeTrackData(data)
}
