package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// MetadataResult is everything needed to resume the pipeline at the image
// fetch stage.
type MetadataResult struct {
	Distance       float64      `json:"distance"`
	FrameCount     int          `json:"frame_count"`
	Viewpoints     []Viewpoint  `json:"viewpoints"`
	OriginalPoints []Coordinate `json:"original_points"`
	PanoPoints     []Coordinate `json:"pano_points,omitempty"`
	AverageError   float64      `json:"average_error"`
}

func newMetadataResult(distance float64, viewpoints []Viewpoint, metadata []PanoMetadata, original []Coordinate, errs []float64) *MetadataResult {
	panos := make([]Coordinate, len(metadata))
	for i, m := range metadata {
		panos[i] = m.Location
	}
	return &MetadataResult{
		Distance:       distance,
		FrameCount:     len(viewpoints),
		Viewpoints:     viewpoints,
		OriginalPoints: original,
		PanoPoints:     panos,
		AverageError:   averageError(errs),
	}
}

func (r *MetadataResult) validate() error {
	if r.FrameCount != len(r.Viewpoints) {
		return fmt.Errorf("%w: metadata result lists %d frames but %d viewpoints", errContractViolation, r.FrameCount, len(r.Viewpoints))
	}
	for i, vp := range r.Viewpoints {
		if _, err := newCoordinate(vp.Lat, vp.Lng); err != nil {
			return fmt.Errorf("viewpoint %d: %w", i, err)
		}
	}
	return nil
}

func writeMetadataResult(path string, r *MetadataResult) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata result: %w", err)
	}
	return nil
}

func readMetadataResult(path string) (*MetadataResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata result: %w", err)
	}
	var r MetadataResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: failed to parse metadata result: %v", errInvalidInput, err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// printMetadataResult writes r as a single JSON line or as a short summary.
func printMetadataResult(w io.Writer, r *MetadataResult, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(r)
	}
	_, err := fmt.Fprintf(w, "distance: %.1f m\nframes: %d\noriginal points: %d\naverage error: %.2f m\n",
		r.Distance, r.FrameCount, len(r.OriginalPoints), r.AverageError)
	return err
}
