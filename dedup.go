package main

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

const metadataStatusOK = "OK"

// PanoMetadata is the imagery service's answer for a single viewpoint.
type PanoMetadata struct {
	Date     string     `json:"date"`
	Location Coordinate `json:"location"`
	PanoID   string     `json:"pano_id"`
	Status   string     `json:"status"`
}

func (m PanoMetadata) ok() bool {
	return m.Status == metadataStatusOK
}

type groupMember struct {
	viewpoint Viewpoint
	meta      PanoMetadata
	err       float64 // meters between requested and served location
}

// viewpointGroup collects consecutive viewpoints served by the same panorama.
type viewpointGroup []groupMember

// best returns the member with the smallest positional error. The first one
// wins ties.
func (g viewpointGroup) best() (groupMember, error) {
	if len(g) == 0 {
		return groupMember{}, fmt.Errorf("%w: empty panorama group", errContractViolation)
	}
	best := g[0]
	for _, m := range g[1:] {
		if m.err < best.err {
			best = m
		}
	}
	return best, nil
}

// deduplicatePanoramas drops viewpoints without imagery and collapses runs of
// viewpoints that resolved to the same panorama into their most accurate
// member. Runs are adjacency based: a panorama that reappears after a
// different one starts a new group, so tracks that revisit a street keep both
// passes.
func deduplicatePanoramas(viewpoints []Viewpoint, metadata []PanoMetadata) ([]Viewpoint, []PanoMetadata, []float64, error) {
	if len(viewpoints) != len(metadata) {
		return nil, nil, nil, fmt.Errorf("%w: %d viewpoints but %d metadata records", errContractViolation, len(viewpoints), len(metadata))
	}

	var groups []viewpointGroup
	lastPano := ""
	for i, vp := range viewpoints {
		meta := metadata[i]
		if !meta.ok() {
			continue
		}
		if len(groups) == 0 || meta.PanoID != lastPano {
			groups = append(groups, nil)
		}
		lastPano = meta.PanoID
		groups[len(groups)-1] = append(groups[len(groups)-1], groupMember{
			viewpoint: vp,
			meta:      meta,
			err:       distance(vp.Coordinate, meta.Location),
		})
	}

	keptViewpoints := make([]Viewpoint, 0, len(groups))
	keptMetadata := make([]PanoMetadata, 0, len(groups))
	errs := make([]float64, 0, len(groups))
	for _, g := range groups {
		m, err := g.best()
		if err != nil {
			return nil, nil, nil, err
		}
		keptViewpoints = append(keptViewpoints, m.viewpoint)
		keptMetadata = append(keptMetadata, m.meta)
		errs = append(errs, m.err)
	}
	return keptViewpoints, keptMetadata, errs, nil
}

// averageError is the mean positional error in meters, or 0 when nothing
// survived deduplication.
func averageError(errs []float64) float64 {
	if len(errs) == 0 {
		return 0
	}
	return stat.Mean(errs, nil)
}
