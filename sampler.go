package main

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// resampleDivisorFudge is subtracted from the target frame count when deriving
// the resampling step. Dividing by n-0.99 instead of n-1 makes the step a hair
// shorter than the exact spacing, so accumulated float error can't leave the
// final point just short of the last threshold.
const resampleDivisorFudge = 0.99

// minInterpFactor is the smallest factor that densifies the track. Anything
// below it leaves the raw points untouched.
const minInterpFactor = 2

// sampleTrack turns a raw track into at most frames evenly spaced viewpoints.
// It returns the viewpoints and the total geodesic length of the raw track.
func sampleTrack(points []Coordinate, frames, interpFactor int) ([]Viewpoint, float64, error) {
	if len(points) < 2 {
		return nil, 0, fmt.Errorf("%w: need at least 2 track points, got %d", errInvalidInput, len(points))
	}
	if frames < 1 {
		return nil, 0, fmt.Errorf("%w: target frame count must be positive, got %d", errInvalidInput, frames)
	}

	totalDistance := floats.Sum(segmentDistances(points))

	dense := densifyTrack(points, interpFactor)
	sampled := resampleByDistance(dense, frames, segmentDistances(dense))

	return assignBearings(sampled, points), totalDistance, nil
}

// segmentDistances returns distances[i] = distance(points[i], points[i+1]).
func segmentDistances(points []Coordinate) []float64 {
	if len(points) < 2 {
		return nil
	}
	distances := make([]float64, len(points)-1)
	for i := range distances {
		distances[i] = distance(points[i], points[i+1])
	}
	return distances
}

// densifyTrack splits every segment into factor great-circle sub-segments.
// The recorded vertices stay in the output with factor-1 interpolated points
// between each pair, so the densified track still passes through every corner
// of the raw one. A track of n points becomes (n-1)*factor+1 points.
func densifyTrack(points []Coordinate, factor int) []Coordinate {
	if factor < minInterpFactor {
		return points
	}
	dense := make([]Coordinate, 0, (len(points)-1)*factor+1)
	for i := 0; i < len(points)-1; i++ {
		p1, p2 := points[i], points[i+1]
		dense = append(dense, p1)
		if d := haversineDistance(p1, p2); d > 0 {
			dense = append(dense, interpolate(p1, p2, d/float64(factor))...)
		}
	}
	return append(dense, points[len(points)-1])
}

// resampleByDistance walks the track and keeps a point every time the
// distance traveled so far crosses the next multiple of the sampling step.
func resampleByDistance(points []Coordinate, n int, distances []float64) []Coordinate {
	total := floats.Sum(distances)
	step := total / (float64(n) - resampleDivisorFudge)

	sample := make([]Coordinate, 0, n)
	current := 0.0
	for idx := 0; len(sample) < n && idx < len(points); idx++ {
		if current >= step*float64(len(sample)) {
			sample = append(sample, points[idx])
		}
		// The last point has no outgoing segment.
		if idx < len(distances) {
			current += distances[idx]
		}
	}
	return sample
}

// assignBearings orients each sampled point toward its successor. The last
// point keeps the heading of the segment before it. A lone sample borrows the
// heading of the raw track's first segment.
func assignBearings(sampled, raw []Coordinate) []Viewpoint {
	viewpoints := make([]Viewpoint, len(sampled))
	for i := 0; i < len(sampled)-1; i++ {
		viewpoints[i] = Viewpoint{Coordinate: sampled[i], Bearing: bearing(sampled[i], sampled[i+1])}
	}
	last := len(sampled) - 1
	switch {
	case last > 0:
		viewpoints[last] = Viewpoint{Coordinate: sampled[last], Bearing: viewpoints[last-1].Bearing}
	case last == 0:
		viewpoints[0] = Viewpoint{Coordinate: sampled[0], Bearing: bearing(raw[0], raw[1])}
	}
	return viewpoints
}

// expectedFrameCount converts a frame density into a frame count for a track
// of the given length. The result is never below 2.
func expectedFrameCount(framesPerMile, distanceMeters float64) int {
	n := int(framesPerMile * distanceMeters / metersPerMile)
	if n < 2 {
		n = 2
	}
	return n
}

// defaultInterpFactor spreads the expected frames across the raw segments,
// plus one so every segment gets at least one sub-division pass.
func defaultInterpFactor(expectedFrames, segments int) int {
	if segments < 1 {
		return 1
	}
	return expectedFrames/segments + 1
}
