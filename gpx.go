package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tkrajina/gpxgo/gpx"
)

// --- Track Reading ---

// readTrack loads the raw track from a .gpx file or a JSON array of
// {"lat", "lng"} objects. Any other extension is treated as JSON.
func readTrack(filePath string) ([]Coordinate, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read track file: %w", err)
	}

	var points []Coordinate
	if strings.EqualFold(filepath.Ext(filePath), ".gpx") {
		points, err = parseGpx(content)
	} else {
		points, err = parseJSONTrack(content)
	}
	if err != nil {
		return nil, err
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: track %s has %d points, need at least 2", errInvalidInput, filePath, len(points))
	}
	return points, nil
}

func parseGpx(content []byte) ([]Coordinate, error) {
	gpxFile, err := gpx.ParseBytes(content)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse GPX file: %v", errInvalidInput, err)
	}

	var points []Coordinate
	for _, track := range gpxFile.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				c, err := newCoordinate(p.Latitude, p.Longitude)
				if err != nil {
					return nil, err
				}
				points = append(points, c)
			}
		}
	}
	// Planned routes carry no track, only route points.
	if len(points) == 0 {
		for _, route := range gpxFile.Routes {
			for _, p := range route.Points {
				c, err := newCoordinate(p.Latitude, p.Longitude)
				if err != nil {
					return nil, err
				}
				points = append(points, c)
			}
		}
	}
	return points, nil
}

func parseJSONTrack(content []byte) ([]Coordinate, error) {
	var raw []struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON track: %v", errInvalidInput, err)
	}

	points := make([]Coordinate, 0, len(raw))
	for i, r := range raw {
		if r.Lat == nil || r.Lng == nil {
			return nil, fmt.Errorf("%w: point %d is missing lat or lng", errInvalidInput, i)
		}
		c, err := newCoordinate(*r.Lat, *r.Lng)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		points = append(points, c)
	}
	return points, nil
}
