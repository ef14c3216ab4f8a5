package main

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	previewZoom    = 20 // projection zoom before fitting, fine enough for any track
	previewMargin  = 40.0
	previewCaption = 70.0
)

var (
	previewBackground = color.RGBA{245, 245, 240, 255}
	previewTrackColor = color.RGBA{120, 120, 120, 255}
	previewViewColor  = color.RGBA{0, 0, 255, 255}
	previewPanoColor  = color.RGBA{255, 152, 0, 255}
)

// previewProjection maps coordinates onto a size x size canvas, preserving
// aspect ratio and leaving room for the caption.
type previewProjection struct {
	minX, minY, scale float64
	offX, offY        float64
}

func newPreviewProjection(points []Coordinate, size int) previewProjection {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		x, y := deg2num(p.Lat, p.Lng, previewZoom)
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	w := float64(size) - 2*previewMargin
	h := float64(size) - 2*previewMargin - previewCaption
	spanX, spanY := maxX-minX, maxY-minY
	scale := 1.0
	if spanX > 0 || spanY > 0 {
		scale = math.Min(w/math.Max(spanX, 1e-12), h/math.Max(spanY, 1e-12))
	}
	return previewProjection{
		minX:  minX,
		minY:  minY,
		scale: scale,
		offX:  previewMargin + (w-spanX*scale)/2,
		offY:  previewMargin + (h-spanY*scale)/2,
	}
}

func (p previewProjection) project(c Coordinate) (float64, float64) {
	x, y := deg2num(c.Lat, c.Lng, previewZoom)
	return p.offX + (x-p.minX)*p.scale, p.offY + (y-p.minY)*p.scale
}

// renderPreview draws the raw track, the kept viewpoints with their headings
// and the panorama locations they were matched to.
func renderPreview(r *MetadataResult, size int) (image.Image, error) {
	if len(r.OriginalPoints) == 0 && len(r.Viewpoints) == 0 {
		return nil, fmt.Errorf("%w: nothing to preview", errInvalidInput)
	}
	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}

	all := append([]Coordinate{}, r.OriginalPoints...)
	for _, vp := range r.Viewpoints {
		all = append(all, vp.Coordinate)
	}
	all = append(all, r.PanoPoints...)
	proj := newPreviewProjection(all, size)

	dc := gg.NewContext(size, size)
	dc.SetColor(previewBackground)
	dc.Clear()

	// Track
	if len(r.OriginalPoints) > 1 {
		dc.SetColor(previewTrackColor)
		dc.SetLineWidth(3)
		x, y := proj.project(r.OriginalPoints[0])
		dc.MoveTo(x, y)
		for _, p := range r.OriginalPoints[1:] {
			x, y := proj.project(p)
			dc.LineTo(x, y)
		}
		dc.Stroke()
	}

	// Panorama matches
	dc.SetColor(previewPanoColor)
	for _, p := range r.PanoPoints {
		x, y := proj.project(p)
		dc.DrawPoint(x, y, 2)
		dc.Fill()
	}

	// Viewpoints with heading ticks
	dc.SetLineWidth(1.5)
	for _, vp := range r.Viewpoints {
		x, y := proj.project(vp.Coordinate)
		dc.SetColor(previewViewColor)
		dc.DrawPoint(x, y, 3)
		dc.Fill()
		rad := gg.Radians(vp.Bearing)
		dc.DrawLine(x, y, x+10*math.Sin(rad), y-10*math.Cos(rad))
		dc.Stroke()
	}

	// Caption
	face := truetype.NewFace(font, &truetype.Options{Size: float64(size) / 40})
	dc.SetFontFace(face)
	dc.SetColor(color.Black)
	caption := fmt.Sprintf("%.2f km  |  %d frames  |  avg error %.1f m", r.Distance/1000, r.FrameCount, r.AverageError)
	dc.DrawStringAnchored(caption, float64(size)/2, float64(size)-previewCaption/2, 0.5, 0.5)

	return dc.Image(), nil
}

func savePreview(path string, r *MetadataResult, size int) error {
	img, err := renderPreview(r, size)
	if err != nil {
		return err
	}
	if err := gg.SavePNG(path, img); err != nil {
		return fmt.Errorf("failed to save preview: %w", err)
	}
	return nil
}
