package main

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"os"
	"path/filepath"
	"strconv"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// HashConfig controls how frames are fingerprinted. Hashes are only
// comparable when produced with the same config.
type HashConfig struct {
	Grid      int     `yaml:"grid"`      // cells per side
	Thumbnail int     `yaml:"thumbnail"` // thumbnail side in pixels, multiple of Grid
	Crop      float64 `yaml:"crop"`      // kept central fraction of width and height
}

func defaultHashConfig() HashConfig {
	return HashConfig{Grid: 16, Thumbnail: 64, Crop: 0.6}
}

func (c HashConfig) validate() error {
	if c.Grid < 1 || c.Thumbnail < c.Grid || c.Thumbnail%c.Grid != 0 {
		return fmt.Errorf("%w: hash thumbnail %d must be a positive multiple of grid %d", errInvalidInput, c.Thumbnail, c.Grid)
	}
	if !(c.Crop > 0 && c.Crop <= 1) {
		return fmt.Errorf("%w: hash crop must be in (0, 1], got %v", errInvalidInput, c.Crop)
	}
	return nil
}

// FrameHash is a fixed-length perceptual fingerprint of one frame.
type FrameHash struct {
	words []uint64
	n     int
}

func newFrameHash(n int) FrameHash {
	return FrameHash{words: make([]uint64, (n+63)/64), n: n}
}

func (h FrameHash) set(i int) {
	h.words[i/64] |= 1 << (uint(i) % 64)
}

func (h FrameHash) bit(i int) bool {
	return h.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Len is the number of bits in the hash.
func (h FrameHash) Len() int { return h.n }

// Hamming counts differing bits.
func (h FrameHash) Hamming(other FrameHash) (int, error) {
	if h.n != other.n {
		return 0, fmt.Errorf("%w: comparing %d-bit hash with %d-bit hash", errContractViolation, h.n, other.n)
	}
	d := 0
	for i, w := range h.words {
		d += bits.OnesCount64(w ^ other.words[i])
	}
	return d, nil
}

// computeFrameHash crops the central region of img, shrinks it to a grayscale
// thumbnail and sets one bit per grid cell brighter than the thumbnail mean.
func computeFrameHash(img image.Image, cfg HashConfig) (FrameHash, error) {
	if err := cfg.validate(); err != nil {
		return FrameHash{}, err
	}
	b := img.Bounds()
	if b.Empty() {
		return FrameHash{}, fmt.Errorf("%w: empty image", errInvalidInput)
	}

	cw := max(1, int(float64(b.Dx())*cfg.Crop))
	ch := max(1, int(float64(b.Dy())*cfg.Crop))
	x0 := b.Min.X + (b.Dx()-cw)/2
	y0 := b.Min.Y + (b.Dy()-ch)/2
	crop := image.Rect(x0, y0, x0+cw, y0+ch)

	thumb := image.NewGray(image.Rect(0, 0, cfg.Thumbnail, cfg.Thumbnail))
	xdraw.BiLinear.Scale(thumb, thumb.Bounds(), img, crop, xdraw.Src, nil)

	cell := cfg.Thumbnail / cfg.Grid
	means := make([]float64, cfg.Grid*cfg.Grid)
	var total float64
	for gy := 0; gy < cfg.Grid; gy++ {
		for gx := 0; gx < cfg.Grid; gx++ {
			var sum float64
			for y := gy * cell; y < (gy+1)*cell; y++ {
				row := thumb.Pix[y*thumb.Stride:]
				for x := gx * cell; x < (gx+1)*cell; x++ {
					sum += float64(row[x])
				}
			}
			m := sum / float64(cell*cell)
			means[gy*cfg.Grid+gx] = m
			total += m
		}
	}
	mean := total / float64(len(means))

	h := newFrameHash(len(means))
	for i, m := range means {
		if m > mean {
			h.set(i)
		}
	}
	return h, nil
}

// hashFrames fingerprints 0.jpg..n-1.jpg in dir, workers at a time. The
// result is indexed like the files.
func hashFrames(ctx context.Context, dir string, n int, cfg HashConfig, workers int, reporter progressReporter) ([]FrameHash, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	hashes := make([]FrameHash, n)
	counter := reporter.Counter("Hashing frames", n)
	defer counter.Finish()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, workers))
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := decodeImageFile(filepath.Join(dir, strconv.Itoa(i)+".jpg"))
			if err != nil {
				return err
			}
			h, err := computeFrameHash(img, cfg)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			hashes[i] = h
			counter.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hashes, nil
}

func decodeImageFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}
