package main

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// splitImage is dark on the left half and bright on the right.
func splitImage(w, h int, invert bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(20)
			if x >= w/2 {
				v = 230
			}
			if invert {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func writeJPEG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 95}))
}

func TestComputeFrameHash(t *testing.T) {
	t.Parallel()
	cfg := defaultHashConfig()

	t.Run("length follows the grid", func(t *testing.T) {
		h, err := computeFrameHash(splitImage(200, 100, false), cfg)
		require.NoError(t, err)
		assert.Equal(t, 256, h.Len())

		h, err = computeFrameHash(splitImage(200, 100, false), HashConfig{Grid: 8, Thumbnail: 32, Crop: 1})
		require.NoError(t, err)
		assert.Equal(t, 64, h.Len())
	})

	t.Run("identical images match", func(t *testing.T) {
		a, err := computeFrameHash(splitImage(200, 100, false), cfg)
		require.NoError(t, err)
		b, err := computeFrameHash(splitImage(200, 100, false), cfg)
		require.NoError(t, err)
		d, err := a.Hamming(b)
		require.NoError(t, err)
		assert.Equal(t, 0, d)
	})

	t.Run("inverted image differs everywhere", func(t *testing.T) {
		a, err := computeFrameHash(splitImage(200, 100, false), cfg)
		require.NoError(t, err)
		b, err := computeFrameHash(splitImage(200, 100, true), cfg)
		require.NoError(t, err)
		d, err := a.Hamming(b)
		require.NoError(t, err)
		assert.Equal(t, a.Len(), d)
	})

	t.Run("border is cropped away", func(t *testing.T) {
		plain := splitImage(200, 100, false)
		framed := splitImage(200, 100, false)
		for y := 0; y < 100; y++ {
			for x := 0; x < 200; x++ {
				if x < 15 || x >= 185 || y < 8 || y >= 92 {
					framed.SetGray(x, y, color.Gray{Y: uint8((x*7 + y*13) % 256)})
				}
			}
		}
		a, err := computeFrameHash(plain, cfg)
		require.NoError(t, err)
		b, err := computeFrameHash(framed, cfg)
		require.NoError(t, err)
		d, err := a.Hamming(b)
		require.NoError(t, err)
		assert.Equal(t, 0, d)
	})

	t.Run("invalid config", func(t *testing.T) {
		for _, bad := range []HashConfig{
			{Grid: 0, Thumbnail: 64, Crop: 0.5},
			{Grid: 16, Thumbnail: 60, Crop: 0.5},
			{Grid: 16, Thumbnail: 64, Crop: 0},
			{Grid: 16, Thumbnail: 64, Crop: 1.5},
		} {
			_, err := computeFrameHash(splitImage(10, 10, false), bad)
			assert.ErrorIs(t, err, errInvalidInput, "%+v", bad)
		}
	})

	t.Run("empty image", func(t *testing.T) {
		_, err := computeFrameHash(image.NewGray(image.Rect(0, 0, 0, 0)), cfg)
		assert.ErrorIs(t, err, errInvalidInput)
	})
}

func TestHashFrames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i := 0; i < 6; i++ {
		writeJPEG(t, filepath.Join(dir, strconv.Itoa(i)+".jpg"), splitImage(160, 120, i == 3))
	}

	hashes, err := hashFrames(context.Background(), dir, 6, defaultHashConfig(), 3, quietProgress{})
	require.NoError(t, err)
	require.Len(t, hashes, 6)

	d, err := hashes[0].Hamming(hashes[5])
	require.NoError(t, err)
	assert.Equal(t, 0, d)
	d, err = hashes[0].Hamming(hashes[3])
	require.NoError(t, err)
	assert.Greater(t, d, hashes[0].Len()/2)

	order, err := optimizeSequence(hashes, defaultOptimizerConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 4, 5}, order)

	_, err = hashFrames(context.Background(), dir, 7, defaultHashConfig(), 2, quietProgress{})
	assert.Error(t, err)
}
